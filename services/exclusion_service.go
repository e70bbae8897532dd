package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/compliance"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/eventbus"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/exclusion"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger"
)

const (
	dateLayout = "2006-01-02"

	// DefaultDetectDays is the look-back used when a detect request has no start date
	DefaultDetectDays = 30

	// DefaultBatchConcurrency bounds the calls evaluated at once in a batch
	DefaultBatchConcurrency = 8

	// Weather alerts are loaded this far past the range so late arrivals still match
	weatherLookahead = 6 * time.Hour
)

// ExclusionServiceOptions tunes the engine
type ExclusionServiceOptions struct {
	Settings         exclusion.Settings
	BatchConcurrency int
}

// CallEvaluation is the outcome of a single-call evaluation
type CallEvaluation struct {
	db.DetectResponse
	Classification compliance.Classification `json:"classification"`
	Decision       exclusion.Decision        `json:"decision"`
}

type ExclusionService struct {
	Backend    ledger.Backend
	Ledger     *ledger.Ledger
	Thresholds *compliance.ThresholdResolver
	Arbitrator *exclusion.Arbitrator
	Publisher  eventbus.Publisher

	settings    exclusion.Settings
	concurrency int
	now         func() time.Time
}

func NewExclusionService(backend ledger.Backend, thresholds *compliance.ThresholdResolver, publisher eventbus.Publisher, opts ExclusionServiceOptions) *ExclusionService {
	if thresholds == nil {
		thresholds = compliance.NewThresholdResolver(backend, nil, 0)
	}
	if publisher == nil {
		publisher = eventbus.NoopPublisher{}
	}
	if opts.Settings == (exclusion.Settings{}) {
		opts.Settings = exclusion.DefaultSettings()
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = DefaultBatchConcurrency
	}

	// Registration order breaks confidence ties
	arbitrator := exclusion.NewArbitrator(
		exclusion.NewWeatherStrategy(),
		exclusion.NewPeakLoadStrategy(),
	)

	return &ExclusionService{
		Backend:     backend,
		Ledger:      ledger.New(backend),
		Thresholds:  thresholds,
		Arbitrator:  arbitrator,
		Publisher:   publisher,
		settings:    opts.Settings,
		concurrency: opts.BatchConcurrency,
		now:         time.Now,
	}
}

// WithClock pins the clock used for date defaults and decisions
func (s *ExclusionService) WithClock(now func() time.Time) *ExclusionService {
	s.now = now
	s.Ledger.WithClock(now)
	s.Arbitrator.WithClock(now)
	return s
}

// Settings returns the strategy configuration in effect
func (s *ExclusionService) Settings() exclusion.Settings {
	return s.settings
}

// evaluationScope is the preloaded, read-only input shared by a batch
type evaluationScope struct {
	thresholds *compliance.ParishThresholds
	weather    []exclusion.WeatherCandidate
	siblings   map[string][]db.Call // keyed by normalized response area
}

func (s *ExclusionService) loadScope(ctx context.Context, parishID int64, from, to time.Time) (*evaluationScope, error) {
	thresholds, err := s.Thresholds.Snapshot(ctx, parishID)
	if err != nil {
		return nil, err
	}

	scope := &evaluationScope{thresholds: thresholds, siblings: map[string][]db.Call{}}

	if s.settings.Weather.Enabled {
		events, err := s.Backend.ListWeatherEvents(ctx, from, to.Add(weatherLookahead), thresholds.State)
		if err != nil {
			return nil, fmt.Errorf("failed to load weather events: %w", err)
		}
		scope.weather = exclusion.PrepareWeatherEvents(events)
	}

	if s.settings.PeakLoad.Enabled {
		window := time.Duration(s.settings.PeakLoad.WindowMinutes) * time.Minute
		siblingFrom, siblingTo := from.Add(-window), to.Add(window)
		// Excluded calls still count towards concurrent load
		calls, err := s.Backend.ListCalls(ctx, db.CallFilter{ParishID: parishID, From: &siblingFrom, To: &siblingTo})
		if err != nil {
			return nil, fmt.Errorf("failed to load sibling calls: %w", err)
		}
		for _, c := range calls {
			area := compliance.NormalizeAreaName(c.ResponseArea)
			scope.siblings[area] = append(scope.siblings[area], c)
		}
	}

	return scope, nil
}

func (s *ExclusionService) evaluate(ctx context.Context, scope *evaluationScope, call db.Call) (exclusion.Decision, compliance.Classification) {
	minutes, source := scope.thresholds.Resolve(call.ResponseArea, s.Thresholds.DefaultMinutes())
	classification := compliance.Classify(call, minutes, source)

	sc := &exclusion.StrategyContext{
		Call:       call,
		Compliance: classification,
		Settings:   s.settings,
		Weather:    scope.weather,
		Siblings:   scope.siblings[compliance.NormalizeAreaName(call.ResponseArea)],
	}
	return s.Arbitrator.Evaluate(ctx, sc), classification
}

type callOutcome struct {
	call           db.Call
	classification compliance.Classification
	decision       exclusion.Decision
	applied        bool
}

// Detect evaluates every non-excluded call of a parish in the date range and,
// when requested, applies the AUTO exclusions the engine recommends.
func (s *ExclusionService) Detect(ctx context.Context, req db.DetectRequest) (*db.DetectResponse, error) {
	if req.ParishID <= 0 {
		return nil, &ledger.ValidationError{Field: "parish_id", Message: "must be a positive integer"}
	}
	from, to, err := s.parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	none := db.ExclusionNone
	calls, err := s.Backend.ListCalls(ctx, db.CallFilter{ParishID: req.ParishID, From: &from, To: &to, ExclusionType: &none})
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	log.Printf("Exclusion detect: parish %d, %s, %d candidate calls (apply=%t)",
		req.ParishID, displayRange(from, to), len(calls), req.ApplyExclusions)

	scope, err := s.loadScope(ctx, req.ParishID, from, to)
	if err != nil {
		return nil, err
	}

	outcomes := make([]callOutcome, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range calls {
		i := i
		g.Go(func() error {
			call := calls[i]
			decision, classification := s.evaluate(gctx, scope, call)
			outcome := callOutcome{call: call, classification: classification, decision: decision}

			if req.ApplyExclusions {
				applied, err := s.persist(gctx, call, decision, classification)
				if err != nil {
					return err
				}
				outcome.applied = applied
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp := summarize(outcomes, req.ApplyExclusions)
	log.Printf("Exclusion detect: parish %d evaluated=%d eligible=%d flagged=%d excluded=%d",
		req.ParishID, resp.Evaluated, resp.Eligible, resp.FlaggedForReview, resp.Excluded)
	return resp, nil
}

// persist writes the outcome of one evaluation through the ledger. Ledger
// invariant violations are logged and skipped so one inconsistent call does
// not abort the batch.
func (s *ExclusionService) persist(ctx context.Context, call db.Call, decision exclusion.Decision, classification compliance.Classification) (bool, error) {
	if !decision.IsExcluded {
		var err error
		if call.ExclusionType == db.ExclusionAuto {
			_, err = s.release(ctx, call, decision, classification)
		} else {
			err = s.Ledger.RecordClassification(ctx, call.ID, classification)
		}
		if err != nil && errors.Is(err, ledger.ErrInvariantViolation) {
			log.Printf("Exclusion detect: call %d skipped: %v", call.ID, err)
			return false, nil
		}
		return false, err
	}

	applied, err := s.Ledger.ApplyAutoDecision(ctx, decision, classification)
	if err != nil {
		if errors.Is(err, ledger.ErrInvariantViolation) {
			log.Printf("Exclusion detect: call %d skipped: %v", call.ID, err)
			return false, nil
		}
		return false, err
	}
	if applied {
		s.publish(eventbus.SubjectApplied, eventbus.ExclusionEvent{
			CallID:         call.ID,
			ResponseNumber: call.ResponseNumber,
			ParishID:       call.ParishID,
			Action:         db.LedgerActionExclude,
			ExclusionType:  string(db.ExclusionAuto),
			Strategy:       string(decision.PrimaryStrategy),
			Reason:         decision.PrimaryReason,
		})
	}
	return applied, nil
}

func summarize(outcomes []callOutcome, apply bool) *db.DetectResponse {
	resp := &db.DetectResponse{
		Evaluated:     len(outcomes),
		Applied:       apply,
		ExcludedCalls: []db.ExcludedCall{},
	}
	for _, o := range outcomes {
		if o.classification.IsOutOfCompliance != nil && *o.classification.IsOutOfCompliance {
			resp.Eligible++
		}
		if o.decision.IsExcluded {
			resp.Excluded++
			resp.ExcludedCalls = append(resp.ExcludedCalls, db.ExcludedCall{
				CallID:         o.call.ID,
				ResponseNumber: o.call.ResponseNumber,
				Strategy:       string(o.decision.PrimaryStrategy),
				Reason:         o.decision.PrimaryReason,
				Applied:        o.applied,
			})
			continue
		}
		if o.decision.HasRecommendation(exclusion.RecommendEligible) {
			resp.FlaggedForReview++
		}
	}
	return resp
}

// EvaluateCall runs the engine on one call, optionally applying the decision
func (s *ExclusionService) EvaluateCall(ctx context.Context, callID int64, apply bool) (*CallEvaluation, error) {
	call, err := s.Backend.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}

	from, to := evaluationWindow(*call)
	scope, err := s.loadScope(ctx, call.ParishID, from, to)
	if err != nil {
		return nil, err
	}

	decision, classification := s.evaluate(ctx, scope, *call)
	outcome := callOutcome{call: *call, classification: classification, decision: decision}
	if apply {
		if outcome.applied, err = s.persist(ctx, *call, decision, classification); err != nil {
			return nil, err
		}
	}

	return &CallEvaluation{
		DetectResponse: *summarize([]callOutcome{outcome}, apply),
		Classification: classification,
		Decision:       decision,
	}, nil
}

// evaluationWindow brackets the call's own timeline
func evaluationWindow(call db.Call) (time.Time, time.Time) {
	var times []time.Time
	for _, t := range []*time.Time{call.QueueTime, call.DispatchTime, call.ArrivalTime} {
		if t != nil {
			times = append(times, *t)
		}
	}
	if len(times) == 0 {
		return call.CreatedAt, call.CreatedAt.Add(time.Minute)
	}
	from, to := times[0], times[0]
	for _, t := range times[1:] {
		if t.Before(from) {
			from = t
		}
		if t.After(to) {
			to = t
		}
	}
	return from, to.Add(time.Minute)
}

// ManualExclusion excludes or un-excludes a call on behalf of a user
func (s *ExclusionService) ManualExclusion(ctx context.Context, callID int64, actor string, req db.ManualExclusionRequest) (*db.Call, error) {
	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action == "" {
		action = db.ManualActionExclude
	}

	var (
		call *db.Call
		err  error
	)
	switch action {
	case db.ManualActionExclude:
		call, err = s.Ledger.RecordManualExclusion(ctx, callID, actor, req.Reason)
	case db.ManualActionUnexclude:
		call, err = s.Ledger.RevertManualExclusion(ctx, callID, actor, req.Reason)
	default:
		return nil, &ledger.ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", req.Action)}
	}
	if err != nil {
		return nil, err
	}

	log.Printf("Manual %s of call %d by %s", action, callID, actor)
	s.publish(eventbus.SubjectManual, eventbus.ExclusionEvent{
		CallID:         call.ID,
		ResponseNumber: call.ResponseNumber,
		ParishID:       call.ParishID,
		Action:         action,
		ExclusionType:  string(db.ExclusionManual),
		Reason:         req.Reason,
		Actor:          actor,
	})
	return call, nil
}

// History returns the exclusion audit trail of a call
func (s *ExclusionService) History(ctx context.Context, callID int64) ([]db.ExclusionLogEntry, error) {
	return s.Ledger.History(ctx, callID)
}

// Reconcile re-evaluates AUTO-excluded calls in the range and releases those
// whose exclusion condition no longer holds. Manual exclusions are untouched.
func (s *ExclusionService) Reconcile(ctx context.Context, req db.DetectRequest) (*db.ReconcileResponse, error) {
	if req.ParishID <= 0 {
		return nil, &ledger.ValidationError{Field: "parish_id", Message: "must be a positive integer"}
	}
	from, to, err := s.parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	auto := db.ExclusionAuto
	calls, err := s.Backend.ListCalls(ctx, db.CallFilter{ParishID: req.ParishID, From: &from, To: &to, ExclusionType: &auto})
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}

	scope, err := s.loadScope(ctx, req.ParishID, from, to)
	if err != nil {
		return nil, err
	}

	resp := &db.ReconcileResponse{Evaluated: len(calls), CallIDs: []int64{}}
	for _, call := range calls {
		decision, classification := s.evaluate(ctx, scope, call)
		if decision.IsExcluded {
			continue
		}

		released, err := s.release(ctx, call, decision, classification)
		if err != nil {
			if errors.Is(err, ledger.ErrInvariantViolation) {
				log.Printf("Exclusion reconcile: call %d skipped: %v", call.ID, err)
				continue
			}
			return nil, err
		}
		if !released {
			continue
		}

		resp.Released++
		resp.CallIDs = append(resp.CallIDs, call.ID)
	}

	log.Printf("Exclusion reconcile: parish %d evaluated=%d released=%d", req.ParishID, resp.Evaluated, resp.Released)
	return resp, nil
}

// release reverts an AUTO exclusion the engine no longer recommends and
// writes the fresh classification in the same transaction.
func (s *ExclusionService) release(ctx context.Context, call db.Call, decision exclusion.Decision, classification compliance.Classification) (bool, error) {
	released, err := s.Ledger.ReleaseAutoExclusion(ctx, decision, classification)
	if err != nil || !released {
		return false, err
	}
	s.publish(eventbus.SubjectReleased, eventbus.ExclusionEvent{
		CallID:         call.ID,
		ResponseNumber: call.ResponseNumber,
		ParishID:       call.ParishID,
		Action:         db.LedgerActionUnexclude,
		ExclusionType:  string(db.ExclusionAuto),
		Strategy:       call.ExclusionStrategy,
		Reason:         "exclusion condition no longer holds",
	})
	return true, nil
}

// InvalidateThresholds drops cached thresholds; parishID 0 clears every parish
func (s *ExclusionService) InvalidateThresholds(ctx context.Context, parishID int64) {
	if parishID == 0 {
		s.Thresholds.InvalidateAll(ctx)
		return
	}
	s.Thresholds.Invalidate(ctx, parishID)
}

func (s *ExclusionService) publish(subject string, event eventbus.ExclusionEvent) {
	event.Timestamp = s.now().UTC()
	if err := s.Publisher.Publish(subject, event); err != nil {
		log.Printf("Failed to publish %s for call %d: %v", subject, event.CallID, err)
	}
}

// displayRange renders a half-open [from, to) day range with its inclusive last day
func displayRange(from, to time.Time) string {
	return from.Format(dateLayout) + " to " + to.AddDate(0, 0, -1).Format(dateLayout)
}

// parseRange turns inclusive YYYY-MM-DD dates into a half-open [from, to)
// range in UTC. A missing end means today; a missing start looks back
// DefaultDetectDays from the end.
func (s *ExclusionService) parseRange(start, end string) (time.Time, time.Time, error) {
	var endDay time.Time
	if strings.TrimSpace(end) == "" {
		now := s.now().UTC()
		endDay = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		d, err := time.Parse(dateLayout, strings.TrimSpace(end))
		if err != nil {
			return time.Time{}, time.Time{}, &ledger.ValidationError{Field: "end_date", Message: "must be YYYY-MM-DD"}
		}
		endDay = d
	}

	var from time.Time
	if strings.TrimSpace(start) == "" {
		from = endDay.AddDate(0, 0, -(DefaultDetectDays - 1))
	} else {
		d, err := time.Parse(dateLayout, strings.TrimSpace(start))
		if err != nil {
			return time.Time{}, time.Time{}, &ledger.ValidationError{Field: "start_date", Message: "must be YYYY-MM-DD"}
		}
		from = d
	}

	if from.After(endDay) {
		return time.Time{}, time.Time{}, &ledger.ValidationError{Field: "start_date", Message: "must not be after end_date"}
	}
	return from, endDay.AddDate(0, 0, 1), nil
}
