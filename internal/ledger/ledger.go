// Package ledger is the only writer of call compliance and exclusion state.
// Every entry point runs in one transaction: the call row and its audit row
// change together or not at all.
package ledger

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/compliance"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/exclusion"
)

type Ledger struct {
	store Store
	now   func() time.Time
	newID func() string
}

func New(store Store) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// WithClock replaces the clock used for audit timestamps
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) withTx(ctx context.Context, fn func(Tx) error) error {
	err := l.store.WithTx(ctx, fn)
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// RecordManualExclusion marks the call MANUAL-excluded and appends an
// active audit entry.
func (l *Ledger) RecordManualExclusion(ctx context.Context, callID int64, actor, reason string) (*db.Call, error) {
	actor, reason = strings.TrimSpace(actor), strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "must not be blank"}
	}
	if actor == "" {
		return nil, &ValidationError{Field: "actor", Message: "authenticated actor required"}
	}

	var updated *db.Call
	err := l.withTx(ctx, func(tx Tx) error {
		call, err := tx.GetCall(ctx, callID)
		if err != nil {
			return err
		}
		if call.IsExcluded() {
			return violation(CodeAlreadyExcluded, callID, "call is already %s excluded", call.ExclusionType)
		}
		if err := l.ensureNoActiveEntry(ctx, tx, callID); err != nil {
			return err
		}

		now := l.now().UTC()
		entry := db.ExclusionLogEntry{
			ID:            l.newID(),
			CallID:        callID,
			ExclusionType: db.ExclusionManual,
			Action:        db.LedgerActionExclude,
			Reason:        reason,
			Actor:         &actor,
			CreatedAt:     now,
		}
		inserted, err := tx.InsertLogEntry(ctx, entry)
		if err != nil {
			return fmt.Errorf("failed to append manual exclusion entry: %w", err)
		}
		if !inserted {
			return violation(CodeLedgerMismatch, callID, "another exclusion became active concurrently")
		}

		ex := &db.CallExclusion{
			Type:   db.ExclusionManual,
			Reason: reason,
			By:     actor,
			At:     now,
		}
		if err := tx.SetCallExclusion(ctx, callID, ex); err != nil {
			return fmt.Errorf("failed to update call exclusion: %w", err)
		}
		applyExclusion(call, ex)
		updated = call
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RevertManualExclusion clears a MANUAL exclusion. AUTO exclusions are
// released only when their strategy stops recommending them.
func (l *Ledger) RevertManualExclusion(ctx context.Context, callID int64, actor, revertReason string) (*db.Call, error) {
	actor, revertReason = strings.TrimSpace(actor), strings.TrimSpace(revertReason)
	if revertReason == "" {
		return nil, &ValidationError{Field: "reason", Message: "must not be blank"}
	}
	if actor == "" {
		return nil, &ValidationError{Field: "actor", Message: "authenticated actor required"}
	}

	var updated *db.Call
	err := l.withTx(ctx, func(tx Tx) error {
		call, err := tx.GetCall(ctx, callID)
		if err != nil {
			return err
		}
		switch call.ExclusionType {
		case db.ExclusionNone:
			return violation(CodeNotExcluded, callID, "call has no active exclusion")
		case db.ExclusionManual:
		default:
			return violation(CodeNotManual, callID, "%s exclusions cannot be reverted manually", call.ExclusionType)
		}

		if err := l.revertActive(ctx, tx, call, &actor, revertReason, map[string]any{}); err != nil {
			return err
		}
		updated = call
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApplyAutoDecision persists an arbitrated AUTO exclusion together with the
// classification it was based on. It returns false when nothing was written:
// the call is already excluded (MANUAL is never overridden) or a concurrent
// run already recorded the same decision.
func (l *Ledger) ApplyAutoDecision(ctx context.Context, decision exclusion.Decision, classification compliance.Classification) (bool, error) {
	primary := decision.Primary()
	if primary == nil {
		return false, &ValidationError{Field: "decision", Message: "decision does not recommend exclusion"}
	}

	applied := false
	err := l.withTx(ctx, func(tx Tx) error {
		call, err := tx.GetCall(ctx, decision.CallID)
		if err != nil {
			return err
		}
		if call.IsExcluded() {
			log.Printf("ledger: call %d already %s excluded, skipping %s decision", call.ID, call.ExclusionType, primary.StrategyKey)
			return nil
		}
		if err := l.ensureNoActiveEntry(ctx, tx, call.ID); err != nil {
			return err
		}

		now := l.now().UTC()
		metadata := decisionMetadata(decision, *primary)
		inserted, err := tx.InsertLogEntry(ctx, db.ExclusionLogEntry{
			ID:            l.newID(),
			CallID:        call.ID,
			ExclusionType: db.ExclusionAuto,
			Action:        db.LedgerActionExclude,
			StrategyKey:   string(primary.StrategyKey),
			DedupeKey:     primary.DedupeKey,
			Reason:        primary.Reason,
			Metadata:      metadata,
			CreatedAt:     now,
		})
		if err != nil {
			return fmt.Errorf("failed to append auto exclusion entry: %w", err)
		}
		if !inserted {
			log.Printf("ledger: duplicate %s decision for call %d ignored", primary.StrategyKey, call.ID)
			return nil
		}

		if err := tx.SetCallCompliance(ctx, call.ID, classification); err != nil {
			return fmt.Errorf("failed to update call compliance: %w", err)
		}
		ex := &db.CallExclusion{
			Type:     db.ExclusionAuto,
			Reason:   primary.Reason,
			Strategy: string(primary.StrategyKey),
			By:       db.GetSystemActorByStrategy(string(primary.StrategyKey)),
			At:       now,
			Metadata: metadata,
		}
		if err := tx.SetCallExclusion(ctx, call.ID, ex); err != nil {
			return fmt.Errorf("failed to update call exclusion: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ReleaseAutoExclusion reverts an AUTO exclusion whose condition no longer
// holds. Calls that are not AUTO-excluded are left untouched.
func (l *Ledger) ReleaseAutoExclusion(ctx context.Context, decision exclusion.Decision, classification compliance.Classification) (bool, error) {
	if decision.IsExcluded {
		return false, &ValidationError{Field: "decision", Message: "decision still recommends exclusion"}
	}

	released := false
	err := l.withTx(ctx, func(tx Tx) error {
		call, err := tx.GetCall(ctx, decision.CallID)
		if err != nil {
			return err
		}
		if call.ExclusionType != db.ExclusionAuto {
			return nil
		}

		metadata := map[string]any{
			"engine_version": decision.Metadata.EngineVersion,
			"evaluated_at":   decision.Metadata.EvaluatedAt.Format(time.RFC3339),
			"results":        decision.Results,
		}
		if err := l.revertActive(ctx, tx, call, nil, "exclusion condition no longer holds", metadata); err != nil {
			return err
		}
		if err := tx.SetCallCompliance(ctx, call.ID, classification); err != nil {
			return fmt.Errorf("failed to update call compliance: %w", err)
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

// RecordClassification persists the derived compliance fields of a call.
// AUTO-excluded calls are refused: their compliance only changes together
// with the exclusion, through ApplyAutoDecision or ReleaseAutoExclusion.
func (l *Ledger) RecordClassification(ctx context.Context, callID int64, classification compliance.Classification) error {
	return l.withTx(ctx, func(tx Tx) error {
		call, err := tx.GetCall(ctx, callID)
		if err != nil {
			return err
		}
		if call.ExclusionType == db.ExclusionAuto {
			return violation(CodeLedgerMismatch, callID, "call is AUTO-excluded; release the exclusion instead")
		}
		return tx.SetCallCompliance(ctx, callID, classification)
	})
}

// History returns the audit trail of a call, oldest first
func (l *Ledger) History(ctx context.Context, callID int64) ([]db.ExclusionLogEntry, error) {
	if _, err := l.store.GetCall(ctx, callID); err != nil {
		return nil, err
	}
	entries, err := l.store.ListLogEntries(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exclusion log: %w", err)
	}
	return entries, nil
}

// revertActive marks the active entry reverted, appends an unexclude row
// that is never active, and clears the call.
func (l *Ledger) revertActive(ctx context.Context, tx Tx, call *db.Call, actor *string, reason string, metadata map[string]any) error {
	active, err := tx.GetActiveLogEntry(ctx, call.ID)
	if err != nil {
		return fmt.Errorf("failed to load active exclusion entry: %w", err)
	}
	if active == nil || active.ExclusionType != call.ExclusionType {
		return violation(CodeLedgerMismatch, call.ID, "call is %s excluded but the audit log disagrees", call.ExclusionType)
	}

	now := l.now().UTC()
	if err := tx.MarkLogEntryReverted(ctx, active.ID, now, actor, reason); err != nil {
		return fmt.Errorf("failed to revert exclusion entry: %w", err)
	}

	metadata["reverts"] = active.ID
	revertReason := reason
	if _, err := tx.InsertLogEntry(ctx, db.ExclusionLogEntry{
		ID:            l.newID(),
		CallID:        call.ID,
		ExclusionType: call.ExclusionType,
		Action:        db.LedgerActionUnexclude,
		StrategyKey:   active.StrategyKey,
		DedupeKey:     active.DedupeKey,
		Reason:        reason,
		Actor:         actor,
		Metadata:      metadata,
		CreatedAt:     now,
		RevertedAt:    &now,
		RevertedBy:    actor,
		RevertReason:  &revertReason,
	}); err != nil {
		return fmt.Errorf("failed to append unexclude entry: %w", err)
	}

	if err := tx.SetCallExclusion(ctx, call.ID, nil); err != nil {
		return fmt.Errorf("failed to clear call exclusion: %w", err)
	}
	applyExclusion(call, nil)
	return nil
}

func (l *Ledger) ensureNoActiveEntry(ctx context.Context, tx Tx, callID int64) error {
	active, err := tx.GetActiveLogEntry(ctx, callID)
	if err != nil {
		return fmt.Errorf("failed to load active exclusion entry: %w", err)
	}
	if active != nil {
		return violation(CodeLedgerMismatch, callID, "call is not excluded but entry %s is active", active.ID)
	}
	return nil
}

func decisionMetadata(decision exclusion.Decision, primary exclusion.StrategyResult) map[string]any {
	return map[string]any{
		"engine_version":       decision.Metadata.EngineVersion,
		"evaluated_at":         decision.Metadata.EvaluatedAt.Format(time.RFC3339),
		"strategies_evaluated": decision.Metadata.StrategiesEvaluated,
		"confidence":           primary.Confidence,
		"primary":              primary.Metadata,
		"results":              decision.Results,
	}
}

func applyExclusion(call *db.Call, ex *db.CallExclusion) {
	if ex == nil {
		call.ExclusionType = db.ExclusionNone
		call.ExclusionReason = ""
		call.ExclusionStrategy = ""
		call.ExcludedAt = nil
		call.ExcludedBy = ""
		call.ExclusionMetadata = nil
		return
	}
	at := ex.At
	call.ExclusionType = ex.Type
	call.ExclusionReason = ex.Reason
	call.ExclusionStrategy = ex.Strategy
	call.ExcludedAt = &at
	call.ExcludedBy = ex.By
	call.ExclusionMetadata = ex.Metadata
}
