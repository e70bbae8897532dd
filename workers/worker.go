package workers

import (
	"context"
	"log"
	"time"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/services"
)

// DetectWorker periodically runs detect-and-apply, then reconcile, for the
// configured parishes over a short look-back window.
type DetectWorker struct {
	ExclusionService *services.ExclusionService
	Parishes         []int64
	Interval         time.Duration
	LookbackDays     int

	now func() time.Time
}

func NewDetectWorker(exclusionService *services.ExclusionService, parishes []int64, interval time.Duration, lookbackDays int) *DetectWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if lookbackDays <= 0 {
		lookbackDays = 2
	}
	return &DetectWorker{
		ExclusionService: exclusionService,
		Parishes:         parishes,
		Interval:         interval,
		LookbackDays:     lookbackDays,
		now:              time.Now,
	}
}

// StartDetectWorker runs until the context is cancelled
func (w *DetectWorker) StartDetectWorker(ctx context.Context) {
	log.Printf("Detect worker started, %d parishes every %s", len(w.Parishes), w.Interval)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("Detect worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce processes every parish; a failing parish does not stop the others
func (w *DetectWorker) RunOnce(ctx context.Context) {
	end := w.now().UTC()
	req := db.DetectRequest{
		StartDate:       end.AddDate(0, 0, -(w.LookbackDays - 1)).Format("2006-01-02"),
		EndDate:         end.Format("2006-01-02"),
		ApplyExclusions: true,
	}

	for _, parishID := range w.Parishes {
		req.ParishID = parishID

		resp, err := w.ExclusionService.Detect(ctx, req)
		if err != nil {
			log.Printf("Detect worker: parish %d detect failed: %v", parishID, err)
			continue
		}

		reconciled, err := w.ExclusionService.Reconcile(ctx, req)
		if err != nil {
			log.Printf("Detect worker: parish %d reconcile failed: %v", parishID, err)
			continue
		}

		log.Printf("Detect worker: parish %d evaluated=%d excluded=%d released=%d",
			parishID, resp.Evaluated, resp.Excluded, reconciled.Released)
	}
}
