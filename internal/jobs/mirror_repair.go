// Package jobs holds periodic background maintenance.
package jobs

import (
	"context"
	"time"

	"github.com/HammerMeetNail/levelup/internal/logging"
	"github.com/HammerMeetNail/levelup/internal/services"
)

const defaultRepairTimeout = 2 * time.Minute

type MirrorRepairer interface {
	RepairMirrors(ctx context.Context) (services.RepairReport, error)
}

type RepairRecorder interface {
	MirrorsRepaired(friendships, superseded, orphaned int64)
}

// StartMirrorRepairJob runs RepairMirrors every interval until ctx is done.
// A non-positive interval disables the job.
func StartMirrorRepairJob(ctx context.Context, interval time.Duration, repairer MirrorRepairer, recorder RepairRecorder) {
	if interval <= 0 {
		logging.Info("Mirror repair job disabled", nil)
		return
	}
	if repairer == nil {
		logging.Warn("Mirror repair job disabled: no repairer configured", nil)
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runMirrorRepair(ctx, repairer, recorder)
			}
		}
	}()
}

func runMirrorRepair(ctx context.Context, repairer MirrorRepairer, recorder RepairRecorder) {
	tickCtx, cancel := context.WithTimeout(ctx, defaultRepairTimeout)
	defer cancel()

	report, err := repairer.RepairMirrors(tickCtx)
	if err != nil {
		logging.Error("Mirror repair job failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if recorder != nil {
		recorder.MirrorsRepaired(report.FriendshipsRestored, report.SupersededRequests, report.OrphanedRequests)
	}
	if report.Total() > 0 {
		logging.Info("Mirror repair job fixed one-sided records", map[string]interface{}{
			"friendships_restored": report.FriendshipsRestored,
			"superseded_requests":  report.SupersededRequests,
			"orphaned_requests":    report.OrphanedRequests,
		})
	}
}
