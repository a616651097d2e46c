// Package sweeper is the periodic full-resync runner: on its cron it
// restarts every known scenario's backfill walk and requests a refresh
// for each scenario and conversation in the replica, so history is
// eventually re-pulled even for resources the UI no longer reads.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"scenefeed/pkg/config"
	"scenefeed/pkg/logger"
	"scenefeed/pkg/store"
	"scenefeed/pkg/syncer"
)

// Start starts the sweep scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.SweepConfig, st *store.Store, sched *syncer.Scheduler) (context.CancelFunc, error) {
	if !cfg.Enabled || sched == nil {
		logger.Info("sweep_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "*/15 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("sweep_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid sweep cron expression: %s", cfg.Cron)
	}

	logger.Info("sweep_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, st, sched)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func runScheduler(ctx context.Context, cronExpr string, st *store.Store, sched *syncer.Scheduler) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("sweep_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("sweep_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			RunOnce(st, sched)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				logger.Info("sweep_scheduler_stopping")
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			RunOnce(st, sched)
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		}
	}
}

// RunOnce walks the replica and requests a refresh for every scenario
// and conversation. Backfill cursors are reset first so each sweep
// restarts the older-data walk from the top. Admission control in the
// scheduler still applies; a sweep cannot flood the backend.
func RunOnce(st *store.Store, sched *syncer.Scheduler) {
	snap := st.Snapshot()
	scenarios := snap.Scenarios()
	for _, sid := range scenarios {
		sched.ResetBackfill(sid)
		sched.RequestFeedSync(sid)
	}
	for id, conv := range snap.Conversations {
		sched.RequestMessageSync(conv.ScenarioID, id)
	}
	logger.Info("sweep_completed", "scenarios", len(scenarios), "conversations", len(snap.Conversations))
}
