// Package retention periodically purges message records nobody can see any
// longer: entries both participants deleted for themselves, and
// delete-for-everyone tombstones older than the configured period.
package retention

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/adhocore/gronx"

	"duochat/pkg/config"
	"duochat/pkg/logger"
	"duochat/pkg/metrics"
	"duochat/pkg/state"
	"duochat/pkg/store"
)

var storedEff *config.EffectiveConfigResult

// SetEffectiveConfig stores the effective config so tests (or admin
// triggers) can invoke retention runs on-demand.
func SetEffectiveConfig(eff config.EffectiveConfigResult) {
	storedEff = &eff
}

// RunImmediate triggers a single retention run using the stored effective
// config.
func RunImmediate() error {
	if storedEff == nil {
		return fmt.Errorf("no effective config registered for retention run")
	}
	return runOnce(context.Background(), *storedEff)
}

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, eff config.EffectiveConfigResult) (context.CancelFunc, error) {
	ret := eff.Config.Retention
	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	retentionPath := state.PathsVar.Retention
	if retentionPath != "" {
		if err := os.MkdirAll(retentionPath, 0o700); err != nil {
			logger.Error("retention_path_create_failed", "path", retentionPath, "error", err)
			return nil, err
		}
	}

	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", ret.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", time.Duration(ret.Period).String())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, eff, cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick for the cron expression with gronx and
// sleeps until then.
func runScheduler(ctx context.Context, eff config.EffectiveConfigResult, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := runOnce(ctx, eff); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// runOnce walks every conversation and purges what nobody can see.
func runOnce(ctx context.Context, eff config.EffectiveConfigResult) error {
	ret := eff.Config.Retention
	var cutoff int64
	if ret.Period > 0 {
		cutoff = time.Now().UTC().Add(-time.Duration(ret.Period)).UnixNano()
	}

	convs, err := store.ListConversations()
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	total := 0
	for _, c := range convs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := store.SweepConversation(c, cutoff, ret.DryRun)
		if err != nil {
			logger.Error("retention_sweep_failed", "conversation", c.ID, "error", err)
			continue
		}
		total += n
	}
	if !ret.DryRun {
		metrics.RetentionPurged.Add(float64(total))
	}
	logger.Info("retention_run_complete", "purged", total, "dry_run", ret.DryRun, "conversations", len(convs))
	return nil
}
