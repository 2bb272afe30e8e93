package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/query"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/subject"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH SNAPSHOTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// RefreshSnapshotsJob rebuilds the cached progress snapshot of every owner.
// Snapshots are invalidated eagerly on progress events; this job keeps the
// cache warm and repairs snapshots that went stale through missed
// invalidations or time passing (streaks decay with the calendar, not with
// writes).
type RefreshSnapshotsJob struct {
	subjects subject.Repository
	stats    *query.GetStatsSnapshotHandler
	logger   *slog.Logger

	config RefreshSnapshotsConfig
}

// RefreshSnapshotsConfig contains configuration for the job.
type RefreshSnapshotsConfig struct {
	// Timeout is the maximum duration for one run.
	Timeout time.Duration
}

// DefaultRefreshSnapshotsConfig returns sensible defaults.
func DefaultRefreshSnapshotsConfig() RefreshSnapshotsConfig {
	return RefreshSnapshotsConfig{
		Timeout: 5 * time.Minute,
	}
}

// NewRefreshSnapshotsJob creates the job.
func NewRefreshSnapshotsJob(
	subjects subject.Repository,
	stats *query.GetStatsSnapshotHandler,
	logger *slog.Logger,
	config RefreshSnapshotsConfig,
) *RefreshSnapshotsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshSnapshotsJob{
		subjects: subjects,
		stats:    stats,
		logger:   logger,
		config:   config,
	}
}

// Name implements scheduler.Job.
func (j *RefreshSnapshotsJob) Name() string {
	return "refresh_snapshots"
}

// Description implements scheduler.Job.
func (j *RefreshSnapshotsJob) Description() string {
	return "Rebuilds cached progress snapshots for all owners"
}

// Run implements scheduler.Job.
func (j *RefreshSnapshotsJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	owners, err := j.subjects.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("refresh_snapshots: failed to list owners: %w", err)
	}

	refreshed, failed := 0, 0
	for _, ownerID := range owners {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// SkipCache forces a rebuild; the handler re-caches the result.
		_, err := j.stats.Handle(ctx, query.GetStatsSnapshotQuery{
			UserID:    ownerID.String(),
			SkipCache: true,
		})
		if err != nil {
			failed++
			j.logger.Warn("failed to refresh snapshot",
				"user_id", ownerID.String(),
				"error", err,
			)
			continue
		}
		refreshed++
	}

	j.logger.Info("snapshot refresh completed",
		"refreshed", refreshed,
		"failed", failed,
	)

	return nil
}
