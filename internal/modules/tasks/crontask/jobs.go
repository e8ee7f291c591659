package crontask

import (
	"context"
	"fmt"
	"time"

	"github.com/mx-space/sentinel/internal/config"
	"github.com/mx-space/sentinel/internal/modules/enforcement"
	"github.com/mx-space/sentinel/internal/modules/moderation"
	pkgcron "github.com/mx-space/sentinel/internal/pkg/cron"
	"github.com/mx-space/sentinel/internal/pkg/taskqueue"
)

const (
	JobProcessScanQueue     = "process_scan_queue"
	JobReconcileRiskScores  = "reconcile_risk_scores"
	JobExpireCreatorActions = "expire_creator_actions"
	JobPurgeFinishedTasks   = "purge_finished_tasks"

	finishedTaskRetention = 24 * time.Hour
)

// Deps are the services the background jobs drive. Tasks may be nil when
// Redis is not configured; the queue jobs are then skipped.
type Deps struct {
	Moderation *moderation.Service
	Ledger     *enforcement.Ledger
	Tasks      *taskqueue.Service
	Jobs       config.JobsConfig
}

// Register adds the moderation background jobs to sched.
func Register(sched *pkgcron.Scheduler, d Deps) {
	if d.Tasks != nil {
		sched.Register(pkgcron.Job{
			Name:        JobProcessScanQueue,
			Description: "Run queued detector scans and submit their signals",
			Interval:    d.Jobs.ScanQueueInterval,
			Fn: func(ctx context.Context) (string, error) {
				n, err := d.Moderation.ProcessScanQueue(ctx, d.Tasks, d.Jobs.ScanBatchSize)
				return fmt.Sprintf("processed %d scans", n), err
			},
		})
		sched.Register(pkgcron.Job{
			Name:        JobPurgeFinishedTasks,
			Description: "Delete finished queue tasks older than a day",
			Interval:    finishedTaskRetention,
			Fn: func(ctx context.Context) (string, error) {
				before := time.Now().Add(-finishedTaskRetention).UnixMilli()
				n, err := d.Tasks.DeleteCompleted(ctx, before)
				return fmt.Sprintf("deleted %d tasks", n), err
			},
		})
	}

	sched.Register(pkgcron.Job{
		Name:        JobReconcileRiskScores,
		Description: "Recompute stored risk scores from their signals",
		Interval:    d.Jobs.ReconcileInterval,
		Fn: func(ctx context.Context) (string, error) {
			n, err := d.Moderation.ReconcileRiskScores(ctx)
			return fmt.Sprintf("repaired %d records", n), err
		},
	})

	sched.Register(pkgcron.Job{
		Name:        JobExpireCreatorActions,
		Description: "Expire temporary shadowbans and suspensions",
		Interval:    d.Jobs.ExpireInterval,
		Fn: func(ctx context.Context) (string, error) {
			n, err := d.Ledger.ExpireTemporary(ctx)
			return fmt.Sprintf("expired %d actions", n), err
		},
	})
}
