package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

// TaskTypeScan is the task queue type of asynchronous scans.
const TaskTypeScan = "moderation.scan"

// TaskQueue is the part of taskqueue.Service the scan pipeline uses.
type TaskQueue interface {
	Enqueue(ctx context.Context, taskType string, payload interface{}, dedupKey, groupKey string) (*taskqueue.Task, error)
	ClaimPending(ctx context.Context, taskType string, n int) ([]*taskqueue.Task, error)
	UpdateStatus(ctx context.Context, id string, status taskqueue.TaskStatus, result interface{}, errMsg string) error
}

// EnqueueScan queues content for detection. A scan of the same content that
// has not run yet is returned instead of a second one.
func (s *Service) EnqueueScan(ctx context.Context, q TaskQueue, in ScanInput) (*taskqueue.Task, error) {
	if err := validateRef(in.Content, in.CreatorID); err != nil {
		return nil, err
	}
	payload := ScanTask{
		ContentID:   in.Content.ID,
		ContentKind: string(in.Content.Kind),
		CreatorID:   in.CreatorID,
		Text:        in.Text,
		MediaURLs:   in.MediaURLs,
	}
	return q.Enqueue(ctx, TaskTypeScan, payload, in.Content.ID, in.CreatorID)
}

type scanResult struct {
	Status    models.ModerationStatus `json:"status"`
	RiskScore int                     `json:"riskScore"`
	Cycle     int                     `json:"cycle"`
}

// ProcessScanQueue runs up to batch queued scans and reports how many
// completed. A failing scan marks its task failed and does not stop the batch.
func (s *Service) ProcessScanQueue(ctx context.Context, q TaskQueue, batch int) (int, error) {
	tasks, err := q.ClaimPending(ctx, TaskTypeScan, batch)
	if err != nil {
		return 0, fmt.Errorf("claim scans: %w", err)
	}
	done := 0
	var errs []error
	for _, task := range tasks {
		rec, err := s.runScanTask(ctx, task)
		if err != nil {
			s.logger.Warn("queued scan failed", zap.String("task", task.ID), zap.Error(err))
			if uerr := q.UpdateStatus(ctx, task.ID, taskqueue.TaskFailed, nil, err.Error()); uerr != nil {
				errs = append(errs, uerr)
			}
			continue
		}
		res := scanResult{Status: rec.Status, RiskScore: rec.RiskScore, Cycle: rec.Cycle}
		if err := q.UpdateStatus(ctx, task.ID, taskqueue.TaskCompleted, res, ""); err != nil {
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

func (s *Service) runScanTask(ctx context.Context, task *taskqueue.Task) (*models.ModerationRecord, error) {
	var payload ScanTask
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode scan payload: %w", err)
	}
	return s.Scan(ctx, payload.Input())
}
