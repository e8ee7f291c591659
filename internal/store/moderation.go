package store

import (
	"context"
	"time"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// GetModeration loads the moderation record of a content item.
func (s *Store) GetModeration(ctx context.Context, contentID string) (*models.ModerationRecord, error) {
	var rec models.ModerationRecord
	if err := s.conn(ctx).Where("content_id = ?", contentID).First(&rec).Error; err != nil {
		return nil, lookupErr("get moderation", "moderation record", contentID, err)
	}
	return &rec, nil
}

// CreateModeration inserts a new record at version 0. A concurrent insert for
// the same content is reported as a conflict so the caller re-reads.
func (s *Store) CreateModeration(ctx context.Context, rec *models.ModerationRecord) error {
	rec.Version = 0
	rec.SyncColumns()
	if err := s.conn(ctx).Create(rec).Error; err != nil {
		if s.moderationExists(ctx, rec.Content.ID) {
			return apperr.Conflict("moderation record %s already exists", rec.Content.ID)
		}
		return apperr.Storage("create moderation", err)
	}
	return nil
}

// SaveModeration persists rec if nobody saved it since expectedVersion.
func (s *Store) SaveModeration(ctx context.Context, rec *models.ModerationRecord, expectedVersion int64) error {
	rec.SyncColumns()
	return s.saveVersioned(ctx, "save moderation", rec, &models.ModerationRecord{}, &rec.Version, expectedVersion, rec.ID)
}

func (s *Store) moderationExists(ctx context.Context, contentID string) bool {
	var n int64
	s.conn(ctx).Model(&models.ModerationRecord{}).Where("content_id = ?", contentID).Count(&n)
	return n > 0
}

// PendingReviews returns records awaiting a human decision, oldest first.
func (s *Store) PendingReviews(ctx context.Context, limit int) ([]models.ModerationRecord, error) {
	var out []models.ModerationRecord
	err := s.conn(ctx).
		Where("review_required = ? AND review_completed = ? AND status IN ?", true, false, openStatuses).
		Order("created_at ASC").Order("id ASC").
		Limit(clampLimit(limit, defaultListLimit, maxListLimit)).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("pending reviews", err)
	}
	return out, nil
}

// openStatuses are the states a high-risk item can still be acted on in.
var openStatuses = []models.ModerationStatus{
	models.ModerationPending, models.ModerationFlagged, models.ModerationUnderReview,
}

// HighRisk returns undecided records scoring at least threshold, riskiest first.
func (s *Store) HighRisk(ctx context.Context, threshold, limit int) ([]models.ModerationRecord, error) {
	var out []models.ModerationRecord
	err := s.conn(ctx).
		Where("risk_score >= ? AND status IN ?", threshold, openStatuses).
		Order("risk_score DESC").Order("created_at ASC").
		Limit(clampLimit(limit, defaultListLimit, maxListLimit)).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("high risk", err)
	}
	return out, nil
}

// PendingAppeals returns records with an unresolved appeal, oldest filing first.
func (s *Store) PendingAppeals(ctx context.Context, limit int) ([]models.ModerationRecord, error) {
	var out []models.ModerationRecord
	err := s.conn(ctx).
		Where("status = ?", models.ModerationAppealed).
		Order("updated_at ASC").
		Limit(clampLimit(limit, defaultListLimit, maxListLimit)).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("pending appeals", err)
	}
	return out, nil
}

// CreatorViolations returns a creator's records assessed high risk or worse,
// newest first.
func (s *Store) CreatorViolations(ctx context.Context, creatorID string, limit int) ([]models.ModerationRecord, error) {
	var out []models.ModerationRecord
	err := s.conn(ctx).
		Where("creator_id = ? AND risk_level IN ?", creatorID, []models.RiskLevel{models.RiskHigh, models.RiskCritical}).
		Order("created_at DESC").Order("id DESC").
		Limit(clampLimit(limit, defaultListLimit, maxListLimit)).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("creator violations", err)
	}
	return out, nil
}

// FlaggedBySignal returns records whose latest scan detected signal,
// riskiest first.
func (s *Store) FlaggedBySignal(ctx context.Context, signal models.SignalName, limit int) ([]models.ModerationRecord, error) {
	var out []models.ModerationRecord
	err := s.conn(ctx).
		Where("flagged_signals LIKE ?", "%,"+string(signal)+",%").
		Order("risk_score DESC").Order("created_at DESC").
		Limit(clampLimit(limit, defaultListLimit, maxListLimit)).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("flagged by signal", err)
	}
	return out, nil
}

// ModerationPage returns up to limit records with id greater than afterID,
// ordered by id. Used for keyset iteration by background jobs.
func (s *Store) ModerationPage(ctx context.Context, afterID string, limit int) ([]models.ModerationRecord, error) {
	var out []models.ModerationRecord
	err := s.conn(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(clampLimit(limit, defaultListLimit, maxListLimit)).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("moderation page", err)
	}
	return out, nil
}

// StatusCount is one row of the status breakdown.
type StatusCount struct {
	Status models.ModerationStatus `json:"status"`
	Count  int64                   `json:"count"`
}

// ModerationSummary aggregates records created since a cutoff.
type ModerationSummary struct {
	Since        time.Time     `json:"since"`
	Total        int64         `json:"total"`
	ByStatus     []StatusCount `json:"byStatus"`
	AvgRiskScore float64       `json:"avgRiskScore"`
}

// SummarizeModeration groups records created at or after since by status.
func (s *Store) SummarizeModeration(ctx context.Context, since time.Time) (*ModerationSummary, error) {
	out := &ModerationSummary{Since: since, ByStatus: []StatusCount{}}

	err := s.conn(ctx).Model(&models.ModerationRecord{}).
		Select("status, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("status").
		Order("status ASC").
		Scan(&out.ByStatus).Error
	if err != nil {
		return nil, apperr.Storage("summarize moderation", err)
	}
	for _, row := range out.ByStatus {
		out.Total += row.Count
	}

	var avg struct{ Avg *float64 }
	err = s.conn(ctx).Model(&models.ModerationRecord{}).
		Select("AVG(risk_score) AS avg").
		Where("created_at >= ?", since).
		Scan(&avg).Error
	if err != nil {
		return nil, apperr.Storage("summarize moderation", err)
	}
	if avg.Avg != nil {
		out.AvgRiskScore = *avg.Avg
	}
	return out, nil
}
