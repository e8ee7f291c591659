package store

import (
	"context"
	"errors"
	"time"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FindStrike returns the entry with the given dedup identity, or nil.
func (s *Store) FindStrike(ctx context.Context, creatorID, contentID string, actionType models.ActionType, dedupKey string) (*models.StrikeEntry, error) {
	var e models.StrikeEntry
	err := s.conn(ctx).
		Where("creator_id = ? AND content_id = ? AND action_type = ? AND dedup_key = ?",
			creatorID, contentID, actionType, dedupKey).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("find strike", err)
	}
	return &e, nil
}

func (s *Store) CreateStrike(ctx context.Context, e *models.StrikeEntry) error {
	return apperr.Storage("create strike", s.conn(ctx).Create(e).Error)
}

func (s *Store) GetStrike(ctx context.Context, id string) (*models.StrikeEntry, error) {
	var e models.StrikeEntry
	if err := s.conn(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, lookupErr("get strike", "strike", id, err)
	}
	return &e, nil
}

// MarkStrikeReversed flips an entry to reversed. It reports false when the
// entry was already reversed.
func (s *Store) MarkStrikeReversed(ctx context.Context, id, by, reason string, at time.Time) (bool, error) {
	res := s.conn(ctx).Model(&models.StrikeEntry{}).
		Where("id = ? AND reversed = ?", id, false).
		Updates(map[string]interface{}{
			"reversed":       true,
			"reversed_at":    at,
			"reversed_by":    by,
			"reverse_reason": reason,
		})
	if res.Error != nil {
		return false, apperr.Storage("reverse strike", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkStrikeExpired flips an entry to expired. It reports false when the
// entry was already expired or reversed.
func (s *Store) MarkStrikeExpired(ctx context.Context, id string) (bool, error) {
	res := s.conn(ctx).Model(&models.StrikeEntry{}).
		Where("id = ? AND expired = ? AND reversed = ?", id, false, false).
		Update("expired", true)
	if res.Error != nil {
		return false, apperr.Storage("expire strike", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Strikes returns a creator's log, newest first.
func (s *Store) Strikes(ctx context.Context, creatorID string) ([]models.StrikeEntry, error) {
	var out []models.StrikeEntry
	err := s.conn(ctx).Where("creator_id = ?", creatorID).Order("applied_at DESC").Order("id DESC").Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("list strikes", err)
	}
	return out, nil
}

// LatestStrike returns the newest unreversed entry on a content item raised
// by source with one of the given action types, or nil.
func (s *Store) LatestStrike(ctx context.Context, contentID string, source models.SourceEngine, types ...models.ActionType) (*models.StrikeEntry, error) {
	var e models.StrikeEntry
	q := s.conn(ctx).Where("content_id = ? AND source_engine = ? AND reversed = ?", contentID, source, false)
	if len(types) > 0 {
		q = q.Where("action_type IN ?", types)
	}
	err := q.Order("applied_at DESC").Order("id DESC").First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("latest strike", err)
	}
	return &e, nil
}

// DueTemporaryStrikes returns entries whose expiry passed and that are not
// yet marked expired.
func (s *Store) DueTemporaryStrikes(ctx context.Context, now time.Time, limit int) ([]models.StrikeEntry, error) {
	var out []models.StrikeEntry
	err := s.conn(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ? AND expired = ? AND reversed = ?", now, false, false).
		Order("expires_at ASC").
		Limit(clampLimit(limit, defaultListLimit, maxListLimit)).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("due strikes", err)
	}
	return out, nil
}

// IncrementStrikes adds one to a creator's counter, creating the standing
// row on first use.
func (s *Store) IncrementStrikes(ctx context.Context, creatorID string, at time.Time) error {
	row := models.CreatorStanding{CreatorID: creatorID, StrikeCount: 1, CreatedAt: at, UpdatedAt: at}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "creator_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"strike_count": gorm.Expr("strike_count + ?", 1),
			"updated_at":   at,
		}),
	}).Create(&row).Error
	return apperr.Storage("increment strikes", err)
}

// DecrementStrikes subtracts one from a creator's counter. The counter
// never drops below zero.
func (s *Store) DecrementStrikes(ctx context.Context, creatorID string, at time.Time) error {
	err := s.conn(ctx).Model(&models.CreatorStanding{}).
		Where("creator_id = ? AND strike_count > 0", creatorID).
		Updates(map[string]interface{}{
			"strike_count": gorm.Expr("strike_count - ?", 1),
			"updated_at":   at,
		}).Error
	return apperr.Storage("decrement strikes", err)
}

// StrikeCount returns a creator's counter; unknown creators have zero.
func (s *Store) StrikeCount(ctx context.Context, creatorID string) (int, error) {
	var st models.CreatorStanding
	err := s.conn(ctx).Where("creator_id = ?", creatorID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Storage("strike count", err)
	}
	return st.StrikeCount, nil
}
