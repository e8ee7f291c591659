package store

import (
	"context"
	"time"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetRights loads the rights record of a content item without royalties.
func (s *Store) GetRights(ctx context.Context, contentID string) (*models.RightsRecord, error) {
	var rec models.RightsRecord
	if err := s.conn(ctx).Where("content_id = ?", contentID).First(&rec).Error; err != nil {
		return nil, lookupErr("get rights", "rights record", contentID, err)
	}
	return &rec, nil
}

// CreateRights inserts a new record together with its empty royalty account.
func (s *Store) CreateRights(ctx context.Context, rec *models.RightsRecord, currency string) error {
	rec.Version = 0
	rec.SyncColumns()
	return s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.conn(ctx).Create(rec).Error; err != nil {
			if s.rightsExists(ctx, rec.Content.ID) {
				return apperr.Conflict("rights record %s already exists", rec.Content.ID)
			}
			return apperr.Storage("create rights", err)
		}
		account := models.RoyaltyAccount{ContentID: rec.Content.ID, Currency: currency}
		err := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&account).Error
		return apperr.Storage("create royalty account", err)
	})
}

// SaveRights persists rec if nobody saved it since expectedVersion.
func (s *Store) SaveRights(ctx context.Context, rec *models.RightsRecord, expectedVersion int64) error {
	rec.SyncColumns()
	return s.saveVersioned(ctx, "save rights", rec, &models.RightsRecord{}, &rec.Version, expectedVersion, rec.ID)
}

func (s *Store) rightsExists(ctx context.Context, contentID string) bool {
	var n int64
	s.conn(ctx).Model(&models.RightsRecord{}).Where("content_id = ?", contentID).Count(&n)
	return n > 0
}

// ListRights returns records in the given status, oldest first.
func (s *Store) ListRights(ctx context.Context, status models.RightsStatus, limit int) ([]models.RightsRecord, error) {
	var out []models.RightsRecord
	err := s.conn(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(clampLimit(limit, defaultListLimit, maxListLimit)).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("list rights", err)
	}
	return out, nil
}

// RoyaltyAccount returns the running totals of a content item.
func (s *Store) RoyaltyAccount(ctx context.Context, contentID string) (*models.RoyaltyAccount, error) {
	var acc models.RoyaltyAccount
	if err := s.conn(ctx).Where("content_id = ?", contentID).First(&acc).Error; err != nil {
		return nil, lookupErr("get royalty account", "royalty account", contentID, err)
	}
	return &acc, nil
}

// AccrueRoyalty adds amount to the earned and pending totals in one
// statement, so concurrent revenue events never lose an update.
func (s *Store) AccrueRoyalty(ctx context.Context, contentID string, amount int64, at time.Time) error {
	res := s.conn(ctx).Model(&models.RoyaltyAccount{}).
		Where("content_id = ?", contentID).
		Updates(map[string]interface{}{
			"total_earned":    gorm.Expr("total_earned + ?", amount),
			"pending_payout":  gorm.Expr("pending_payout + ?", amount),
			"last_accrual_at": at,
		})
	if res.Error != nil {
		return apperr.Storage("accrue royalty", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("royalty account %s", contentID)
	}
	return nil
}

// DeductPayout moves amount from pending to paid out. It fails with a
// validation error when less than amount is pending.
func (s *Store) DeductPayout(ctx context.Context, contentID string, amount int64) error {
	res := s.conn(ctx).Model(&models.RoyaltyAccount{}).
		Where("content_id = ? AND pending_payout >= ?", contentID, amount).
		Updates(map[string]interface{}{
			"total_paid_out": gorm.Expr("total_paid_out + ?", amount),
			"pending_payout": gorm.Expr("pending_payout - ?", amount),
		})
	if res.Error != nil {
		return apperr.Storage("deduct payout", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := s.RoyaltyAccount(ctx, contentID); err != nil {
		return err
	}
	return apperr.Validation("payout of %d exceeds pending balance of %s", amount, contentID)
}

func (s *Store) CreatePayout(ctx context.Context, p *models.RoyaltyPayout) error {
	return apperr.Storage("create payout", s.conn(ctx).Create(p).Error)
}

// Payouts returns the payout ledger of a content item, newest first.
func (s *Store) Payouts(ctx context.Context, contentID string) ([]models.RoyaltyPayout, error) {
	var out []models.RoyaltyPayout
	err := s.conn(ctx).Where("content_id = ?", contentID).Order("created_at DESC").Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("list payouts", err)
	}
	return out, nil
}

// UpsertSoundRight creates or replaces a catalog entry.
func (s *Store) UpsertSoundRight(ctx context.Context, sr *models.SoundRight) error {
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sound_ref"}},
		UpdateAll: true,
	}).Create(sr).Error
	return apperr.Storage("upsert sound right", err)
}

func (s *Store) GetSoundRight(ctx context.Context, soundRef string) (*models.SoundRight, error) {
	var sr models.SoundRight
	if err := s.conn(ctx).Where("sound_ref = ?", soundRef).First(&sr).Error; err != nil {
		return nil, lookupErr("get sound right", "sound right", soundRef, err)
	}
	return &sr, nil
}

// SoundRights loads catalog entries by reference. Unknown refs are skipped.
func (s *Store) SoundRights(ctx context.Context, soundRefs []string) (map[string]models.SoundRight, error) {
	out := make(map[string]models.SoundRight, len(soundRefs))
	if len(soundRefs) == 0 {
		return out, nil
	}
	var rows []models.SoundRight
	if err := s.conn(ctx).Where("sound_ref IN ?", soundRefs).Find(&rows).Error; err != nil {
		return nil, apperr.Storage("list sound rights", err)
	}
	for _, r := range rows {
		out[r.SoundRef] = r
	}
	return out, nil
}

// HolderFilter selects rights records for holder-level reports. Claims are a
// JSON column, so Holder only narrows the scan; callers re-check each claim.
type HolderFilter struct {
	Holder       string
	CreatedFrom  time.Time
	CreatedUntil time.Time
	PendingOnly  bool
	AfterID      string
	Limit        int
}

// RightsByHolder returns one keyset page of records whose claims mention the
// holder, ordered by id.
func (s *Store) RightsByHolder(ctx context.Context, f HolderFilter) ([]models.RightsRecord, error) {
	q := s.conn(ctx).Model(&models.RightsRecord{}).
		Where("rights_records.claims LIKE ?", "%"+f.Holder+"%").
		Where("rights_records.id > ?", f.AfterID)
	if !f.CreatedFrom.IsZero() {
		q = q.Where("rights_records.created_at >= ?", f.CreatedFrom)
	}
	if !f.CreatedUntil.IsZero() {
		q = q.Where("rights_records.created_at < ?", f.CreatedUntil)
	}
	if f.PendingOnly {
		q = q.Select("rights_records.*").Joins("JOIN royalty_accounts ON royalty_accounts.content_id = rights_records.content_id").
			Where("royalty_accounts.pending_payout > ?", 0)
	}
	var out []models.RightsRecord
	err := q.Order("rights_records.id ASC").
		Limit(clampLimit(f.Limit, defaultListLimit, maxListLimit)).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("rights by holder", err)
	}
	return out, nil
}

// RightsWithOpenDisputes returns one keyset page of records with at least one
// undecided dispute, ordered by id.
func (s *Store) RightsWithOpenDisputes(ctx context.Context, afterID string, limit int) ([]models.RightsRecord, error) {
	var out []models.RightsRecord
	err := s.conn(ctx).
		Where("open_disputes > ? AND id > ?", 0, afterID).
		Order("id ASC").
		Limit(clampLimit(limit, defaultListLimit, maxListLimit)).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("open disputes", err)
	}
	return out, nil
}

// RoyaltyAccounts loads the accounts of the given content ids keyed by id.
func (s *Store) RoyaltyAccounts(ctx context.Context, contentIDs []string) (map[string]models.RoyaltyAccount, error) {
	out := make(map[string]models.RoyaltyAccount, len(contentIDs))
	if len(contentIDs) == 0 {
		return out, nil
	}
	var rows []models.RoyaltyAccount
	if err := s.conn(ctx).Where("content_id IN ?", contentIDs).Find(&rows).Error; err != nil {
		return nil, apperr.Storage("list royalty accounts", err)
	}
	for _, r := range rows {
		out[r.ContentID] = r
	}
	return out, nil
}

// PaidToHolder sums completed payouts to a holder per content id.
func (s *Store) PaidToHolder(ctx context.Context, holderID string, contentIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(contentIDs))
	if len(contentIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ContentID string
		Total     int64
	}
	err := s.conn(ctx).Model(&models.RoyaltyPayout{}).
		Select("content_id, SUM(amount) AS total").
		Where("rights_holder_id = ? AND status = ? AND content_id IN ?", holderID, models.PayoutCompleted, contentIDs).
		Group("content_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Storage("paid to holder", err)
	}
	for _, r := range rows {
		out[r.ContentID] = r.Total
	}
	return out, nil
}
