package rights

import (
	"context"
	"strings"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/modules/audit"
	"github.com/mx-space/sentinel/internal/modules/notify"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"go.uber.org/zap"
)

// RecordRevenue splits a revenue event, in minor currency units, between the
// creator and the active monetize claims covering territory. The rights
// holders' part is credited to the royalty account with one atomic update.
func (s *Service) RecordRevenue(ctx context.Context, contentID string, amount int64, territory string) (*RevenueSplit, error) {
	if amount <= 0 {
		return nil, apperr.Validation("revenue amount must be positive, got %d", amount)
	}
	territory = strings.ToUpper(strings.TrimSpace(territory))
	rec, err := s.store.GetRights(ctx, contentID)
	if err != nil {
		return nil, err
	}

	split := Split(rec.Claims, amount, territory)
	split.ContentID = contentID
	if split.RightsHolderShare > 0 {
		if err := s.store.AccrueRoyalty(ctx, contentID, split.RightsHolderShare, s.now()); err != nil {
			return nil, err
		}
		s.metrics.RoyaltyAccrued(split.RightsHolderShare)
	}

	s.audit.Record(ctx, audit.Entry{
		At:        s.now(),
		Engine:    models.SourceRights,
		Operation: "revenue",
		Content:   rec.Content,
		CreatorID: rec.CreatorID,
		Actor:     systemActor,
		Details: map[string]interface{}{
			"amount":            amount,
			"territory":         territory,
			"rightsHolderShare": split.RightsHolderShare,
		},
	})
	return split, nil
}

// Split computes the revenue split without side effects. Each active
// monetize claim covering territory receives its percentage of amount. When
// overlapping claims add up to more than 100 percent they are scaled down pro
// rata, so the result does not depend on claim order. Shares round down and
// the remainder goes to the creator.
func Split(claims []models.Claim, amount int64, territory string) *RevenueSplit {
	split := &RevenueSplit{Territory: territory, Amount: amount, Distributions: []Distribution{}}
	var paying []*models.Claim
	totalPct := 0
	for i := range claims {
		c := &claims[i]
		if c.Status != models.ClaimActive || c.Action != models.ClaimMonetize || c.RevenueShare == nil {
			continue
		}
		if !c.CoversTerritory(territory) {
			continue
		}
		paying = append(paying, c)
		totalPct += c.RevenueShare.RightsHolderPercentage
	}
	denom := int64(100)
	if totalPct > 100 {
		denom = int64(totalPct)
	}
	for _, c := range paying {
		cut := amount * int64(c.RevenueShare.RightsHolderPercentage) / denom
		split.RightsHolderShare += cut
		split.Distributions = append(split.Distributions, Distribution{
			ClaimID:        c.ClaimID,
			RightsHolderID: holderID(c.RightsHolder),
			Name:           c.RightsHolder.Name,
			Percentage:     c.RevenueShare.RightsHolderPercentage,
			Amount:         cut,
		})
	}
	split.CreatorShare = amount - split.RightsHolderShare
	return split
}

// ProcessPayout pays amount out of the pending balance to a rights holder
// with a monetize claim on the content. The balance check and both counter
// updates happen in a single conditional statement.
func (s *Service) ProcessPayout(ctx context.Context, contentID, rightsHolderID string, amount int64) (*models.RoyaltyPayout, error) {
	rightsHolderID = strings.TrimSpace(rightsHolderID)
	if rightsHolderID == "" {
		return nil, apperr.Validation("rightsHolderId is required")
	}
	if amount <= 0 {
		return nil, apperr.Validation("payout amount must be positive, got %d", amount)
	}

	var (
		rec    *models.RightsRecord
		payout *models.RoyaltyPayout
	)
	err := s.store.Transaction(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.store.GetRights(ctx, contentID)
		if err != nil {
			return err
		}
		if !paysHolder(rec.Claims, rightsHolderID) {
			return apperr.Validation("%s holds no monetize claim on %s", rightsHolderID, contentID)
		}
		acc, err := s.store.RoyaltyAccount(ctx, contentID)
		if err != nil {
			return err
		}
		if err := s.store.DeductPayout(ctx, contentID, amount); err != nil {
			return err
		}
		now := s.now()
		payout = &models.RoyaltyPayout{
			ContentID:      contentID,
			RightsHolderID: rightsHolderID,
			Amount:         amount,
			Currency:       acc.Currency,
			Status:         models.PayoutCompleted,
			PaidAt:         &now,
		}
		return s.store.CreatePayout(ctx, payout)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RoyaltyPaid(amount)
	s.logger.Info("royalty paid out",
		zap.String("content", contentID),
		zap.String("rightsHolder", rightsHolderID),
		zap.Int64("amount", amount))
	s.audit.Record(ctx, audit.Entry{
		At:        s.now(),
		Engine:    models.SourceRights,
		Operation: "payout",
		Content:   rec.Content,
		CreatorID: rec.CreatorID,
		Actor:     systemActor,
		Details:   map[string]interface{}{"amount": amount, "rightsHolderId": rightsHolderID, "payoutId": payout.ID},
	})
	s.notifier.Send(notify.Event{
		Name:      notify.EventRoyaltyPaid,
		Content:   rec.Content,
		CreatorID: rec.CreatorID,
		Status:    string(rec.Status),
		Data:      map[string]interface{}{"amount": amount, "rightsHolderId": rightsHolderID},
	})
	return payout, nil
}

// Royalties returns the running totals and the payout ledger of a content item.
func (s *Service) Royalties(ctx context.Context, contentID string) (*models.RoyaltyAccount, error) {
	acc, err := s.store.RoyaltyAccount(ctx, contentID)
	if err != nil {
		return nil, err
	}
	acc.Payouts, err = s.store.Payouts(ctx, contentID)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func paysHolder(claims []models.Claim, id string) bool {
	for _, c := range claims {
		if c.Action == models.ClaimMonetize && holderID(c.RightsHolder) == id {
			return true
		}
	}
	return false
}
