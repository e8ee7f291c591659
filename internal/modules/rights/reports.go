package rights

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"github.com/mx-space/sentinel/internal/store"
	"go.uber.org/zap"
)

const (
	scanPageSize      = 200
	defaultQueueLimit = 50
	maxQueueLimit     = 500
	defaultReportDays = 30
	maxReportDays     = 366
)

// UpdateUsage replaces the usage snapshot of a content item. Blocked or muted
// content earns nothing, so its monetizable views are recorded as zero.
func (s *Service) UpdateUsage(ctx context.Context, contentID, actor string, usage models.UsageStats) (*models.RightsRecord, error) {
	if usage.Views < 0 || usage.MonetizableViews < 0 || usage.EstimatedRevenue < 0 {
		return nil, apperr.Validation("usage counters must not be negative")
	}
	if usage.MonetizableViews > usage.Views {
		return nil, apperr.Validation("monetizable views %d exceed views %d", usage.MonetizableViews, usage.Views)
	}
	return s.mutate(ctx, "usage", contentID, actor, func(_ context.Context, rec *models.RightsRecord, _ *change) error {
		if blocked(rec) || muted(rec) {
			usage.MonetizableViews = 0
		}
		now := s.now()
		usage.LastUpdated = &now
		rec.Usage = usage
		return nil
	})
}

// ActiveDisputes lists disputes in the given open status across all content,
// oldest filing first. An empty status means pending.
func (s *Service) ActiveDisputes(ctx context.Context, status models.DisputeStatus, limit int) ([]DisputeQueueItem, error) {
	if status == "" {
		status = models.DisputePending
	}
	if !status.Open() {
		return nil, apperr.Validation("dispute status %q is not an open status", status)
	}
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	if limit > maxQueueLimit {
		limit = maxQueueLimit
	}

	out := []DisputeQueueItem{}
	after := ""
	for {
		page, err := s.store.RightsWithOpenDisputes(ctx, after, scanPageSize)
		if err != nil {
			return nil, err
		}
		for i := range page {
			rec := &page[i]
			for _, d := range rec.Disputes {
				if d.Status != status {
					continue
				}
				item := DisputeQueueItem{ContentID: rec.Content.ID, CreatorID: rec.CreatorID, Dispute: d}
				if j := rec.FindClaim(d.ClaimID); j >= 0 {
					claim := rec.Claims[j]
					item.Claim = &claim
				}
				out = append(out, item)
			}
		}
		if len(page) < scanPageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Dispute.FiledAt.Before(out[j].Dispute.FiledAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RoyaltyReport totals the content a rights holder claims that was created in
// [start, end). A zero end means now and a zero start means thirty days
// before end.
func (s *Service) RoyaltyReport(ctx context.Context, holder string, start, end time.Time) (*RoyaltyReport, error) {
	holder = strings.TrimSpace(holder)
	if holder == "" {
		return nil, apperr.Validation("rightsHolderId is required")
	}
	if end.IsZero() {
		end = s.now()
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -defaultReportDays)
	}
	if !start.Before(end) {
		return nil, apperr.Validation("report start %s must be before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if end.Sub(start) > maxReportDays*24*time.Hour {
		return nil, apperr.Validation("report range must not exceed %d days", maxReportDays)
	}

	recs, err := s.holderRecords(ctx, store.HolderFilter{Holder: holder, CreatedFrom: start, CreatedUntil: end}, func(rec *models.RightsRecord) bool {
		return claimedBy(rec, holder)
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.Content.ID)
	}
	accounts, err := s.store.RoyaltyAccounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	paid, err := s.store.PaidToHolder(ctx, holder, ids)
	if err != nil {
		return nil, err
	}

	report := &RoyaltyReport{RightsHolderID: holder, Start: start, End: end, Content: []ReportLine{}}
	for _, rec := range recs {
		acc := accounts[rec.Content.ID]
		line := ReportLine{
			ContentID:     rec.Content.ID,
			Status:        rec.Status,
			Views:         rec.Usage.Views,
			Earned:        acc.TotalEarned,
			PaidToHolder:  paid[rec.Content.ID],
			PendingPayout: acc.PendingPayout,
		}
		report.TotalViews += line.Views
		report.TotalEarned += line.Earned
		report.TotalPaid += line.PaidToHolder
		report.PendingPayout += line.PendingPayout
		report.Content = append(report.Content, line)
	}
	report.TotalContent = len(report.Content)
	return report, nil
}

// BatchPayout pays a rights holder the whole pending balance of every content
// item on which they hold the only active monetize claim. Content whose pool
// is shared with other holders is listed in Skipped and left untouched.
func (s *Service) BatchPayout(ctx context.Context, holder string) (*BatchPayout, error) {
	holder = strings.TrimSpace(holder)
	if holder == "" {
		return nil, apperr.Validation("rightsHolderId is required")
	}
	recs, err := s.holderRecords(ctx, store.HolderFilter{Holder: holder, PendingOnly: true}, func(rec *models.RightsRecord) bool {
		_, ok := activeMonetizers(rec)[holder]
		return ok
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.Content.ID)
	}
	accounts, err := s.store.RoyaltyAccounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := &BatchPayout{RightsHolderID: holder, Payouts: []models.RoyaltyPayout{}, Skipped: []string{}}
	for _, rec := range recs {
		if len(activeMonetizers(rec)) > 1 {
			out.Skipped = append(out.Skipped, rec.Content.ID)
			continue
		}
		amount := accounts[rec.Content.ID].PendingPayout
		if amount <= 0 {
			continue
		}
		p, err := s.ProcessPayout(ctx, rec.Content.ID, holder, amount)
		if errors.Is(err, apperr.ErrValidation) {
			// balance moved since the account was read
			s.logger.Warn("batch payout skipped content",
				zap.String("content", rec.Content.ID),
				zap.String("rightsHolder", holder),
				zap.Error(err))
			out.Skipped = append(out.Skipped, rec.Content.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		out.TotalPaid += p.Amount
		out.Payouts = append(out.Payouts, *p)
	}
	return out, nil
}

// holderRecords walks every page of f and keeps the records keep accepts.
func (s *Service) holderRecords(ctx context.Context, f store.HolderFilter, keep func(*models.RightsRecord) bool) ([]models.RightsRecord, error) {
	var out []models.RightsRecord
	f.Limit = scanPageSize
	for {
		page, err := s.store.RightsByHolder(ctx, f)
		if err != nil {
			return nil, err
		}
		for i := range page {
			if keep(&page[i]) {
				out = append(out, page[i])
			}
		}
		if len(page) < scanPageSize {
			return out, nil
		}
		f.AfterID = page[len(page)-1].ID
	}
}

func claimedBy(rec *models.RightsRecord, holder string) bool {
	for _, c := range rec.Claims {
		if holderID(c.RightsHolder) == holder {
			return true
		}
	}
	return false
}

// activeMonetizers returns the holders with an active monetize claim.
func activeMonetizers(rec *models.RightsRecord) map[string]struct{} {
	out := map[string]struct{}{}
	for _, c := range rec.Claims {
		if c.Action == models.ClaimMonetize && c.Status == models.ClaimActive {
			out[holderID(c.RightsHolder)] = struct{}{}
		}
	}
	return out
}
