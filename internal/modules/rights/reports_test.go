package rights

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"github.com/mx-space/sentinel/internal/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var indie = models.RightsHolder{Name: "Indie Publisher", OrganizationID: "indie-1"}

func monetizeFor(holder models.RightsHolder, title string, holderPct int) ClaimInput {
	in := monetize(&models.RevenueShare{RightsHolderPercentage: holderPct, CreatorPercentage: 100 - holderPct})
	in.RightsHolder = holder
	in.ClaimedMusic = models.ClaimedMusic{Title: title}
	return in
}

func TestActiveDisputesQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	h.svc.now = func() time.Time { return clock }

	h.register(t, "v1")
	h.register(t, "v2")
	blockRec, err := h.svc.FileClaim(ctx, "v1", block())
	require.NoError(t, err)
	monRec, err := h.svc.FileClaim(ctx, "v2", monetize(&models.RevenueShare{RightsHolderPercentage: 60, CreatorPercentage: 40}))
	require.NoError(t, err)

	_, err = h.svc.DisputeClaim(ctx, "v2", DisputeInput{ClaimID: monRec.Claims[0].ClaimID, DisputedBy: creator, Reason: models.DisputeFairUse})
	require.NoError(t, err)
	clock = base.Add(time.Hour)
	rec, err := h.svc.DisputeClaim(ctx, "v1", DisputeInput{ClaimID: blockRec.Claims[0].ClaimID, DisputedBy: creator, Reason: models.DisputeOriginalContent})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.OpenDisputes)

	items, err := h.svc.ActiveDisputes(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "v2", items[0].ContentID, "oldest filing first")
	assert.Equal(t, "v1", items[1].ContentID)
	require.NotNil(t, items[0].Claim)
	assert.Equal(t, models.ClaimMonetize, items[0].Claim.Action)
	assert.Equal(t, creator, items[1].CreatorID)

	items, err = h.svc.ActiveDisputes(ctx, models.DisputePending, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "v2", items[0].ContentID)

	items, err = h.svc.ActiveDisputes(ctx, models.DisputeUnderReview, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = h.svc.ActiveDisputes(ctx, models.DisputeUpheld, 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	rec, err = h.svc.ResolveDispute(ctx, "v2", lastDisputeID(t, h, "v2"), ResolveDisputeInput{
		Decision: models.DisputeRejected, DecidedBy: "mod-1",
	})
	require.NoError(t, err)
	assert.Zero(t, rec.OpenDisputes)

	items, err = h.svc.ActiveDisputes(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "v1", items[0].ContentID)
}

func lastDisputeID(t *testing.T, h *harness, contentID string) string {
	t.Helper()
	rec, err := h.svc.Get(context.Background(), contentID)
	require.NoError(t, err)
	require.NotEmpty(t, rec.Disputes)
	return rec.Disputes[len(rec.Disputes)-1].DisputeID
}

func TestUpdateUsage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")

	rec, err := h.svc.UpdateUsage(ctx, "v1", "admin", models.UsageStats{Views: 100, MonetizableViews: 80, EstimatedRevenue: 500})
	require.NoError(t, err)
	assert.EqualValues(t, 100, rec.Usage.Views)
	assert.EqualValues(t, 80, rec.Usage.MonetizableViews)
	assert.EqualValues(t, 500, rec.Usage.EstimatedRevenue)
	require.NotNil(t, rec.Usage.LastUpdated)

	_, err = h.svc.UpdateUsage(ctx, "v1", "admin", models.UsageStats{Views: 10, MonetizableViews: 11})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = h.svc.UpdateUsage(ctx, "v1", "admin", models.UsageStats{Views: -1})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = h.svc.UpdateUsage(ctx, "missing", "admin", models.UsageStats{Views: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.svc.FileClaim(ctx, "v1", block())
	require.NoError(t, err)
	rec, err = h.svc.UpdateUsage(ctx, "v1", "admin", models.UsageStats{Views: 200, MonetizableViews: 150})
	require.NoError(t, err)
	assert.EqualValues(t, 200, rec.Usage.Views)
	assert.Zero(t, rec.Usage.MonetizableViews, "blocked content earns nothing")
}

func TestRoyaltyReportTotalsHolderContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")
	h.register(t, "v2")
	h.register(t, "v3")

	_, err := h.svc.FileClaim(ctx, "v1", monetizeFor(label, "Song", 70))
	require.NoError(t, err)
	_, err = h.svc.FileClaim(ctx, "v2", monetizeFor(indie, "Tune", 30))
	require.NoError(t, err)
	_, err = h.svc.FileClaim(ctx, "v3", block())
	require.NoError(t, err)

	_, err = h.svc.RecordRevenue(ctx, "v1", 10000, "")
	require.NoError(t, err)
	_, err = h.svc.RecordRevenue(ctx, "v2", 10000, "")
	require.NoError(t, err)
	_, err = h.svc.UpdateUsage(ctx, "v1", "admin", models.UsageStats{Views: 1000, MonetizableViews: 800})
	require.NoError(t, err)
	_, err = h.svc.ProcessPayout(ctx, "v1", "label-1", 2000)
	require.NoError(t, err)

	report, err := h.svc.RoyaltyReport(ctx, "label-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalContent)
	assert.EqualValues(t, 1000, report.TotalViews)
	assert.EqualValues(t, 7000, report.TotalEarned)
	assert.EqualValues(t, 2000, report.TotalPaid)
	assert.EqualValues(t, 5000, report.PendingPayout)
	var ids []string
	for _, line := range report.Content {
		ids = append(ids, line.ContentID)
	}
	assert.ElementsMatch(t, []string{"v1", "v3"}, ids)

	report, err = h.svc.RoyaltyReport(ctx, "indie-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalContent)
	assert.EqualValues(t, 3000, report.PendingPayout)
	assert.Zero(t, report.TotalPaid)

	now := time.Now()
	report, err = h.svc.RoyaltyReport(ctx, "label-1", now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, report.TotalContent)
	assert.Empty(t, report.Content)

	_, err = h.svc.RoyaltyReport(ctx, " ", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = h.svc.RoyaltyReport(ctx, "label-1", now, now.Add(-time.Hour))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = h.svc.RoyaltyReport(ctx, "label-1", now.AddDate(-2, 0, 0), now)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestBatchPayoutPaysSoleMonetizer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"solo", "shared", "other"} {
		h.register(t, id)
	}
	_, err := h.svc.FileClaim(ctx, "solo", monetizeFor(label, "Song", 50))
	require.NoError(t, err)
	_, err = h.svc.FileClaim(ctx, "shared", monetizeFor(label, "Song", 50))
	require.NoError(t, err)
	_, err = h.svc.FileClaim(ctx, "shared", monetizeFor(indie, "Tune", 30))
	require.NoError(t, err)
	_, err = h.svc.FileClaim(ctx, "other", monetizeFor(indie, "Tune", 30))
	require.NoError(t, err)
	for _, id := range []string{"solo", "shared", "other"} {
		_, err = h.svc.RecordRevenue(ctx, id, 1000, "")
		require.NoError(t, err)
	}

	result, err := h.svc.BatchPayout(ctx, "label-1")
	require.NoError(t, err)
	assert.EqualValues(t, 500, result.TotalPaid)
	require.Len(t, result.Payouts, 1)
	assert.Equal(t, "solo", result.Payouts[0].ContentID)
	assert.Equal(t, "label-1", result.Payouts[0].RightsHolderID)
	assert.Equal(t, []string{"shared"}, result.Skipped)

	assert.Zero(t, h.account(t, "solo").PendingPayout)
	assert.EqualValues(t, 800, h.account(t, "shared").PendingPayout)
	assert.EqualValues(t, 300, h.account(t, "other").PendingPayout)

	result, err = h.svc.BatchPayout(ctx, "label-1")
	require.NoError(t, err)
	assert.Zero(t, result.TotalPaid)
	assert.Empty(t, result.Payouts)

	_, err = h.svc.BatchPayout(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestHandlerHolderReportsAndDisputeQueue(t *testing.T) {
	h := newHarness(t)
	r := newRouter(h)
	ctx := context.Background()
	h.register(t, "v1")
	rec, err := h.svc.FileClaim(ctx, "v1", monetizeFor(label, "Song", 70))
	require.NoError(t, err)
	_, err = h.svc.RecordRevenue(ctx, "v1", 10000, "")
	require.NoError(t, err)

	w := call(t, r, http.MethodPost, "/api/v1/rights/v1/usage", "admin", jwt.RoleAdmin, UsageDTO{Views: 50, MonetizableViews: 40})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusUnprocessableEntity,
		call(t, r, http.MethodPost, "/api/v1/rights/v1/usage", "admin", jwt.RoleAdmin, UsageDTO{Views: 1, MonetizableViews: 2}).Code)

	w = call(t, r, http.MethodGet, "/api/v1/rights/holders/label-1/report", "admin", jwt.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report RoyaltyReport
	decode(t, w, &report)
	assert.Equal(t, 1, report.TotalContent)
	assert.EqualValues(t, 50, report.TotalViews)
	assert.EqualValues(t, 7000, report.PendingPayout)

	assert.Equal(t, http.StatusBadRequest,
		call(t, r, http.MethodGet, "/api/v1/rights/holders/label-1/report?start=yesterday", "admin", jwt.RoleAdmin, nil).Code)
	assert.Equal(t, http.StatusForbidden,
		call(t, r, http.MethodGet, "/api/v1/rights/holders/label-1/report", "mod-1", jwt.RoleReviewer, nil).Code)

	w = call(t, r, http.MethodPost, "/api/v1/rights/holders/label-1/payouts", "admin", jwt.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var batch BatchPayout
	decode(t, w, &batch)
	assert.EqualValues(t, 7000, batch.TotalPaid)

	_, err = h.svc.DisputeClaim(ctx, "v1", DisputeInput{ClaimID: rec.Claims[0].ClaimID, DisputedBy: creator, Reason: models.DisputeLicensed})
	require.NoError(t, err)

	w = call(t, r, http.MethodGet, "/api/v1/rights/disputes", "mod-1", jwt.RoleReviewer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page struct {
		Data []DisputeQueueItem `json:"data"`
	}
	decode(t, w, &page)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "v1", page.Data[0].ContentID)

	assert.Equal(t, http.StatusUnprocessableEntity,
		call(t, r, http.MethodGet, "/api/v1/rights/disputes?status=upheld", "mod-1", jwt.RoleReviewer, nil).Code)
	assert.Equal(t, http.StatusForbidden,
		call(t, r, http.MethodGet, "/api/v1/rights/disputes", creator, jwt.RoleCreator, nil).Code)
}
