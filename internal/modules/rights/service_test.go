package rights

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mx-space/sentinel/internal/config"
	"github.com/mx-space/sentinel/internal/database/dbtest"
	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/modules/audit"
	"github.com/mx-space/sentinel/internal/modules/enforcement"
	"github.com/mx-space/sentinel/internal/modules/lifecycle"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"github.com/mx-space/sentinel/internal/pkg/retry"
	"github.com/mx-space/sentinel/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const creator = "creator-1"

type harness struct {
	svc       *Service
	store     *store.Store
	ledger    *enforcement.Ledger
	trail     *audit.MemoryRecorder
	mu        sync.Mutex
	published []string
	withdrawn []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{trail: audit.NewMemoryRecorder()}
	h.store = store.New(dbtest.Open(t))
	h.ledger = enforcement.NewLedger(h.store, 7*24*time.Hour, nil, nil)
	h.svc = NewService(Deps{
		Store:  h.store,
		Ledger: h.ledger,
		Lifecycle: lifecycle.Funcs{
			OnPublishable: func(_ context.Context, ref models.ContentRef) error {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.published = append(h.published, ref.ID)
				return nil
			},
			OnWithdrawn: func(_ context.Context, ref models.ContentRef, _ string) error {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.withdrawn = append(h.withdrawn, ref.ID)
				return nil
			},
		},
		Audit:  audit.NewTrail(h.trail, nil),
		Policy: config.DefaultPolicy(),
		Retry:  retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
	})
	return h
}

func video(id string) models.ContentRef {
	return models.ContentRef{Kind: models.ContentVideo, ID: id}
}

// register creates a record with no detected music.
func (h *harness) register(t *testing.T, id string) *models.RightsRecord {
	t.Helper()
	rec, err := h.svc.RecordScan(context.Background(), ScanInput{Content: video(id), CreatorID: creator})
	require.NoError(t, err)
	return rec
}

func (h *harness) strikes(t *testing.T) int {
	t.Helper()
	n, err := h.ledger.StrikeCount(context.Background(), creator)
	require.NoError(t, err)
	return n
}

func (h *harness) account(t *testing.T, id string) *models.RoyaltyAccount {
	t.Helper()
	acc, err := h.svc.Royalties(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, acc.TotalEarned-acc.TotalPaidOut, acc.PendingPayout, "pending payout drifted")
	return acc
}

var label = models.RightsHolder{Name: "Big Label", OrganizationID: "label-1", ContactEmail: "rights@label.example"}

func monetize(share *models.RevenueShare, territories ...string) ClaimInput {
	return ClaimInput{
		RightsHolder: label,
		ClaimedMusic: models.ClaimedMusic{Title: "Song", Artist: "Band"},
		Action:       models.ClaimMonetize,
		RevenueShare: share,
		Territories:  territories,
		FiledBy:      "label-agent",
	}
}

func block() ClaimInput {
	return ClaimInput{
		RightsHolder: label,
		ClaimedMusic: models.ClaimedMusic{Title: "Other Song"},
		Action:       models.ClaimBlock,
		FiledBy:      "label-agent",
	}
}

func TestRecordScanCreatesClearRecord(t *testing.T) {
	h := newHarness(t)
	rec := h.register(t, "v1")

	assert.Equal(t, models.RightsClear, rec.Status)
	require.Len(t, rec.ScanHistory, 1)
	assert.Equal(t, "fingerprint", rec.ScanHistory[0].Method)
	assert.Equal(t, models.EnforcementAppealNone, rec.Enforcement.AppealStatus)

	acc := h.account(t, "v1")
	assert.Zero(t, acc.TotalEarned)
	assert.Equal(t, "USD", acc.Currency)

	_, err := h.svc.RecordScan(context.Background(), ScanInput{Content: video("v1"), CreatorID: "someone-else"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRecordScanAutoClaimsCatalogMatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.svc.UpsertSoundRight(ctx, &models.SoundRight{
		SoundRef: "snd-1", Title: "Hit", Artist: "Star", Holder: label,
		Policy: models.ClaimMonetize, RevenueShare: &models.RevenueShare{RightsHolderPercentage: 70, CreatorPercentage: 30},
	}))
	require.NoError(t, h.svc.UpsertSoundRight(ctx, &models.SoundRight{
		SoundRef: "snd-2", Title: "Guarded", Holder: label, Policy: models.ClaimBlock,
	}))

	scan := ScanInput{
		Content:     video("v1"),
		CreatorID:   creator,
		Fingerprint: "fp-abc",
		Matches: []models.MusicMatch{
			{SoundRef: "snd-1", MatchConfidence: 0.9, StartTime: 12, Duration: 30},
			{SoundRef: "snd-2", MatchConfidence: 0.5},
			{SoundRef: "snd-unknown", MatchConfidence: 0.99},
		},
	}
	rec, err := h.svc.RecordScan(ctx, scan)
	require.NoError(t, err)
	assert.Equal(t, models.RightsMonetizedShared, rec.Status)
	assert.Equal(t, "fp-abc", rec.AudioFingerprint)
	assert.Len(t, rec.DetectedMusic, 3)
	require.Len(t, rec.Claims, 1)
	claim := rec.Claims[0]
	assert.True(t, claim.Automated)
	assert.Equal(t, "snd-1", claim.ClaimedMusic.SoundRef)
	assert.Equal(t, 70, claim.RevenueShare.RightsHolderPercentage)
	assert.Zero(t, h.strikes(t), "below-threshold block match is not claimed")

	again, err := h.svc.RecordScan(ctx, scan)
	require.NoError(t, err)
	assert.Len(t, again.Claims, 1, "a sound is claimed once")
	assert.Len(t, again.ScanHistory, 2)
}

func TestRoyaltyFreeMatchLicensesContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.svc.UpsertSoundRight(ctx, &models.SoundRight{
		SoundRef: "lib-7", Title: "Stock Beat", Policy: models.ClaimTrack, RoyaltyFree: true,
	}))

	rec, err := h.svc.RecordScan(ctx, ScanInput{
		Content: video("v1"), CreatorID: creator,
		Matches: []models.MusicMatch{{SoundRef: "lib-7", MatchConfidence: 0.97}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RightsLicensed, rec.Status)
	require.NotNil(t, rec.License)
	assert.Equal(t, "royalty_free", rec.License.LicenseType)
	assert.Empty(t, rec.Claims)
}

func TestRecordScanValidation(t *testing.T) {
	h := newHarness(t)
	cases := map[string]ScanInput{
		"no content":     {Content: video(""), CreatorID: creator},
		"no creator":     {Content: video("v1")},
		"confidence":     {Content: video("v1"), CreatorID: creator, Matches: []models.MusicMatch{{SoundRef: "s", MatchConfidence: 85}}},
		"no sound ref":   {Content: video("v1"), CreatorID: creator, Matches: []models.MusicMatch{{MatchConfidence: 0.5}}},
		"negative start": {Content: video("v1"), CreatorID: creator, Matches: []models.MusicMatch{{SoundRef: "s", StartTime: -1}}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.RecordScan(context.Background(), in)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestMonetizeClaimSplitsRevenue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")

	rec, err := h.svc.FileClaim(ctx, "v1", monetize(&models.RevenueShare{RightsHolderPercentage: 70, CreatorPercentage: 30}))
	require.NoError(t, err)
	assert.Equal(t, models.RightsMonetizedShared, rec.Status)
	assert.Zero(t, h.strikes(t), "monetizing is not a penalty")

	// $100.00
	split, err := h.svc.RecordRevenue(ctx, "v1", 10000, "")
	require.NoError(t, err)
	assert.EqualValues(t, 7000, split.RightsHolderShare)
	assert.EqualValues(t, 3000, split.CreatorShare)
	require.Len(t, split.Distributions, 1)
	assert.Equal(t, "label-1", split.Distributions[0].RightsHolderID)

	acc := h.account(t, "v1")
	assert.EqualValues(t, 7000, acc.TotalEarned)
	assert.EqualValues(t, 7000, acc.PendingPayout)
	require.NotNil(t, acc.LastAccrualAt)

	payout, err := h.svc.ProcessPayout(ctx, "v1", "label-1", 2000)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutCompleted, payout.Status)
	assert.Equal(t, "USD", payout.Currency)
	require.NotNil(t, payout.PaidAt)

	acc = h.account(t, "v1")
	assert.EqualValues(t, 7000, acc.TotalEarned)
	assert.EqualValues(t, 2000, acc.TotalPaidOut)
	assert.EqualValues(t, 5000, acc.PendingPayout)
	require.Len(t, acc.Payouts, 1)

	_, err = h.svc.ProcessPayout(ctx, "v1", "label-1", 5001)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = h.svc.ProcessPayout(ctx, "v1", "stranger", 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = h.svc.ProcessPayout(ctx, "v1", "label-1", 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = h.svc.ProcessPayout(ctx, "missing", "label-1", 10)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	acc = h.account(t, "v1")
	assert.EqualValues(t, 5000, acc.PendingPayout, "failed payouts change nothing")
}

func TestRevenueRespectsTerritories(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")
	_, err := h.svc.FileClaim(ctx, "v1", monetize(nil, " us", "ca"))
	require.NoError(t, err)

	split, err := h.svc.RecordRevenue(ctx, "v1", 1000, "de")
	require.NoError(t, err)
	assert.Zero(t, split.RightsHolderShare)
	assert.EqualValues(t, 1000, split.CreatorShare)

	split, err = h.svc.RecordRevenue(ctx, "v1", 1000, "US")
	require.NoError(t, err)
	assert.EqualValues(t, 500, split.RightsHolderShare, "default share is 50/50")

	assert.EqualValues(t, 500, h.account(t, "v1").TotalEarned)

	_, err = h.svc.RecordRevenue(ctx, "v1", -5, "US")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestConcurrentRevenueEventsAreNotLost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")
	_, err := h.svc.FileClaim(ctx, "v1", monetize(&models.RevenueShare{RightsHolderPercentage: 70, CreatorPercentage: 30}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.RecordRevenue(ctx, "v1", 100, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	acc := h.account(t, "v1")
	assert.EqualValues(t, 20*70, acc.TotalEarned)
}

func TestSplitNeverExceedsAmount(t *testing.T) {
	claims := []models.Claim{
		{ClaimID: "a", Status: models.ClaimActive, Action: models.ClaimMonetize, RightsHolder: label,
			RevenueShare: &models.RevenueShare{RightsHolderPercentage: 70, CreatorPercentage: 30}},
		{ClaimID: "b", Status: models.ClaimActive, Action: models.ClaimMonetize, RightsHolder: models.RightsHolder{Name: "Indie"},
			RevenueShare: &models.RevenueShare{RightsHolderPercentage: 50, CreatorPercentage: 50}},
		{ClaimID: "c", Status: models.ClaimReleased, Action: models.ClaimMonetize,
			RevenueShare: &models.RevenueShare{RightsHolderPercentage: 90, CreatorPercentage: 10}},
		{ClaimID: "d", Status: models.ClaimActive, Action: models.ClaimTrack},
	}
	// 70 + 50 overlap: scaled to 70/120 and 50/120
	split := Split(claims, 999, "")
	assert.EqualValues(t, 998, split.RightsHolderShare)
	assert.EqualValues(t, 1, split.CreatorShare)
	require.Len(t, split.Distributions, 2)
	assert.EqualValues(t, 582, split.Distributions[0].Amount)
	assert.EqualValues(t, 416, split.Distributions[1].Amount)
	assert.Equal(t, "Indie", split.Distributions[1].RightsHolderID)

	reversed := []models.Claim{claims[3], claims[2], claims[1], claims[0]}
	again := Split(reversed, 999, "")
	require.Len(t, again.Distributions, 2)
	assert.Equal(t, "b", again.Distributions[0].ClaimID)
	assert.EqualValues(t, 416, again.Distributions[0].Amount)
	assert.EqualValues(t, 582, again.Distributions[1].Amount)
	assert.EqualValues(t, split.CreatorShare, again.CreatorShare)
}

func TestSplitUnderHundredPercentIsExact(t *testing.T) {
	claims := []models.Claim{
		{ClaimID: "a", Status: models.ClaimActive, Action: models.ClaimMonetize, RightsHolder: label,
			RevenueShare: &models.RevenueShare{RightsHolderPercentage: 30, CreatorPercentage: 70}},
		{ClaimID: "b", Status: models.ClaimActive, Action: models.ClaimMonetize, RightsHolder: models.RightsHolder{Name: "Indie"},
			RevenueShare: &models.RevenueShare{RightsHolderPercentage: 20, CreatorPercentage: 80}},
	}
	split := Split(claims, 1000, "US")
	assert.EqualValues(t, 500, split.RightsHolderShare)
	assert.EqualValues(t, 500, split.CreatorShare)
	assert.EqualValues(t, 300, split.Distributions[0].Amount)
	assert.EqualValues(t, 200, split.Distributions[1].Amount)
}

func TestBlockClaimEnforcesImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")

	rec, err := h.svc.FileClaim(ctx, "v1", block())
	require.NoError(t, err)
	assert.Equal(t, models.RightsBlocked, rec.Status)
	require.Len(t, rec.Enforcement.Actions, 1)
	assert.Equal(t, models.ActionContentBlocked, rec.Enforcement.Actions[0].ActionType)
	assert.Equal(t, 1, rec.Enforcement.Strikes)
	assert.Equal(t, 1, h.strikes(t))
	assert.Equal(t, []string{"v1"}, h.withdrawn)

	m, err := h.svc.CanMonetize(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, m.Eligible)
	assert.Equal(t, "content is blocked", m.Reason)

	entry, err := h.ledger.Entry(ctx, rec.Enforcement.Actions[0].StrikeID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceRights, entry.SourceEngine)
}

func TestMuteClaim(t *testing.T) {
	h := newHarness(t)
	h.register(t, "v1")
	in := block()
	in.Action = models.ClaimMute
	rec, err := h.svc.FileClaim(context.Background(), "v1", in)
	require.NoError(t, err)
	assert.Equal(t, models.RightsMuted, rec.Status)
	assert.Equal(t, models.ActionAudioMuted, rec.Enforcement.Actions[0].ActionType)
	assert.Empty(t, h.withdrawn, "muted content stays visible")
}

func TestBlockClaimOutranksOpenDispute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")

	rec, err := h.svc.FileClaim(ctx, "v1", monetize(nil))
	require.NoError(t, err)
	rec, err = h.svc.DisputeClaim(ctx, "v1", DisputeInput{ClaimID: rec.Claims[0].ClaimID, DisputedBy: creator, Reason: models.DisputeLicensed})
	require.NoError(t, err)
	assert.Equal(t, models.RightsDisputed, rec.Status)

	rec, err = h.svc.FileClaim(ctx, "v1", block())
	require.NoError(t, err)
	assert.Equal(t, models.RightsBlocked, rec.Status)
	assert.Equal(t, []string{"v1"}, h.withdrawn)

	m, err := h.svc.CanMonetize(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, m.Eligible)
	assert.Equal(t, "content is blocked", m.Reason)
}

func TestDisputedMuteStillBlocksMonetization(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")
	in := block()
	in.Action = models.ClaimMute
	rec, err := h.svc.FileClaim(ctx, "v1", in)
	require.NoError(t, err)

	rec, err = h.svc.DisputeClaim(ctx, "v1", DisputeInput{ClaimID: rec.Claims[0].ClaimID, DisputedBy: creator, Reason: models.DisputeFairUse})
	require.NoError(t, err)
	assert.Equal(t, models.RightsDisputed, rec.Status)

	m, err := h.svc.CanMonetize(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, m.Eligible)
	assert.Equal(t, "content is muted", m.Reason)
}

func TestFileClaimValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")

	badShare := monetize(&models.RevenueShare{RightsHolderPercentage: 80, CreatorPercentage: 30})
	noHolder := monetize(nil)
	noHolder.RightsHolder = models.RightsHolder{}
	badAction := block()
	badAction.Action = "sue"
	badType := block()
	badType.ClaimType = "lyrics"

	for name, in := range map[string]ClaimInput{
		"share": badShare, "holder": noHolder, "action": badAction, "type": badType,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.FileClaim(ctx, "v1", in)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	_, err := h.svc.FileClaim(ctx, "missing", block())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRejectedDisputeReleasesClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")
	rec, err := h.svc.FileClaim(ctx, "v1", block())
	require.NoError(t, err)
	claimID := rec.Claims[0].ClaimID

	_, err = h.svc.DisputeClaim(ctx, "v1", DisputeInput{ClaimID: claimID, DisputedBy: creator, Reason: "because"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = h.svc.DisputeClaim(ctx, "v1", DisputeInput{ClaimID: "nope", DisputedBy: creator, Reason: models.DisputeFairUse})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	rec, err = h.svc.DisputeClaim(ctx, "v1", DisputeInput{
		ClaimID: claimID, DisputedBy: creator, Reason: models.DisputeOriginalContent, Explanation: "I wrote it",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RightsDisputed, rec.Status)
	assert.Equal(t, models.ClaimDisputed, rec.Claims[0].Status)
	require.Len(t, rec.Disputes, 1)
	disputeID := rec.Disputes[0].DisputeID
	assert.Equal(t, models.DisputePending, rec.Disputes[0].Status)
	assert.Empty(t, h.published, "a disputed block keeps the content withdrawn")

	_, err = h.svc.DisputeClaim(ctx, "v1", DisputeInput{ClaimID: claimID, DisputedBy: creator, Reason: models.DisputeFairUse})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	rec, err = h.svc.ResolveDispute(ctx, "v1", disputeID, ResolveDisputeInput{
		Decision: models.DisputeRejected, Reason: "original work", DecidedBy: "mod-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RightsClear, rec.Status)
	assert.Equal(t, models.ClaimReleased, rec.Claims[0].Status)
	require.NotNil(t, rec.Disputes[0].Resolution)
	assert.Equal(t, "mod-1", rec.Disputes[0].Resolution.DecidedBy)
	require.NotNil(t, rec.Enforcement.Actions[0].ReversedAt)
	assert.Zero(t, rec.Enforcement.Strikes)
	assert.Zero(t, h.strikes(t))
	assert.Equal(t, []string{"v1"}, h.published)

	_, err = h.svc.ResolveDispute(ctx, "v1", disputeID, ResolveDisputeInput{Decision: models.DisputeUpheld, DecidedBy: "mod-1"})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = h.svc.DisputeClaim(ctx, "v1", DisputeInput{ClaimID: claimID, DisputedBy: creator, Reason: models.DisputeFairUse})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestUpheldDisputeKeepsClaimAndStrikes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")
	rec, err := h.svc.FileClaim(ctx, "v1", monetize(nil))
	require.NoError(t, err)
	rec, err = h.svc.DisputeClaim(ctx, "v1", DisputeInput{ClaimID: rec.Claims[0].ClaimID, DisputedBy: creator, Reason: models.DisputeLicensed})
	require.NoError(t, err)

	_, err = h.svc.ResolveDispute(ctx, "v1", rec.Disputes[0].DisputeID, ResolveDisputeInput{Decision: "maybe", DecidedBy: "mod-1"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	rec, err = h.svc.ResolveDispute(ctx, "v1", rec.Disputes[0].DisputeID, ResolveDisputeInput{
		Decision: models.DisputeUpheld, Reason: "no license on file", DecidedBy: "mod-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RightsMonetizedShared, rec.Status)
	assert.Equal(t, models.ClaimActive, rec.Claims[0].Status)
	assert.Equal(t, models.DisputeUpheld, rec.Disputes[0].Status)
	require.Len(t, rec.Enforcement.Actions, 1)
	assert.Equal(t, models.ActionAccountStrike, rec.Enforcement.Actions[0].ActionType)
	assert.Equal(t, 1, h.strikes(t))
}

func TestUpheldDisputeWithoutStrikePolicy(t *testing.T) {
	h := newHarness(t)
	h.svc.policy.StrikeOnFailedDispute = false
	ctx := context.Background()
	h.register(t, "v1")
	rec, err := h.svc.FileClaim(ctx, "v1", monetize(nil))
	require.NoError(t, err)
	rec, err = h.svc.DisputeClaim(ctx, "v1", DisputeInput{ClaimID: rec.Claims[0].ClaimID, DisputedBy: creator, Reason: models.DisputeOther})
	require.NoError(t, err)
	rec, err = h.svc.ResolveDispute(ctx, "v1", rec.Disputes[0].DisputeID, ResolveDisputeInput{Decision: models.DisputeUpheld, DecidedBy: "mod-1"})
	require.NoError(t, err)
	assert.Empty(t, rec.Enforcement.Actions)
	assert.Zero(t, h.strikes(t))
}

func TestStatusFollowsRemainingClaims(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")
	track := monetize(nil)
	track.Action = models.ClaimTrack
	rec, err := h.svc.FileClaim(ctx, "v1", track)
	require.NoError(t, err)
	assert.Equal(t, models.RightsClaimed, rec.Status)

	rec, err = h.svc.FileClaim(ctx, "v1", monetize(nil))
	require.NoError(t, err)
	assert.Equal(t, models.RightsMonetizedShared, rec.Status)

	rec, err = h.svc.DisputeClaim(ctx, "v1", DisputeInput{ClaimID: rec.Claims[1].ClaimID, DisputedBy: creator, Reason: models.DisputeMisidentified})
	require.NoError(t, err)
	rec, err = h.svc.ResolveDispute(ctx, "v1", rec.Disputes[0].DisputeID, ResolveDisputeInput{Decision: models.DisputeRejected, DecidedBy: "mod-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RightsClaimed, rec.Status, "the tracking claim is still active")

	items, err := h.svc.List(ctx, models.RightsClaimed, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	_, err = h.svc.List(ctx, "whatever", 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEnforcementAppeal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "clean")
	_, err := h.svc.AppealEnforcement(ctx, "clean", creator, "nothing to appeal")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	h.register(t, "v1")
	_, err = h.svc.FileClaim(ctx, "v1", block())
	require.NoError(t, err)

	_, err = h.svc.ResolveEnforcementAppeal(ctx, "v1", "mod-1", true, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "nothing pending yet")

	rec, err := h.svc.AppealEnforcement(ctx, "v1", creator, "the block is wrong")
	require.NoError(t, err)
	assert.Equal(t, models.EnforcementAppealPending, rec.Enforcement.AppealStatus)
	_, err = h.svc.AppealEnforcement(ctx, "v1", creator, "again")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	rec, err = h.svc.ResolveEnforcementAppeal(ctx, "v1", "mod-1", true, "claimant overreached")
	require.NoError(t, err)
	assert.Equal(t, models.EnforcementAppealApproved, rec.Enforcement.AppealStatus)
	assert.Zero(t, rec.Enforcement.Strikes)
	assert.Zero(t, h.strikes(t))
	assert.Equal(t, models.RightsBlocked, rec.Status, "the claim itself still stands")

	entry, err := h.ledger.Entry(ctx, rec.Enforcement.Actions[0].StrikeID)
	require.NoError(t, err)
	assert.True(t, entry.Reversed)
}

func TestDeniedEnforcementAppealKeepsStrike(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")
	_, err := h.svc.FileClaim(ctx, "v1", block())
	require.NoError(t, err)
	_, err = h.svc.AppealEnforcement(ctx, "v1", creator, "please")
	require.NoError(t, err)

	rec, err := h.svc.ResolveEnforcementAppeal(ctx, "v1", "mod-1", false, "valid claim")
	require.NoError(t, err)
	assert.Equal(t, models.EnforcementAppealDenied, rec.Enforcement.AppealStatus)
	assert.Equal(t, 1, rec.Enforcement.Strikes)
	assert.Equal(t, 1, h.strikes(t))
}

func TestCanMonetizeStrikeLimit(t *testing.T) {
	h := newHarness(t)
	h.svc.policy.MonetizeStrikeLimit = 1
	ctx := context.Background()
	h.register(t, "v1")

	m, err := h.svc.CanMonetize(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, m.Eligible)

	rec, err := h.svc.FileClaim(ctx, "v1", monetize(nil))
	require.NoError(t, err)
	rec, err = h.svc.DisputeClaim(ctx, "v1", DisputeInput{ClaimID: rec.Claims[0].ClaimID, DisputedBy: creator, Reason: models.DisputeFairUse})
	require.NoError(t, err)
	_, err = h.svc.ResolveDispute(ctx, "v1", rec.Disputes[0].DisputeID, ResolveDisputeInput{Decision: models.DisputeUpheld, DecidedBy: "mod-1"})
	require.NoError(t, err)

	m, err = h.svc.CanMonetize(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, m.Eligible)
	assert.Equal(t, 1, m.Strikes)
}

func TestCatalogValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.UpsertSoundRight(ctx, &models.SoundRight{Title: "x", Policy: models.ClaimTrack, Holder: label}), apperr.ErrValidation)
	assert.ErrorIs(t, h.svc.UpsertSoundRight(ctx, &models.SoundRight{SoundRef: "s", Title: "x", Policy: "own", Holder: label}), apperr.ErrValidation)
	assert.ErrorIs(t, h.svc.UpsertSoundRight(ctx, &models.SoundRight{SoundRef: "s", Title: "x", Policy: models.ClaimTrack}), apperr.ErrValidation)

	sr := &models.SoundRight{
		SoundRef: "s", Title: "x", Policy: models.ClaimBlock, Holder: label,
		RevenueShare: &models.RevenueShare{RightsHolderPercentage: 50, CreatorPercentage: 50},
		Territories:  []string{"us", "US", ""},
	}
	require.NoError(t, h.svc.UpsertSoundRight(ctx, sr))
	got, err := h.svc.SoundRight(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, got.RevenueShare, "only monetize entries carry a share")
	assert.Equal(t, []string{"US"}, got.Territories)

	sr.Title = "renamed"
	require.NoError(t, h.svc.UpsertSoundRight(ctx, sr))
	got, err = h.svc.SoundRight(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)

	_, err = h.svc.SoundRight(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGetIncludesRoyalties(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "v1")
	_, err := h.svc.FileClaim(ctx, "v1", monetize(nil))
	require.NoError(t, err)
	_, err = h.svc.RecordRevenue(ctx, "v1", 400, "")
	require.NoError(t, err)

	rec, err := h.svc.Get(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, rec.Royalties)
	assert.EqualValues(t, 200, rec.Royalties.TotalEarned)

	ops := h.trail.Operations()
	assert.Equal(t, []string{"scan", "claim", "revenue"}, ops)
}
