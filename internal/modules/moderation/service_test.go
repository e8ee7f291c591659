package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mx-space/sentinel/internal/database/dbtest"
	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/modules/audit"
	"github.com/mx-space/sentinel/internal/modules/detection"
	"github.com/mx-space/sentinel/internal/modules/enforcement"
	"github.com/mx-space/sentinel/internal/modules/lifecycle"
	"github.com/mx-space/sentinel/internal/modules/notify"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"github.com/mx-space/sentinel/internal/pkg/retry"
	"github.com/mx-space/sentinel/internal/pkg/taskqueue"
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
	notified  *recordingNotifier
	published []string
	withdrawn []string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingNotifier) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{trail: audit.NewMemoryRecorder(), notified: &recordingNotifier{}}
	h.store = store.New(dbtest.Open(t))
	h.ledger = enforcement.NewLedger(h.store, 7*24*time.Hour, nil, nil)
	h.svc = NewService(Deps{
		Store:    h.store,
		Ledger:   h.ledger,
		Detector: stubDetector{},
		Lifecycle: lifecycle.Funcs{
			OnPublishable: func(_ context.Context, ref models.ContentRef) error {
				h.published = append(h.published, ref.ID)
				return nil
			},
			OnWithdrawn: func(_ context.Context, ref models.ContentRef, _ string) error {
				h.withdrawn = append(h.withdrawn, ref.ID)
				return nil
			},
		},
		Notifier: notify.NewDispatcher(h.notified, nil),
		Audit:    audit.NewTrail(h.trail, nil),
		Policy:   policy,
		Retry:    retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
	})
	return h
}

func video(id string) models.ContentRef {
	return models.ContentRef{Kind: models.ContentVideo, ID: id}
}

func lowRisk() models.Signals {
	return models.Signals{
		models.SignalNSFW:     {Detected: true, Confidence: 0.9},
		models.SignalViolence: {Detected: false},
	}
}

// 30 + 10 = 40, medium risk
func mediumRisk() models.Signals {
	return models.Signals{
		models.SignalNSFW: {Detected: true, Confidence: 1},
		models.SignalSpam: {Detected: true, Confidence: 100},
	}
}

// 30 + 30 = 60, high risk
func highRisk() models.Signals {
	return models.Signals{
		models.SignalNSFW:     {Detected: true, Confidence: 1},
		models.SignalViolence: {Detected: true, Confidence: 1},
	}
}

// 30 + 30 + 25 = 85, critical
func criticalRisk() models.Signals {
	sigs := highRisk()
	sigs[models.SignalHateSpeech] = models.Signal{Detected: true, Confidence: 1}
	return sigs
}

func (h *harness) submit(t *testing.T, id string, sigs models.Signals) *models.ModerationRecord {
	t.Helper()
	rec, err := h.svc.Submit(context.Background(), SubmitInput{Content: video(id), CreatorID: creator, Signals: sigs})
	require.NoError(t, err)
	return rec
}

func (h *harness) strikes(t *testing.T) int {
	t.Helper()
	n, err := h.ledger.StrikeCount(context.Background(), creator)
	require.NoError(t, err)
	return n
}

func TestSubmitLowRiskIsApprovedAndFlagged(t *testing.T) {
	h := newHarness(t)
	rec := h.submit(t, "v1", lowRisk())

	assert.Equal(t, models.ModerationApproved, rec.Status)
	assert.Equal(t, 27, rec.RiskScore)
	assert.Equal(t, 1, rec.Cycle)
	assert.Equal(t, models.RiskLow, rec.Assessment.RiskLevel)
	assert.Equal(t, models.RecommendFlag, rec.Assessment.RecommendedAction)
	assert.False(t, rec.ManualReview.Required)
	require.Len(t, rec.AutomatedActions, 1)
	assert.Equal(t, models.AutoFlagged, rec.AutomatedActions[0].Action)
	require.Len(t, rec.Violations, 1)
	assert.Equal(t, "nsfw", rec.Violations[0].Category)
	assert.Equal(t, models.SeverityLow, rec.Violations[0].Severity)
	assert.Equal(t, models.DetectedAutomated, rec.Violations[0].DetectedBy)
	assert.Equal(t, []string{"v1"}, h.published)
	assert.Zero(t, h.strikes(t))

	stored, err := h.svc.Get(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, rec.RiskScore, stored.RiskScore)
	assert.Equal(t, []string{"submit"}, h.trail.Operations())

	assert.Eventually(t, func() bool {
		names := h.notified.names()
		return len(names) == 1 && names[0] == notify.EventModerationApproved
	}, time.Second, 10*time.Millisecond)
}

func TestSubmitCriticalMinorSafetyQueuesUrgentReview(t *testing.T) {
	h := newHarness(t)
	sigs := models.Signals{
		models.SignalSpam: {Detected: true, Confidence: 1},
		models.SignalMinorSafety: {Concerns: []models.SafetyConcern{
			{Concern: "sexual_content_involving_minors", Severity: models.SeverityCritical, Confidence: 0.8},
		}},
	}
	rec := h.submit(t, "v1", sigs)

	assert.Equal(t, 10, rec.RiskScore)
	assert.Equal(t, models.ModerationUnderReview, rec.Status)
	assert.Equal(t, models.RecommendBanUser, rec.Assessment.RecommendedAction)
	assert.True(t, rec.ManualReview.Required)
	assert.Equal(t, models.PriorityUrgent, rec.ManualReview.Priority)
	require.Len(t, rec.AutomatedActions, 1)
	assert.Equal(t, models.AutoHidden, rec.AutomatedActions[0].Action)
	assert.Equal(t, []string{"v1"}, h.withdrawn)
	assert.Zero(t, h.strikes(t), "no strike before a human decision")

	queue, err := h.svc.PendingReviews(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "v1", queue[0].Content.ID)
}

func TestSubmitMediumRiskStaysPendingForTriage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.submit(t, "v1", mediumRisk())

	assert.Equal(t, 40, rec.RiskScore)
	assert.Equal(t, models.ModerationPending, rec.Status)
	assert.True(t, rec.ManualReview.Required)
	assert.Equal(t, models.PriorityLow, rec.ManualReview.Priority)
	assert.Equal(t, models.AutoAgeRestricted, rec.AutomatedActions[0].Action)

	flagged, err := h.svc.FlagForReview(ctx, "v1", "mod-1", "looks like an ad")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationFlagged, flagged.Status)
	assert.Equal(t, 40, flagged.RiskScore)

	_, err = h.svc.Approve(ctx, "v1", "", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	approved, err := h.svc.Approve(ctx, "v1", "mod-2", "fine")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationApproved, approved.Status)
	assert.True(t, approved.ManualReview.Completed)
	assert.Equal(t, models.DecisionApprove, approved.ManualReview.Decision)
	assert.Equal(t, "mod-2", approved.ManualReview.Reviewer)
	require.NotNil(t, approved.ManualReview.ReviewedAt)

	queue, err := h.svc.PendingReviews(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestAutomatedApprovalLeavesReviewQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.submit(t, "v1", mediumRisk())
	require.Equal(t, models.ModerationPending, rec.Status)
	require.True(t, rec.ManualReview.Required)

	approved, err := h.svc.Approve(ctx, "v1", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationApproved, approved.Status)
	assert.False(t, approved.ManualReview.Required)
	assert.False(t, approved.ManualReview.Completed)

	queue, err := h.svc.PendingReviews(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestRescanOfPendingRecordRedecides(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "v1", mediumRisk())

	rec := h.submit(t, "v1", models.Signals{})
	assert.Equal(t, models.ModerationApproved, rec.Status)
	assert.Equal(t, 2, rec.Cycle)
	assert.False(t, rec.ManualReview.Required)
}

func TestRescanOfDecidedRecordOnlyRefreshesScore(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "v1", models.Signals{})

	rec := h.submit(t, "v1", criticalRisk())
	assert.Equal(t, models.ModerationApproved, rec.Status)
	assert.Equal(t, 85, rec.RiskScore)
	assert.Equal(t, models.RiskCritical, rec.Assessment.RiskLevel)
	assert.Equal(t, 2, rec.Cycle)
	assert.Empty(t, rec.AutomatedActions)
	assert.Equal(t, []string{"submit", "rescan"}, h.trail.Operations())
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "v1", lowRisk())

	cases := map[string]SubmitInput{
		"foreign creator": {Content: video("v1"), CreatorID: "someone-else"},
		"kind mismatch":   {Content: models.ContentRef{Kind: models.ContentImage, ID: "v1"}, CreatorID: creator},
		"unknown kind":    {Content: models.ContentRef{Kind: "podcast", ID: "v2"}, CreatorID: creator},
		"missing creator": {Content: video("v2")},
		"bad confidence":  {Content: video("v2"), CreatorID: creator, Signals: models.Signals{models.SignalNSFW: {Detected: true, Confidence: 101}}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.Submit(ctx, in)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestRejectAndOverturnedAppealRollsBackStrike(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "v1", highRisk())

	_, err := h.svc.Reject(ctx, "v1", RejectInput{Reason: "gore"})
	assert.ErrorIs(t, err, apperr.ErrValidation, "reviewer is mandatory")

	rejected, err := h.svc.Reject(ctx, "v1", RejectInput{
		ReviewerID: "mod-1",
		Reason:     "graphic violence",
		Categories: []string{"violence", "nsfw", "violence"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ModerationRejected, rejected.Status)
	assert.True(t, rejected.ManualReview.Completed)
	assert.Equal(t, models.DecisionReject, rejected.ManualReview.Decision)
	assert.Equal(t, []string{"nsfw", "violence"}, rejected.ManualReview.Categories)
	require.Len(t, rejected.Violations, 2)
	for _, v := range rejected.Violations {
		assert.Equal(t, models.SeverityHigh, v.Severity)
		assert.Equal(t, models.DetectedManual, v.DetectedBy)
	}
	assert.Equal(t, models.ActionContentRemoved, rejected.Action.Type)
	assert.Equal(t, rejected.Cycle, rejected.Action.Cycle)
	require.NotEmpty(t, rejected.Action.StrikeID)
	assert.Equal(t, 1, h.strikes(t))
	assert.Equal(t, 1, rejected.Assessment.StrikeCount)

	appealed, err := h.svc.SubmitAppeal(ctx, "v1", creator, "it is a movie scene", "fx")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationAppealed, appealed.Status)
	assert.Equal(t, models.AppealPending, appealed.Appeal.AppealDecision)
	assert.True(t, appealed.Appeal.HasAppeal)

	appeals, err := h.svc.PendingAppeals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, appeals, 1)

	resolved, err := h.svc.ResolveAppeal(ctx, "v1", "mod-2", models.AppealOverturned, "special effects")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationApproved, resolved.Status)
	assert.Equal(t, models.AppealOverturned, resolved.Appeal.AppealDecision)
	require.NotNil(t, resolved.Appeal.AppealResolvedAt)
	require.NotNil(t, resolved.Action.ReversedAt)
	assert.Equal(t, "mod-2", resolved.ManualReview.Reviewer)
	assert.Equal(t, 0, h.strikes(t))

	entry, err := h.ledger.Entry(ctx, rejected.Action.StrikeID)
	require.NoError(t, err)
	assert.True(t, entry.Reversed, "the strike is marked, not deleted")
	assert.Equal(t, "mod-2", entry.ReversedBy)

	assert.Contains(t, h.withdrawn, "v1")
	assert.Contains(t, h.published, "v1")
}

func TestUpheldAppealKeepsStrike(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "v1", highRisk())
	_, err := h.svc.Reject(ctx, "v1", RejectInput{ReviewerID: "mod-1", Reason: "gore"})
	require.NoError(t, err)
	_, err = h.svc.SubmitAppeal(ctx, "v1", creator, "please", "")
	require.NoError(t, err)

	_, err = h.svc.ResolveAppeal(ctx, "v1", "mod-2", "maybe", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	rec, err := h.svc.ResolveAppeal(ctx, "v1", "mod-2", models.AppealUpheld, "policy is clear")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationRejected, rec.Status)
	assert.Equal(t, models.AppealUpheld, rec.Appeal.AppealDecision)
	require.NotNil(t, rec.Appeal.AppealResolvedAt)
	assert.Equal(t, 1, h.strikes(t))

	// the creator may appeal the upheld decision once more
	again, err := h.svc.SubmitAppeal(ctx, "v1", creator, "new evidence", "")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationAppealed, again.Status)
	assert.Equal(t, models.AppealPending, again.Appeal.AppealDecision)
	assert.Nil(t, again.Appeal.AppealResolvedAt)
}

func TestAppealRequiresRejectedStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "pending", mediumRisk())
	h.submit(t, "approved", lowRisk())
	h.submit(t, "review", highRisk())

	for _, id := range []string{"pending", "approved", "review"} {
		t.Run(id, func(t *testing.T) {
			before, err := h.svc.Get(ctx, id)
			require.NoError(t, err)

			_, err = h.svc.SubmitAppeal(ctx, id, creator, "unfair", "")
			assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

			after, err := h.svc.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, before.Version, after.Version)
			assert.Equal(t, before.Status, after.Status)
			assert.False(t, after.Appeal.HasAppeal)
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "v1", lowRisk())

	_, err := h.svc.Reject(ctx, "v1", RejectInput{ReviewerID: "mod-1", Reason: "late"})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = h.svc.FlagForReview(ctx, "v1", "mod-1", "late")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = h.svc.MarkForReview(ctx, "v1", "mod-1", models.PriorityHigh, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = h.svc.ResolveAppeal(ctx, "v1", "mod-1", models.AppealOverturned, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = h.svc.Approve(ctx, "v1", "mod-1", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = h.svc.Approve(ctx, "missing", "mod-1", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	rec, err := h.svc.Get(ctx, "v1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, rec.Version)
	assert.Zero(t, h.strikes(t))
}

func TestMarkForReviewUsesRequestedPriority(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "v1", mediumRisk())

	_, err := h.svc.MarkForReview(ctx, "v1", "mod-1", "asap", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	rec, err := h.svc.MarkForReview(ctx, "v1", "mod-1", models.PriorityHigh, "escalated by support")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationUnderReview, rec.Status)
	assert.Equal(t, models.PriorityHigh, rec.ManualReview.Priority)
	assert.Equal(t, []string{"v1"}, h.withdrawn)
}

func TestEscalationBansRepeatOffender(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _, err := h.ledger.Apply(ctx, enforcement.ActionRequest{
			CreatorID:  creator,
			ContentID:  fmt.Sprintf("old-%d", i),
			ActionType: models.ActionContentRemoved,
			Reason:     "earlier removal",
			AppliedBy:  "mod-1",
			Source:     models.SourceRights,
			DedupKey:   "1",
		})
		require.NoError(t, err)
	}

	rec := h.submit(t, "v1", criticalRisk())
	assert.Equal(t, models.RecommendBanUser, rec.Assessment.RecommendedAction)
	assert.Equal(t, models.PriorityHigh, rec.ManualReview.Priority)
	assert.Equal(t, 2, rec.Assessment.StrikeCount)

	clean := h.submit(t, "v2", nil)
	assert.Equal(t, models.ModerationApproved, clean.Status)
}

func TestRetriedRejectionCountsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.submit(t, "v1", highRisk())

	// a strike for this cycle already exists, e.g. from an earlier attempt
	// whose response was lost
	_, _, err := h.ledger.Apply(ctx, enforcement.ActionRequest{
		CreatorID:  creator,
		ContentID:  "v1",
		ActionType: models.ActionContentRemoved,
		Reason:     "gore",
		AppliedBy:  "mod-1",
		Source:     models.SourceModeration,
		DedupKey:   "1",
	})
	require.NoError(t, err)
	require.Equal(t, 1, rec.Cycle)

	_, err = h.svc.Reject(ctx, "v1", RejectInput{ReviewerID: "mod-1", Reason: "gore"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.strikes(t))
}

func TestStaleSaveConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "v1", lowRisk())

	a, err := h.store.GetModeration(ctx, "v1")
	require.NoError(t, err)
	b, err := h.store.GetModeration(ctx, "v1")
	require.NoError(t, err)

	a.UserReports.Count = 1
	require.NoError(t, h.store.SaveModeration(ctx, a, a.Version))

	b.UserReports.Count = 2
	err = h.store.SaveModeration(ctx, b, b.Version)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	stored, err := h.store.GetModeration(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UserReports.Count)
}

func TestReportFlagsPendingItemAfterThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "v1", mediumRisk())

	_, err := h.svc.Report(ctx, "v1", "user-1", "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	var rec *models.ModerationRecord
	for i := 1; i <= reportFlagThreshold; i++ {
		rec, err = h.svc.Report(ctx, "v1", fmt.Sprintf("user-%d", i), "spam")
		require.NoError(t, err)
		if i < reportFlagThreshold {
			assert.Equal(t, models.ModerationPending, rec.Status)
		}
	}
	assert.Equal(t, models.ModerationFlagged, rec.Status)
	assert.Equal(t, reportFlagThreshold, rec.UserReports.Count)
	assert.Len(t, rec.UserReports.Reports, reportFlagThreshold)
	assert.Equal(t, models.DetectedUserReport, rec.Violations[len(rec.Violations)-1].DetectedBy)
}

func TestHighRiskQueueAndStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "low", lowRisk())
	h.submit(t, "medium", mediumRisk())
	h.submit(t, "high", highRisk())
	h.submit(t, "critical", criticalRisk())

	items, err := h.svc.HighRisk(ctx, 40, 10)
	require.NoError(t, err)
	var ids []string
	for _, it := range items {
		ids = append(ids, it.Content.ID)
	}
	assert.Equal(t, []string{"critical", "high", "medium"}, ids)

	items, err = h.svc.HighRisk(ctx, -1, 10)
	require.NoError(t, err)
	require.Len(t, items, 1, "default threshold is 70")

	_, err = h.svc.HighRisk(ctx, 101, 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	stats, err := h.svc.Stats(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.Total)
	assert.InDelta(t, float64(27+40+60+85)/4, stats.AvgRiskScore, 0.001)

	_, err = h.svc.Stats(ctx, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreatorViolationsAndFlaggedContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "low", lowRisk())
	h.submit(t, "medium", mediumRisk())
	h.submit(t, "high", highRisk())
	h.submit(t, "critical", criticalRisk())
	_, err := h.svc.Submit(ctx, SubmitInput{Content: video("other"), CreatorID: "creator-2", Signals: criticalRisk()})
	require.NoError(t, err)

	items, err := h.svc.CreatorViolations(ctx, creator, 10)
	require.NoError(t, err)
	var ids []string
	for _, it := range items {
		ids = append(ids, it.Content.ID)
	}
	assert.ElementsMatch(t, []string{"high", "critical"}, ids)

	_, err = h.svc.CreatorViolations(ctx, " ", 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	items, err = h.svc.FlaggedContent(ctx, models.SignalViolence, 10)
	require.NoError(t, err)
	ids = ids[:0]
	for _, it := range items {
		ids = append(ids, it.Content.ID)
	}
	require.Len(t, ids, 3)
	assert.ElementsMatch(t, []string{"critical", "other"}, ids[:2], "riskiest first")
	assert.Equal(t, "high", ids[2])

	items, err = h.svc.FlaggedContent(ctx, models.SignalSpam, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "medium", items[0].Content.ID)

	_, err = h.svc.FlaggedContent(ctx, "sarcasm", 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReconcileRiskScoresAfterWeightChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submit(t, "v1", lowRisk())
	h.submit(t, "v2", models.Signals{})

	h.svc.policy.Weights.NSFW = 50
	fixed, err := h.svc.ReconcileRiskScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)

	rec, err := h.svc.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 45, rec.RiskScore)
	assert.Equal(t, models.RiskMedium, rec.Assessment.RiskLevel)
	assert.Equal(t, models.ModerationApproved, rec.Status, "reconciling never changes the decision")

	fixed, err = h.svc.ReconcileRiskScores(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}

type stubDetector struct{}

func (stubDetector) Name() string { return "stub" }

func (stubDetector) Detect(_ context.Context, in detection.Input) (models.Signals, error) {
	switch {
	case strings.Contains(in.Text, "boom"):
		return nil, errors.New("detector exploded")
	case strings.Contains(in.Text, "gore"):
		return highRisk(), nil
	}
	return models.Signals{}, nil
}

type fakeQueue struct {
	tasks []*taskqueue.Task
}

func (q *fakeQueue) Enqueue(_ context.Context, taskType string, payload interface{}, dedupKey, groupKey string) (*taskqueue.Task, error) {
	for _, t := range q.tasks {
		if t.Type == taskType && t.DedupKey == dedupKey && t.Status == taskqueue.TaskPending {
			return t, nil
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	task := &taskqueue.Task{
		ID:       fmt.Sprintf("task-%d", len(q.tasks)+1),
		Type:     taskType,
		Payload:  raw,
		Status:   taskqueue.TaskPending,
		DedupKey: dedupKey,
		GroupKey: groupKey,
	}
	q.tasks = append(q.tasks, task)
	return task, nil
}

func (q *fakeQueue) ClaimPending(_ context.Context, taskType string, n int) ([]*taskqueue.Task, error) {
	var out []*taskqueue.Task
	for _, t := range q.tasks {
		if len(out) == n {
			break
		}
		if t.Type == taskType && t.Status == taskqueue.TaskPending {
			t.Status = taskqueue.TaskRunning
			out = append(out, t)
		}
	}
	return out, nil
}

func (q *fakeQueue) UpdateStatus(_ context.Context, id string, status taskqueue.TaskStatus, _ interface{}, errMsg string) error {
	for _, t := range q.tasks {
		if t.ID == id {
			t.Status, t.Error = status, errMsg
			return nil
		}
	}
	return apperr.NotFound("task %s", id)
}

func TestProcessScanQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := &fakeQueue{}

	first, err := h.svc.EnqueueScan(ctx, q, ScanInput{Content: video("v1"), CreatorID: creator, Text: "gore compilation"})
	require.NoError(t, err)
	dup, err := h.svc.EnqueueScan(ctx, q, ScanInput{Content: video("v1"), CreatorID: creator, Text: "gore compilation"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, dup.ID)

	_, err = h.svc.EnqueueScan(ctx, q, ScanInput{Content: video("v2"), CreatorID: creator, Text: "boom"})
	require.NoError(t, err)
	_, err = h.svc.EnqueueScan(ctx, q, ScanInput{Content: video("v3"), CreatorID: creator, Text: "cooking"})
	require.NoError(t, err)
	_, err = h.svc.EnqueueScan(ctx, q, ScanInput{Content: video(""), CreatorID: creator})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	done, err := h.svc.ProcessScanQueue(ctx, q, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Equal(t, taskqueue.TaskCompleted, q.tasks[0].Status)
	assert.Equal(t, taskqueue.TaskFailed, q.tasks[1].Status)
	assert.Contains(t, q.tasks[1].Error, "detector exploded")
	assert.Equal(t, taskqueue.TaskPending, q.tasks[2].Status)

	done, err = h.svc.ProcessScanQueue(ctx, q, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	rec, err := h.svc.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationUnderReview, rec.Status)
	_, err = h.svc.Get(ctx, "v2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
