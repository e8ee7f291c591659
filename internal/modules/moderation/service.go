// Package moderation is the moderation decision engine: it scores detector
// signals, decides the automated outcome and drives the review and appeal
// state machine of each content item.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mx-space/sentinel/internal/config"
	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/modules/audit"
	"github.com/mx-space/sentinel/internal/modules/detection"
	"github.com/mx-space/sentinel/internal/modules/enforcement"
	"github.com/mx-space/sentinel/internal/modules/lifecycle"
	"github.com/mx-space/sentinel/internal/modules/notify"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"github.com/mx-space/sentinel/internal/pkg/metrics"
	"github.com/mx-space/sentinel/internal/pkg/retry"
	"github.com/mx-space/sentinel/internal/store"
	"go.uber.org/zap"
)

const (
	// reportFlagThreshold is the number of user reports that sends a pending
	// item to the review queue.
	reportFlagThreshold = 3
	reconcileBatchSize  = 200
	maxStatsDays        = 365
)

// Deps are the collaborators of the engine. Store and Ledger are required.
type Deps struct {
	Store     *store.Store
	Ledger    *enforcement.Ledger
	Detector  detection.Detector
	Lifecycle lifecycle.Publisher
	Notifier  *notify.Dispatcher
	Audit     *audit.Trail
	Metrics   *metrics.Metrics
	Policy    config.PolicyConfig
	Retry     retry.Policy
	Logger    *zap.Logger
}

type Service struct {
	store     *store.Store
	ledger    *enforcement.Ledger
	detector  detection.Detector
	lifecycle lifecycle.Publisher
	notifier  *notify.Dispatcher
	audit     *audit.Trail
	metrics   *metrics.Metrics
	policy    config.PolicyConfig
	retry     retry.Policy
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rp := d.Retry
	if rp.MaxAttempts == 0 {
		rp = retry.DefaultPolicy
	}
	return &Service{
		store:     d.Store,
		ledger:    d.Ledger,
		detector:  d.Detector,
		lifecycle: d.Lifecycle,
		notifier:  d.Notifier,
		audit:     d.Audit,
		metrics:   d.Metrics,
		policy:    d.Policy,
		retry:     rp,
		logger:    logger.Named("ModerationService"),
		now:       time.Now,
	}
}

// Policy returns the decision constants in use.
func (s *Service) Policy() config.PolicyConfig { return s.policy }

// change describes a committed mutation for the post-commit side effects.
type change struct {
	op     string
	actor  string
	from   models.ModerationStatus
	event  string
	reason string
	data   map[string]interface{}
}

// Submit records a detection pass. The first pass creates the record and
// decides the automated outcome; later passes on a record that already left
// pending only refresh its signals and score.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.ModerationRecord, error) {
	if err := validateSubmit(in); err != nil {
		return nil, err
	}

	var (
		out *models.ModerationRecord
		ch  change
	)
	err := s.withRetry(ctx, "submit", func(ctx context.Context) error {
		return s.store.Transaction(ctx, func(ctx context.Context) error {
			rec, err := s.store.GetModeration(ctx, in.Content.ID)
			created := false
			switch {
			case errors.Is(err, apperr.ErrNotFound):
				rec = &models.ModerationRecord{
					Content:   in.Content,
					CreatorID: in.CreatorID,
					Status:    models.ModerationPending,
				}
				created = true
			case err != nil:
				return err
			case rec.CreatorID != in.CreatorID:
				return apperr.Validation("content %s belongs to creator %s", in.Content.ID, rec.CreatorID)
			case rec.Content.Kind != in.Content.Kind:
				return apperr.Validation("content %s is a %s, not a %s", in.Content.ID, rec.Content.Kind, in.Content.Kind)
			}

			expected := rec.Version
			ch = change{op: "submit", actor: "system", from: rec.Status}
			if err := s.applyPass(ctx, rec, in.Signals, &ch); err != nil {
				return err
			}
			if created {
				if err := s.store.CreateModeration(ctx, rec); err != nil {
					return err
				}
			} else if err := s.store.SaveModeration(ctx, rec, expected); err != nil {
				return err
			}
			out = rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RiskScore(out.RiskScore)
	s.after(ctx, out, ch)
	return out, nil
}

// applyPass stores the signals, bumps the cycle and, for a pending record,
// applies the automated outcome.
func (s *Service) applyPass(ctx context.Context, rec *models.ModerationRecord, sigs models.Signals, ch *change) error {
	if sigs == nil {
		sigs = models.Signals{}
	}
	rec.Signals = sigs
	rec.Cycle++
	if err := s.recompute(ctx, rec); err != nil {
		return err
	}
	if rec.Status != models.ModerationPending {
		ch.op = "rescan"
		return nil
	}

	now := s.now()
	a := rec.Assessment
	rec.ManualReview = models.ManualReview{}
	ch.reason = fmt.Sprintf("automated %s at risk score %d", a.RecommendedAction, rec.RiskScore)
	switch a.RecommendedAction {
	case models.RecommendAllow:
		rec.Status = models.ModerationApproved
		ch.event = notify.EventModerationApproved
	case models.RecommendFlag:
		rec.Status = models.ModerationApproved
		ch.event = notify.EventModerationApproved
		s.recordAutomated(rec, models.AutoFlagged, ch.reason, now)
		for _, name := range detectedSignals(sigs) {
			rec.Violations = append(rec.Violations, models.Violation{
				Category: string(name), Severity: models.SeverityLow,
				DetectedBy: models.DetectedAutomated, Timestamp: now,
			})
		}
	case models.RecommendRestrict:
		// stays pending in the triage queue, age restricted meanwhile
		rec.ManualReview = models.ManualReview{Required: true, Priority: a.ReviewPriority}
		ch.event = notify.EventModerationFlagged
		s.recordAutomated(rec, models.AutoAgeRestricted, ch.reason, now)
	default:
		rec.Status = models.ModerationUnderReview
		ch.event = notify.EventModerationUnderReview
		rec.ManualReview = models.ManualReview{Required: true, Priority: a.ReviewPriority}
		s.recordAutomated(rec, models.AutoHidden, ch.reason, now)
	}
	return nil
}

// recordAutomated appends an automated action unless the same action is
// already the latest one.
func (s *Service) recordAutomated(rec *models.ModerationRecord, kind models.AutomatedActionKind, reason string, at time.Time) {
	if n := len(rec.AutomatedActions); n > 0 && rec.AutomatedActions[n-1].Action == kind {
		return
	}
	rec.AutomatedActions = append(rec.AutomatedActions, models.AutomatedAction{
		Action: kind, Reason: reason, AppliedAt: at, Reversible: true,
	})
}

// Scan runs the configured detectors over the content and submits the result.
func (s *Service) Scan(ctx context.Context, in ScanInput) (*models.ModerationRecord, error) {
	if s.detector == nil {
		return nil, apperr.Validation("no detector configured")
	}
	if err := validateRef(in.Content, in.CreatorID); err != nil {
		return nil, err
	}
	sigs, err := s.detector.Detect(ctx, detection.Input{
		Content:   in.Content,
		CreatorID: in.CreatorID,
		Text:      in.Text,
		MediaURLs: in.MediaURLs,
	})
	if err != nil {
		return nil, fmt.Errorf("detect %s: %w", in.Content, err)
	}
	return s.Submit(ctx, SubmitInput{Content: in.Content, CreatorID: in.CreatorID, Signals: sigs})
}

// Approve publishes the content. Items waiting for review can only be
// approved by a reviewer.
func (s *Service) Approve(ctx context.Context, contentID, reviewerID, notes string) (*models.ModerationRecord, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	return s.mutate(ctx, "approve", contentID, reviewerID, func(ctx context.Context, rec *models.ModerationRecord, ch *change) error {
		switch rec.Status {
		case models.ModerationPending:
		case models.ModerationFlagged, models.ModerationUnderReview:
			if reviewerID == "" {
				return apperr.InvalidTransition("%s content %s needs a reviewer to approve", rec.Status, contentID)
			}
		default:
			return apperr.InvalidTransition("cannot approve %s content %s", rec.Status, contentID)
		}
		s.approve(rec, reviewerID, notes)
		ch.event = notify.EventModerationApproved
		return nil
	})
}

func (s *Service) approve(rec *models.ModerationRecord, reviewerID, notes string) {
	rec.Status = models.ModerationApproved
	if reviewerID == "" {
		// an automated approval closes the triage entry without a review
		rec.ManualReview.Required = false
		return
	}
	now := s.now()
	rec.ManualReview.Completed = true
	rec.ManualReview.Reviewer = reviewerID
	rec.ManualReview.Decision = models.DecisionApprove
	rec.ManualReview.Notes = notes
	rec.ManualReview.ReviewedAt = &now
}

// Reject removes the content and records a content_removed strike against
// the creator in the same transaction. The strike is keyed by the decision
// cycle so a retried rejection does not count twice.
func (s *Service) Reject(ctx context.Context, contentID string, in RejectInput) (*models.ModerationRecord, error) {
	in.ReviewerID = strings.TrimSpace(in.ReviewerID)
	in.Reason = strings.TrimSpace(in.Reason)
	if in.ReviewerID == "" {
		return nil, apperr.Validation("reviewer is required")
	}
	if in.Reason == "" {
		return nil, apperr.Validation("reason is required")
	}
	categories := normalizeCategories(in.Categories)

	return s.mutate(ctx, "reject", contentID, in.ReviewerID, func(ctx context.Context, rec *models.ModerationRecord, ch *change) error {
		switch rec.Status {
		case models.ModerationPending, models.ModerationFlagged, models.ModerationUnderReview:
		default:
			return apperr.InvalidTransition("cannot reject %s content %s", rec.Status, contentID)
		}

		now := s.now()
		rec.Status = models.ModerationRejected
		rec.ManualReview.Completed = true
		rec.ManualReview.Reviewer = in.ReviewerID
		rec.ManualReview.Decision = models.DecisionReject
		rec.ManualReview.Reason = in.Reason
		rec.ManualReview.Notes = in.Notes
		rec.ManualReview.Categories = categories
		rec.ManualReview.ReviewedAt = &now
		for _, cat := range categories {
			rec.Violations = append(rec.Violations, models.Violation{
				Category: cat, Severity: models.SeverityHigh,
				DetectedBy: models.DetectedManual, Timestamp: now,
			})
		}

		ch.event = notify.EventModerationRejected
		ch.reason = in.Reason
		if rec.Action.Cycle == rec.Cycle && rec.Action.AppliedAt != nil && rec.Action.ReversedAt == nil {
			return nil
		}
		entry, _, err := s.ledger.Apply(ctx, enforcement.ActionRequest{
			CreatorID:  rec.CreatorID,
			ContentID:  rec.Content.ID,
			ActionType: models.ActionContentRemoved,
			Reason:     in.Reason,
			AppliedBy:  in.ReviewerID,
			Source:     models.SourceModeration,
			DedupKey:   strconv.Itoa(rec.Cycle),
		})
		if err != nil {
			return err
		}
		rec.Action = models.AppliedAction{
			Type:      models.ActionContentRemoved,
			Reason:    in.Reason,
			AppliedBy: in.ReviewerID,
			AppliedAt: &now,
			ExpiresAt: entry.ExpiresAt,
			StrikeID:  entry.ID,
			Cycle:     rec.Cycle,
		}
		return nil
	})
}

// FlagForReview queues a pending item for a human decision.
func (s *Service) FlagForReview(ctx context.Context, contentID, actor, reason string) (*models.ModerationRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason is required")
	}
	return s.mutate(ctx, "flag", contentID, actor, func(_ context.Context, rec *models.ModerationRecord, ch *change) error {
		if rec.Status != models.ModerationPending {
			return apperr.InvalidTransition("cannot flag %s content %s", rec.Status, contentID)
		}
		s.flag(rec, reason)
		ch.event = notify.EventModerationFlagged
		ch.reason = reason
		return nil
	})
}

func (s *Service) flag(rec *models.ModerationRecord, reason string) {
	priority := rec.Assessment.ReviewPriority
	if priority == models.PriorityNone {
		priority = models.PriorityLow
	}
	rec.Status = models.ModerationFlagged
	rec.ManualReview.Required = true
	rec.ManualReview.Completed = false
	rec.ManualReview.Priority = priority
	rec.ManualReview.Reason = reason
}

// MarkForReview moves a pending item to under_review at the given priority,
// or at the assessed priority when none is given.
func (s *Service) MarkForReview(ctx context.Context, contentID, actor string, priority models.ReviewPriority, reason string) (*models.ModerationRecord, error) {
	switch priority {
	case models.PriorityNone, models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent:
	default:
		return nil, apperr.Validation("unknown review priority %q", priority)
	}
	return s.mutate(ctx, "review", contentID, actor, func(_ context.Context, rec *models.ModerationRecord, ch *change) error {
		if rec.Status != models.ModerationPending {
			return apperr.InvalidTransition("cannot queue %s content %s for review", rec.Status, contentID)
		}
		p := priority
		if p == models.PriorityNone {
			p = rec.Assessment.ReviewPriority
		}
		if p == models.PriorityNone {
			p = models.PriorityMedium
		}
		rec.Status = models.ModerationUnderReview
		rec.ManualReview.Required = true
		rec.ManualReview.Completed = false
		rec.ManualReview.Priority = p
		rec.ManualReview.Reason = strings.TrimSpace(reason)
		ch.event = notify.EventModerationUnderReview
		ch.reason = reason
		return nil
	})
}

// SubmitAppeal files the creator's appeal against a rejection.
func (s *Service) SubmitAppeal(ctx context.Context, contentID, actor, reason, notes string) (*models.ModerationRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("appeal reason is required")
	}
	return s.mutate(ctx, "appeal", contentID, actor, func(_ context.Context, rec *models.ModerationRecord, ch *change) error {
		if rec.Status != models.ModerationRejected {
			return apperr.InvalidTransition("can only appeal rejected content, %s is %s", contentID, rec.Status)
		}
		now := s.now()
		rec.Status = models.ModerationAppealed
		rec.Appeal = models.Appeal{
			HasAppeal:      true,
			AppealedAt:     &now,
			AppealReason:   reason,
			AppealNotes:    notes,
			AppealDecision: models.AppealPending,
		}
		ch.event = notify.EventModerationAppealed
		ch.reason = reason
		return nil
	})
}

// ResolveAppeal decides a pending appeal. Overturning reverses the strike
// raised by the rejection and approves the content; upholding returns it to
// rejected.
func (s *Service) ResolveAppeal(ctx context.Context, contentID, reviewerID string, decision models.AppealDecision, resolution string) (*models.ModerationRecord, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return nil, apperr.Validation("reviewer is required")
	}
	if decision != models.AppealUpheld && decision != models.AppealOverturned {
		return nil, apperr.Validation("unknown appeal decision %q", decision)
	}
	return s.mutate(ctx, "resolve_appeal", contentID, reviewerID, func(ctx context.Context, rec *models.ModerationRecord, ch *change) error {
		if rec.Status != models.ModerationAppealed {
			return apperr.InvalidTransition("no pending appeal on %s content %s", rec.Status, contentID)
		}
		now := s.now()
		rec.Appeal.AppealDecision = decision
		rec.Appeal.AppealReviewer = reviewerID
		rec.Appeal.AppealResolution = resolution
		rec.Appeal.AppealResolvedAt = &now
		ch.event = notify.EventAppealResolved
		ch.reason = resolution
		ch.data = map[string]interface{}{"decision": decision}

		if decision == models.AppealUpheld {
			rec.Status = models.ModerationRejected
			return nil
		}
		if rec.Action.StrikeID != "" && rec.Action.ReversedAt == nil {
			_, err := s.ledger.Reverse(ctx, rec.Action.StrikeID, reviewerID, "appeal overturned: "+resolution)
			if err != nil && !errors.Is(err, apperr.ErrInvalidTransition) {
				return err
			}
			rec.Action.ReversedAt = &now
		}
		s.approve(rec, reviewerID, "Appeal overturned: "+resolution)
		return nil
	})
}

// Report records a user report. A pending item that collects enough reports
// is flagged for review.
func (s *Service) Report(ctx context.Context, contentID, reportedBy, reason string) (*models.ModerationRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("report reason is required")
	}
	return s.mutate(ctx, "report", contentID, reportedBy, func(_ context.Context, rec *models.ModerationRecord, ch *change) error {
		now := s.now()
		rec.UserReports.Count++
		rec.UserReports.Reports = append(rec.UserReports.Reports, models.UserReport{
			Reason: reason, ReportedBy: reportedBy, Timestamp: now,
		})
		rec.Violations = append(rec.Violations, models.Violation{
			Category: reason, Severity: models.SeverityLow,
			DetectedBy: models.DetectedUserReport, Timestamp: now,
		})
		ch.event = notify.EventContentReported
		ch.reason = reason
		if rec.Status == models.ModerationPending && rec.UserReports.Count >= reportFlagThreshold {
			s.flag(rec, fmt.Sprintf("%d user reports", rec.UserReports.Count))
		}
		return nil
	})
}

func (s *Service) Get(ctx context.Context, contentID string) (*models.ModerationRecord, error) {
	return s.store.GetModeration(ctx, contentID)
}

// PendingReviews returns the review queue, oldest first.
func (s *Service) PendingReviews(ctx context.Context, limit int) ([]models.ModerationRecord, error) {
	return s.store.PendingReviews(ctx, limit)
}

// HighRisk returns undecided items at or above threshold, riskiest first. A
// negative threshold uses the configured default.
func (s *Service) HighRisk(ctx context.Context, threshold, limit int) ([]models.ModerationRecord, error) {
	if threshold < 0 {
		threshold = s.policy.HighRiskThreshold
	}
	if threshold > 100 {
		return nil, apperr.Validation("threshold %d out of range", threshold)
	}
	return s.store.HighRisk(ctx, threshold, limit)
}

func (s *Service) PendingAppeals(ctx context.Context, limit int) ([]models.ModerationRecord, error) {
	return s.store.PendingAppeals(ctx, limit)
}

// CreatorViolations lists a creator's high and critical risk items, newest
// first.
func (s *Service) CreatorViolations(ctx context.Context, creatorID string, limit int) ([]models.ModerationRecord, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, apperr.Validation("creatorId is required")
	}
	return s.store.CreatorViolations(ctx, creatorID, limit)
}

// FlaggedContent lists items whose latest scan detected signal.
func (s *Service) FlaggedContent(ctx context.Context, signal models.SignalName, limit int) ([]models.ModerationRecord, error) {
	if !models.ValidSignal(signal) {
		return nil, apperr.Validation("unknown signal %q", signal)
	}
	return s.store.FlaggedBySignal(ctx, signal, limit)
}

// Stats summarizes records created in the last days days.
func (s *Service) Stats(ctx context.Context, days int) (*store.ModerationSummary, error) {
	if days <= 0 || days > maxStatsDays {
		return nil, apperr.Validation("days must be between 1 and %d", maxStatsDays)
	}
	return s.store.SummarizeModeration(ctx, s.now().AddDate(0, 0, -days))
}

// History returns the audit trail of a content item.
func (s *Service) History(ctx context.Context, contentID string, limit int) ([]audit.Entry, error) {
	if s.audit == nil {
		return []audit.Entry{}, nil
	}
	return s.audit.History(ctx, contentID, limit)
}

// ReconcileRiskScores walks every record and rewrites the score and
// assessment of those whose stored values drifted from their signals, e.g.
// after the weights changed. It returns how many records were rewritten.
func (s *Service) ReconcileRiskScores(ctx context.Context) (int, error) {
	fixed := 0
	after := ""
	for {
		page, err := s.store.ModerationPage(ctx, after, reconcileBatchSize)
		if err != nil {
			return fixed, err
		}
		if len(page) == 0 {
			return fixed, nil
		}
		for i := range page {
			rec := &page[i]
			after = rec.ID
			if err := ctx.Err(); err != nil {
				return fixed, err
			}
			if ComputeRiskScore(rec.Signals, s.policy.Weights) == rec.RiskScore {
				continue
			}
			if _, err := s.mutate(ctx, "reconcile", rec.Content.ID, "system", func(context.Context, *models.ModerationRecord, *change) error {
				return nil
			}); err != nil {
				s.logger.Warn("reconcile risk score failed", zap.String("content", rec.Content.ID), zap.Error(err))
				continue
			}
			fixed++
		}
	}
}

// mutate is the read-modify-write loop shared by the state transitions. fn
// runs inside a transaction on a fresh copy of the record; the score is
// recomputed before the versioned save. A conflict re-runs the whole loop.
func (s *Service) mutate(ctx context.Context, op, contentID, actor string, fn func(ctx context.Context, rec *models.ModerationRecord, ch *change) error) (*models.ModerationRecord, error) {
	if strings.TrimSpace(contentID) == "" {
		return nil, apperr.Validation("content id is required")
	}
	var (
		out *models.ModerationRecord
		ch  change
	)
	err := s.withRetry(ctx, op, func(ctx context.Context) error {
		return s.store.Transaction(ctx, func(ctx context.Context) error {
			rec, err := s.store.GetModeration(ctx, contentID)
			if err != nil {
				return err
			}
			expected := rec.Version
			ch = change{op: op, actor: actor, from: rec.Status}
			if err := fn(ctx, rec, &ch); err != nil {
				return err
			}
			if err := s.recompute(ctx, rec); err != nil {
				return err
			}
			if err := s.store.SaveModeration(ctx, rec, expected); err != nil {
				return err
			}
			out = rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.after(ctx, out, ch)
	return out, nil
}

func (s *Service) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.OnConflictNotify(ctx, s.retry, fn, func(err error, wait time.Duration) {
		s.metrics.ConflictRetry("moderation." + op)
		s.logger.Debug("retrying after conflict",
			zap.String("op", op),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
}

// recompute refreshes the derived score and assessment.
func (s *Service) recompute(ctx context.Context, rec *models.ModerationRecord) error {
	strikes, err := s.ledger.StrikeCount(ctx, rec.CreatorID)
	if err != nil {
		return err
	}
	rec.RiskScore, rec.Assessment = Assess(rec.Signals, strikes, s.policy)
	return nil
}

// after runs the side effects of a committed change. None of them can fail
// the operation.
func (s *Service) after(ctx context.Context, rec *models.ModerationRecord, ch change) {
	to := rec.Status
	if ch.from != to {
		s.metrics.Transition(string(to))
	}

	score := rec.RiskScore
	details := map[string]interface{}{"cycle": rec.Cycle}
	for k, v := range ch.data {
		details[k] = v
	}
	if ch.reason != "" {
		details["reason"] = ch.reason
	}
	s.audit.Record(ctx, audit.Entry{
		At:         s.now(),
		Engine:     models.SourceModeration,
		Operation:  ch.op,
		Content:    rec.Content,
		CreatorID:  rec.CreatorID,
		Actor:      ch.actor,
		FromStatus: string(ch.from),
		ToStatus:   string(to),
		RiskScore:  &score,
		Details:    details,
	})

	s.logger.Info("moderation record updated",
		zap.String("op", ch.op),
		zap.String("content", rec.Content.String()),
		zap.String("from", string(ch.from)),
		zap.String("to", string(to)),
		zap.Int("risk", score))

	if ch.from != to && s.lifecycle != nil {
		var err error
		switch {
		case to == models.ModerationApproved:
			err = s.lifecycle.Publishable(ctx, rec.Content)
		case to == models.ModerationRejected && ch.from != models.ModerationAppealed:
			err = s.lifecycle.Withdrawn(ctx, rec.Content, ch.reason)
		case to == models.ModerationUnderReview:
			err = s.lifecycle.Withdrawn(ctx, rec.Content, "pending review")
		}
		if err != nil {
			s.logger.Warn("content lifecycle callback failed",
				zap.String("content", rec.Content.String()),
				zap.String("status", string(to)),
				zap.Error(err))
		}
	}

	if ch.event == "" {
		return
	}
	ev := notify.Event{
		Name:      ch.event,
		Content:   rec.Content,
		CreatorID: rec.CreatorID,
		Status:    string(to),
		Reason:    ch.reason,
		Data:      ch.data,
	}
	if ch.event == notify.EventModerationRejected {
		ev.Action = rec.Action.Type
	}
	if rec.ManualReview.Required && !rec.ManualReview.Completed {
		ev.Priority = rec.ManualReview.Priority
	}
	s.notifier.Send(ev)
}

func validateRef(ref models.ContentRef, creatorID string) error {
	if strings.TrimSpace(ref.ID) == "" {
		return apperr.Validation("content id is required")
	}
	if !ref.Kind.Valid() {
		return apperr.Validation("unknown content kind %q", ref.Kind)
	}
	if strings.TrimSpace(creatorID) == "" {
		return apperr.Validation("creator id is required")
	}
	return nil
}

func validateSubmit(in SubmitInput) error {
	if err := validateRef(in.Content, in.CreatorID); err != nil {
		return err
	}
	return validateSignals(in.Signals)
}

func detectedSignals(sigs models.Signals) []models.SignalName {
	var out []models.SignalName
	for _, name := range models.SignalNames() {
		if sig, ok := sigs[name]; ok && sig.Detected {
			out = append(out, name)
		}
	}
	return out
}

func normalizeCategories(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
