// Package rights is the rights and royalty engine. It turns fingerprint
// matches into claims, runs the dispute process, splits revenue with rights
// holders and raises copyright enforcement into the shared ledger.
package rights

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mx-space/sentinel/internal/config"
	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/modules/audit"
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
	defaultCurrency = "USD"
	systemActor     = "system"
)

type Deps struct {
	Store     *store.Store
	Ledger    *enforcement.Ledger
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
		lifecycle: d.Lifecycle,
		notifier:  d.Notifier,
		audit:     d.Audit,
		metrics:   d.Metrics,
		policy:    d.Policy,
		retry:     rp,
		logger:    logger.Named("RightsService"),
		now:       time.Now,
	}
}

type change struct {
	op      string
	actor   string
	from    models.RightsStatus
	blocked bool
	event   string
	reason  string
	action  models.ActionType
	data    map[string]interface{}
}

// RecordScan stores a fingerprint pass. Matches at or above the auto-claim
// confidence whose sound is in the catalog are claimed on behalf of the
// catalog owner, once per sound.
func (s *Service) RecordScan(ctx context.Context, in ScanInput) (*models.RightsRecord, error) {
	if err := validateScan(in); err != nil {
		return nil, err
	}
	method := strings.TrimSpace(in.Method)
	if method == "" {
		method = "fingerprint"
	}

	var (
		out   *models.RightsRecord
		ch    change
		filed []models.Claim
	)
	err := s.withRetry(ctx, "scan", func(ctx context.Context) error {
		filed = nil
		return s.store.Transaction(ctx, func(ctx context.Context) error {
			rec, err := s.store.GetRights(ctx, in.Content.ID)
			created := false
			switch {
			case errors.Is(err, apperr.ErrNotFound):
				rec = &models.RightsRecord{
					Content:     in.Content,
					CreatorID:   in.CreatorID,
					Status:      models.RightsPendingScan,
					Enforcement: models.RightsEnforcement{AppealStatus: models.EnforcementAppealNone},
				}
				created = true
			case err != nil:
				return err
			case rec.CreatorID != in.CreatorID:
				return apperr.Validation("content %s belongs to creator %s", in.Content.ID, rec.CreatorID)
			}

			expected := rec.Version
			ch = change{op: "scan", actor: systemActor, from: rec.Status, blocked: blocked(rec)}
			now := s.now()
			if fp := strings.TrimSpace(in.Fingerprint); fp != "" {
				rec.AudioFingerprint = fp
			}
			rec.DetectedMusic = in.Matches
			rec.ScanHistory = append(rec.ScanHistory, models.ScanEntry{
				ScannedAt: now, Method: method, Detections: len(in.Matches),
			})

			filed, err = s.autoClaim(ctx, rec, now)
			if err != nil {
				return err
			}
			rec.Status = deriveStatus(rec)
			syncStrikes(rec)
			if len(filed) > 0 {
				ch.event = notify.EventClaimFiled
				ch.reason = fmt.Sprintf("%d automatic claims", len(filed))
				ch.data = map[string]interface{}{"claims": claimIDs(filed)}
			}

			if created {
				if err := s.store.CreateRights(ctx, rec, defaultCurrency); err != nil {
					return err
				}
			} else if err := s.store.SaveRights(ctx, rec, expected); err != nil {
				return err
			}
			out = rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	for _, c := range filed {
		s.metrics.ClaimFiled(string(c.Action), true)
	}
	s.after(ctx, out, ch)
	return out, nil
}

func (s *Service) autoClaim(ctx context.Context, rec *models.RightsRecord, now time.Time) ([]models.Claim, error) {
	refs := make([]string, 0, len(rec.DetectedMusic))
	for _, m := range rec.DetectedMusic {
		if m.MatchConfidence >= s.policy.AutoClaimConfidence {
			refs = append(refs, m.SoundRef)
		}
	}
	if len(refs) == 0 {
		return nil, nil
	}
	catalog, err := s.store.SoundRights(ctx, refs)
	if err != nil {
		return nil, err
	}

	var filed []models.Claim
	for _, m := range rec.DetectedMusic {
		if m.MatchConfidence < s.policy.AutoClaimConfidence {
			continue
		}
		sr, ok := catalog[m.SoundRef]
		if !ok || hasClaimFor(rec, m.SoundRef) {
			continue
		}
		if sr.RoyaltyFree {
			if rec.License == nil {
				rec.License = &models.License{SoundRef: sr.SoundRef, LicenseType: "royalty_free", Licensor: sr.Holder.Name}
			}
			continue
		}
		claim, err := buildClaim(ClaimInput{
			RightsHolder: sr.Holder,
			ClaimedMusic: models.ClaimedMusic{
				SoundRef: sr.SoundRef, Title: sr.Title, Artist: sr.Artist, ISRC: sr.ISRC, Catalog: sr.Catalog,
			},
			ClaimType:    models.ClaimTypeAudio,
			Action:       sr.Policy,
			RevenueShare: sr.RevenueShare,
			Territories:  sr.Territories,
			FiledBy:      systemActor,
			Automated:    true,
		}, s.policy.DefaultRevenueShare, now)
		if err != nil {
			s.logger.Warn("catalog entry cannot be claimed", zap.String("sound", sr.SoundRef), zap.Error(err))
			continue
		}
		if err := s.addClaim(ctx, rec, claim, systemActor, now); err != nil {
			return nil, err
		}
		filed = append(filed, claim)
	}
	return filed, nil
}

// FileClaim appends an active claim. Block and mute claims take effect at
// once and raise an enforcement action against the creator.
func (s *Service) FileClaim(ctx context.Context, contentID string, in ClaimInput) (*models.RightsRecord, error) {
	claim, err := buildClaim(in, s.policy.DefaultRevenueShare, s.now())
	if err != nil {
		return nil, err
	}
	rec, err := s.mutate(ctx, "claim", contentID, in.FiledBy, func(ctx context.Context, rec *models.RightsRecord, ch *change) error {
		if err := s.addClaim(ctx, rec, claim, in.FiledBy, s.now()); err != nil {
			return err
		}
		rec.Status = deriveStatus(rec)
		ch.event = notify.EventClaimFiled
		ch.reason = fmt.Sprintf("%s claim by %s", claim.Action, claim.RightsHolder.Name)
		if action := enforcementFor(claim.Action); action != models.ActionNone {
			ch.action = action
		}
		ch.data = map[string]interface{}{"claimId": claim.ClaimID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ClaimFiled(string(claim.Action), claim.Automated)
	return rec, nil
}

func (s *Service) addClaim(ctx context.Context, rec *models.RightsRecord, claim models.Claim, by string, now time.Time) error {
	rec.Claims = append(rec.Claims, claim)
	if action := enforcementFor(claim.Action); action != models.ActionNone {
		reason := fmt.Sprintf("copyright claim by %s on %q", claim.RightsHolder.Name, claim.ClaimedMusic.Title)
		if err := s.strike(ctx, rec, action, reason, claim.ClaimID, by, claim.ClaimID, now); err != nil {
			return err
		}
	}
	return nil
}

// DisputeClaim lets the creator contest an active claim.
func (s *Service) DisputeClaim(ctx context.Context, contentID string, in DisputeInput) (*models.RightsRecord, error) {
	in.ClaimID = strings.TrimSpace(in.ClaimID)
	in.DisputedBy = strings.TrimSpace(in.DisputedBy)
	if in.DisputedBy == "" {
		return nil, apperr.Validation("disputedBy is required")
	}
	if !in.Reason.Valid() {
		return nil, apperr.Validation("unknown dispute reason %q", in.Reason)
	}
	disputeID := uuid.NewString()
	return s.mutate(ctx, "dispute", contentID, in.DisputedBy, func(_ context.Context, rec *models.RightsRecord, ch *change) error {
		i := rec.FindClaim(in.ClaimID)
		if i < 0 {
			return apperr.NotFound("claim %s on %s", in.ClaimID, contentID)
		}
		claim := &rec.Claims[i]
		if claim.Status != models.ClaimActive {
			return apperr.InvalidTransition("claim %s is %s, only active claims can be disputed", in.ClaimID, claim.Status)
		}
		claim.Status = models.ClaimDisputed
		rec.Disputes = append(rec.Disputes, models.Dispute{
			DisputeID:   disputeID,
			ClaimID:     claim.ClaimID,
			DisputedBy:  in.DisputedBy,
			Reason:      in.Reason,
			Explanation: strings.TrimSpace(in.Explanation),
			Status:      models.DisputePending,
			FiledAt:     s.now(),
		})
		rec.Status = models.RightsDisputed
		ch.event = notify.EventClaimDisputed
		ch.reason = string(in.Reason)
		ch.data = map[string]interface{}{"claimId": claim.ClaimID, "disputeId": disputeID}
		return nil
	})
}

// ResolveDispute closes a dispute. Upheld means the claim wins and stays
// active; rejected releases the claim and lifts what it enforced. The record
// status is then derived from the claims still in force.
func (s *Service) ResolveDispute(ctx context.Context, contentID, disputeID string, in ResolveDisputeInput) (*models.RightsRecord, error) {
	in.DecidedBy = strings.TrimSpace(in.DecidedBy)
	if in.DecidedBy == "" {
		return nil, apperr.Validation("decidedBy is required")
	}
	if in.Decision != models.DisputeUpheld && in.Decision != models.DisputeRejected {
		return nil, apperr.Validation("unknown dispute decision %q", in.Decision)
	}
	return s.mutate(ctx, "resolve_dispute", contentID, in.DecidedBy, func(ctx context.Context, rec *models.RightsRecord, ch *change) error {
		i := rec.FindDispute(disputeID)
		if i < 0 {
			return apperr.NotFound("dispute %s on %s", disputeID, contentID)
		}
		d := &rec.Disputes[i]
		if !d.Status.Open() {
			return apperr.InvalidTransition("dispute %s is already %s", disputeID, d.Status)
		}
		now := s.now()
		d.Status = in.Decision
		d.Resolution = &models.DisputeResolution{
			Decision: in.Decision, Reason: in.Reason, DecidedBy: in.DecidedBy, DecidedAt: now,
		}
		ch.event = notify.EventDisputeResolved
		ch.reason = in.Reason
		ch.data = map[string]interface{}{"disputeId": disputeID, "decision": in.Decision}

		ci := rec.FindClaim(d.ClaimID)
		if ci < 0 {
			return apperr.NotFound("claim %s on %s", d.ClaimID, contentID)
		}
		claim := &rec.Claims[ci]
		if in.Decision == models.DisputeUpheld {
			claim.Status = models.ClaimActive
			if s.policy.StrikeOnFailedDispute {
				if err := s.strike(ctx, rec, models.ActionAccountStrike, "copyright dispute failed", claim.ClaimID,
					in.DecidedBy, "dispute:"+disputeID, now); err != nil {
					return err
				}
				ch.action = models.ActionAccountStrike
			}
		} else {
			claim.Status = models.ClaimReleased
			if err := s.liftClaim(ctx, rec, claim.ClaimID, in.DecidedBy, now); err != nil {
				return err
			}
		}
		rec.Status = deriveStatus(rec)
		return nil
	})
}

// AppealEnforcement files the creator's appeal against the latest copyright
// enforcement action still in force on the content.
func (s *Service) AppealEnforcement(ctx context.Context, contentID, actor, reason string) (*models.RightsRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("appeal reason is required")
	}
	return s.mutate(ctx, "enforcement_appeal", contentID, actor, func(_ context.Context, rec *models.RightsRecord, ch *change) error {
		if latestOpenAction(rec) < 0 {
			return apperr.InvalidTransition("no enforcement action to appeal on %s", contentID)
		}
		if rec.Enforcement.AppealStatus == models.EnforcementAppealPending {
			return apperr.InvalidTransition("an enforcement appeal on %s is already pending", contentID)
		}
		rec.Enforcement.AppealStatus = models.EnforcementAppealPending
		ch.event = notify.EventEnforcementAppealed
		ch.reason = reason
		return nil
	})
}

// ResolveEnforcementAppeal decides a pending enforcement appeal. Approval
// reverses the appealed action in the shared ledger.
func (s *Service) ResolveEnforcementAppeal(ctx context.Context, contentID, reviewerID string, approved bool, reason string) (*models.RightsRecord, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return nil, apperr.Validation("reviewer is required")
	}
	return s.mutate(ctx, "resolve_enforcement_appeal", contentID, reviewerID, func(ctx context.Context, rec *models.RightsRecord, ch *change) error {
		if rec.Enforcement.AppealStatus != models.EnforcementAppealPending {
			return apperr.InvalidTransition("no pending enforcement appeal on %s", contentID)
		}
		ch.event = notify.EventEnforcementResolved
		ch.reason = reason
		ch.data = map[string]interface{}{"approved": approved}
		if !approved {
			rec.Enforcement.AppealStatus = models.EnforcementAppealDenied
			return nil
		}
		if i := latestOpenAction(rec); i >= 0 {
			if err := s.reverseAction(ctx, &rec.Enforcement.Actions[i], reviewerID, "enforcement appeal approved: "+reason, s.now()); err != nil {
				return err
			}
		}
		rec.Enforcement.AppealStatus = models.EnforcementAppealApproved
		return nil
	})
}

// CanMonetize reports whether the creator may earn from the content: it must
// not be blocked or muted and must carry fewer strikes than the limit.
func (s *Service) CanMonetize(ctx context.Context, contentID string) (*Monetization, error) {
	rec, err := s.store.GetRights(ctx, contentID)
	if err != nil {
		return nil, err
	}
	out := &Monetization{ContentID: contentID, Eligible: true, Strikes: rec.Enforcement.Strikes}
	switch {
	case blocked(rec):
		out.Eligible, out.Reason = false, "content is blocked"
	case muted(rec):
		out.Eligible, out.Reason = false, "content is muted"
	case rec.Enforcement.Strikes >= s.policy.MonetizeStrikeLimit:
		out.Eligible, out.Reason = false, fmt.Sprintf("%d copyright strikes", rec.Enforcement.Strikes)
	}
	return out, nil
}

// Get returns the record together with its royalty account.
func (s *Service) Get(ctx context.Context, contentID string) (*models.RightsRecord, error) {
	rec, err := s.store.GetRights(ctx, contentID)
	if err != nil {
		return nil, err
	}
	acc, err := s.Royalties(ctx, contentID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	rec.Royalties = acc
	return rec, nil
}

func (s *Service) List(ctx context.Context, status models.RightsStatus, limit int) ([]models.RightsRecord, error) {
	switch status {
	case models.RightsPendingScan, models.RightsClear, models.RightsLicensed, models.RightsClaimed,
		models.RightsDisputed, models.RightsMonetizedShared, models.RightsBlocked, models.RightsMuted:
	default:
		return nil, apperr.Validation("unknown rights status %q", status)
	}
	return s.store.ListRights(ctx, status, limit)
}

// strike raises an enforcement action in the shared ledger and mirrors it on
// the record. dedup makes a repeated call a no-op.
func (s *Service) strike(ctx context.Context, rec *models.RightsRecord, action models.ActionType, reason, claimID, by, dedup string, now time.Time) error {
	if by == "" {
		by = systemActor
	}
	entry, _, err := s.ledger.Apply(ctx, enforcement.ActionRequest{
		CreatorID:  rec.CreatorID,
		ContentID:  rec.Content.ID,
		ActionType: action,
		Reason:     reason,
		AppliedBy:  by,
		Source:     models.SourceRights,
		DedupKey:   dedup,
	})
	if err != nil {
		return err
	}
	for _, a := range rec.Enforcement.Actions {
		if a.StrikeID == entry.ID {
			return nil
		}
	}
	rec.Enforcement.Actions = append(rec.Enforcement.Actions, models.RightsEnforcementAction{
		ActionType: action,
		Reason:     reason,
		ClaimID:    claimID,
		StrikeID:   entry.ID,
		TakenAt:    now,
		ExpiresAt:  entry.ExpiresAt,
	})
	syncStrikes(rec)
	return nil
}

// liftClaim reverses the block or mute raised by a released claim.
func (s *Service) liftClaim(ctx context.Context, rec *models.RightsRecord, claimID, by string, now time.Time) error {
	for i := range rec.Enforcement.Actions {
		a := &rec.Enforcement.Actions[i]
		if a.ClaimID != claimID || a.ReversedAt != nil || a.ActionType == models.ActionAccountStrike {
			continue
		}
		if err := s.reverseAction(ctx, a, by, "claim released", now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) reverseAction(ctx context.Context, a *models.RightsEnforcementAction, by, reason string, now time.Time) error {
	if a.StrikeID != "" {
		if _, err := s.ledger.Reverse(ctx, a.StrikeID, by, reason); err != nil && !errors.Is(err, apperr.ErrInvalidTransition) {
			return err
		}
	}
	a.ReversedAt = &now
	return nil
}

// mutate is the versioned read-modify-write loop of the claim and dispute
// operations.
func (s *Service) mutate(ctx context.Context, op, contentID, actor string, fn func(ctx context.Context, rec *models.RightsRecord, ch *change) error) (*models.RightsRecord, error) {
	if strings.TrimSpace(contentID) == "" {
		return nil, apperr.Validation("content id is required")
	}
	var (
		out *models.RightsRecord
		ch  change
	)
	err := s.withRetry(ctx, op, func(ctx context.Context) error {
		return s.store.Transaction(ctx, func(ctx context.Context) error {
			rec, err := s.store.GetRights(ctx, contentID)
			if err != nil {
				return err
			}
			expected := rec.Version
			ch = change{op: op, actor: actor, from: rec.Status, blocked: blocked(rec)}
			if err := fn(ctx, rec, &ch); err != nil {
				return err
			}
			syncStrikes(rec)
			if err := s.store.SaveRights(ctx, rec, expected); err != nil {
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
		s.metrics.ConflictRetry("rights." + op)
		s.logger.Debug("retrying after conflict", zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
	})
}

func (s *Service) after(ctx context.Context, rec *models.RightsRecord, ch change) {
	to := rec.Status
	details := map[string]interface{}{"strikes": rec.Enforcement.Strikes}
	for k, v := range ch.data {
		details[k] = v
	}
	if ch.reason != "" {
		details["reason"] = ch.reason
	}
	s.audit.Record(ctx, audit.Entry{
		At:         s.now(),
		Engine:     models.SourceRights,
		Operation:  ch.op,
		Content:    rec.Content,
		CreatorID:  rec.CreatorID,
		Actor:      ch.actor,
		FromStatus: string(ch.from),
		ToStatus:   string(to),
		Details:    details,
	})
	s.logger.Info("rights record updated",
		zap.String("op", ch.op),
		zap.String("content", rec.Content.String()),
		zap.String("from", string(ch.from)),
		zap.String("to", string(to)))

	if now := blocked(rec); now != ch.blocked && s.lifecycle != nil {
		var err error
		if now {
			err = s.lifecycle.Withdrawn(ctx, rec.Content, "blocked by copyright claim")
		} else {
			err = s.lifecycle.Publishable(ctx, rec.Content)
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
	s.notifier.Send(notify.Event{
		Name:      ch.event,
		Content:   rec.Content,
		CreatorID: rec.CreatorID,
		Status:    string(to),
		Action:    ch.action,
		Reason:    ch.reason,
		Data:      ch.data,
	})
}

// blocked reports whether a block claim is in force or under dispute. Such
// content stays withdrawn.
func blocked(rec *models.RightsRecord) bool {
	for _, c := range rec.Claims {
		if c.Action == models.ClaimBlock && (c.Status == models.ClaimActive || c.Status == models.ClaimDisputed) {
			return true
		}
	}
	return false
}

// deriveStatus computes the record status from the claims in force. An
// active block or mute outranks an open dispute; the dispute outranks the
// remaining claim actions.
func deriveStatus(rec *models.RightsRecord) models.RightsStatus {
	var block, mute, disputed, monetize, track bool
	for _, c := range rec.Claims {
		switch c.Status {
		case models.ClaimDisputed:
			disputed = true
		case models.ClaimActive:
			switch c.Action {
			case models.ClaimBlock:
				block = true
			case models.ClaimMute:
				mute = true
			case models.ClaimMonetize:
				monetize = true
			case models.ClaimTrack:
				track = true
			}
		}
	}
	switch {
	case block:
		return models.RightsBlocked
	case mute:
		return models.RightsMuted
	case disputed:
		return models.RightsDisputed
	case monetize:
		return models.RightsMonetizedShared
	case track:
		return models.RightsClaimed
	case rec.License != nil:
		return models.RightsLicensed
	}
	return models.RightsClear
}

// muted reports whether a mute claim is in force, disputed or not.
func muted(rec *models.RightsRecord) bool {
	for _, c := range rec.Claims {
		if c.Action == models.ClaimMute && (c.Status == models.ClaimActive || c.Status == models.ClaimDisputed) {
			return true
		}
	}
	return false
}

// syncStrikes recounts the enforcement actions still in force.
func syncStrikes(rec *models.RightsRecord) {
	n := 0
	for _, a := range rec.Enforcement.Actions {
		if a.ReversedAt == nil {
			n++
		}
	}
	rec.Enforcement.Strikes = n
	if rec.Enforcement.AppealStatus == "" {
		rec.Enforcement.AppealStatus = models.EnforcementAppealNone
	}
}

func latestOpenAction(rec *models.RightsRecord) int {
	for i := len(rec.Enforcement.Actions) - 1; i >= 0; i-- {
		if rec.Enforcement.Actions[i].ReversedAt == nil {
			return i
		}
	}
	return -1
}

func enforcementFor(action models.ClaimAction) models.ActionType {
	switch action {
	case models.ClaimBlock:
		return models.ActionContentBlocked
	case models.ClaimMute:
		return models.ActionAudioMuted
	}
	return models.ActionNone
}

func hasClaimFor(rec *models.RightsRecord, soundRef string) bool {
	for _, c := range rec.Claims {
		if c.ClaimedMusic.SoundRef == soundRef {
			return true
		}
	}
	return false
}

func claimIDs(claims []models.Claim) []string {
	out := make([]string, len(claims))
	for i, c := range claims {
		out[i] = c.ClaimID
	}
	return out
}
