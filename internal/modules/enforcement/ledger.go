package enforcement

import (
	"context"
	"strings"
	"time"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"github.com/mx-space/sentinel/internal/pkg/metrics"
	"github.com/mx-space/sentinel/internal/store"
	"go.uber.org/zap"
)

const expireBatchSize = 200

// Ledger is the per-creator strike log shared by the moderation and rights
// engines. Both engines hold the same instance, so a strike raised by one
// counts toward escalation in the other.
type Ledger struct {
	store   *store.Store
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewLedger builds a ledger. ttl is the lifetime of temporary actions.
func NewLedger(st *store.Store, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:   st,
		ttl:     ttl,
		logger:  logger.Named("EnforcementLedger"),
		metrics: m,
		now:     time.Now,
	}
}

// Apply appends an entry and bumps the creator's counter. It reports false
// with the existing entry when the request was already applied. Callers
// running inside store.Transaction share that transaction.
func (l *Ledger) Apply(ctx context.Context, req ActionRequest) (*models.StrikeEntry, bool, error) {
	if err := validateRequest(&req); err != nil {
		return nil, false, err
	}

	var (
		entry   *models.StrikeEntry
		applied bool
	)
	err := l.store.Transaction(ctx, func(ctx context.Context) error {
		existing, err := l.store.FindStrike(ctx, req.CreatorID, req.ContentID, req.ActionType, req.DedupKey)
		if err != nil {
			return err
		}
		if existing != nil {
			entry = existing
			return nil
		}

		now := l.now()
		e := &models.StrikeEntry{
			CreatorID:    req.CreatorID,
			ContentID:    req.ContentID,
			ActionType:   req.ActionType,
			DedupKey:     req.DedupKey,
			Reason:       req.Reason,
			AppliedBy:    req.AppliedBy,
			SourceEngine: req.Source,
			AppliedAt:    now,
		}
		if req.ActionType.Temporary() {
			exp := now.Add(l.ttl)
			e.ExpiresAt = &exp
		}
		if err := l.store.CreateStrike(ctx, e); err != nil {
			// lost an insert race on the dedup key
			if again, findErr := l.store.FindStrike(ctx, req.CreatorID, req.ContentID, req.ActionType, req.DedupKey); findErr == nil && again != nil {
				entry = again
				return nil
			}
			return err
		}
		if err := l.store.IncrementStrikes(ctx, req.CreatorID, now); err != nil {
			return err
		}
		entry, applied = e, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if applied {
		l.metrics.StrikeApplied(string(req.ActionType), string(req.Source))
		l.logger.Info("creator action applied",
			zap.String("creator", req.CreatorID),
			zap.String("content", req.ContentID),
			zap.String("action", string(req.ActionType)),
			zap.String("source", string(req.Source)),
			zap.String("strike", entry.ID))
	}
	return entry, applied, nil
}

// Reverse marks an entry reversed and takes exactly one strike off the
// creator's counter. The entry itself is kept.
func (l *Ledger) Reverse(ctx context.Context, strikeID, by, reason string) (*models.StrikeEntry, error) {
	var entry *models.StrikeEntry
	err := l.store.Transaction(ctx, func(ctx context.Context) error {
		e, err := l.store.GetStrike(ctx, strikeID)
		if err != nil {
			return err
		}
		now := l.now()
		ok, err := l.store.MarkStrikeReversed(ctx, e.ID, by, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidTransition("strike %s is already reversed", strikeID)
		}
		if err := l.store.DecrementStrikes(ctx, e.CreatorID, now); err != nil {
			return err
		}
		e.Reversed, e.ReversedAt, e.ReversedBy, e.ReverseReason = true, &now, by, reason
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.StrikeReversed(string(entry.SourceEngine))
	l.logger.Info("creator action reversed",
		zap.String("creator", entry.CreatorID),
		zap.String("strike", entry.ID),
		zap.String("by", by))
	return entry, nil
}

// StrikeCount returns the shared escalation counter of a creator.
func (l *Ledger) StrikeCount(ctx context.Context, creatorID string) (int, error) {
	return l.store.StrikeCount(ctx, creatorID)
}

// Entry returns one ledger entry.
func (l *Ledger) Entry(ctx context.Context, strikeID string) (*models.StrikeEntry, error) {
	return l.store.GetStrike(ctx, strikeID)
}

func (l *Ledger) History(ctx context.Context, creatorID string) ([]models.StrikeEntry, error) {
	return l.store.Strikes(ctx, creatorID)
}

// Standing returns the counter, the restrictions still in force and the
// full log of a creator.
func (l *Ledger) Standing(ctx context.Context, creatorID string) (*Standing, error) {
	count, err := l.store.StrikeCount(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	history, err := l.store.Strikes(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	active := make([]models.StrikeEntry, 0)
	for i := range history {
		if history[i].ExpiresAt != nil && history[i].Active(now) {
			active = append(active, history[i])
		}
	}
	return &Standing{
		CreatorID:   creatorID,
		StrikeCount: count,
		Active:      active,
		History:     history,
		CheckedAt:   now,
	}, nil
}

// ExpireTemporary marks lapsed shadowbans and suspensions expired. Expiry
// lifts the restriction but leaves the strike counted. Returns how many
// entries were expired.
func (l *Ledger) ExpireTemporary(ctx context.Context) (int, error) {
	now := l.now()
	total := 0
	for {
		due, err := l.store.DueTemporaryStrikes(ctx, now, expireBatchSize)
		if err != nil {
			return total, err
		}
		for _, e := range due {
			ok, err := l.store.MarkStrikeExpired(ctx, e.ID)
			if err != nil {
				return total, err
			}
			if ok {
				total++
				l.metrics.StrikeExpired()
			}
		}
		if len(due) < expireBatchSize {
			break
		}
	}
	if total > 0 {
		l.logger.Info("temporary creator actions expired", zap.Int("count", total))
	}
	return total, nil
}

func validateRequest(req *ActionRequest) error {
	req.CreatorID = strings.TrimSpace(req.CreatorID)
	req.ContentID = strings.TrimSpace(req.ContentID)
	if req.CreatorID == "" {
		return apperr.Validation("creatorId is required")
	}
	if req.ContentID == "" {
		return apperr.Validation("contentId is required")
	}
	if !req.ActionType.Valid() || req.ActionType == models.ActionNone {
		return apperr.Validation("unknown action type %q", req.ActionType)
	}
	switch req.Source {
	case models.SourceModeration, models.SourceRights, models.SourceManual:
	default:
		return apperr.Validation("unknown source engine %q", req.Source)
	}
	return nil
}
