// Package notify informs creators and operators about decisions taken by
// the engines. Delivery is best effort: a failing channel never rolls back
// a committed decision.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/mx-space/sentinel/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Event names shared by every channel.
const (
	EventModerationApproved    = "MODERATION_APPROVED"
	EventModerationRejected    = "MODERATION_REJECTED"
	EventModerationFlagged     = "MODERATION_FLAGGED"
	EventModerationUnderReview = "MODERATION_UNDER_REVIEW"
	EventModerationAppealed    = "MODERATION_APPEALED"
	EventAppealResolved        = "MODERATION_APPEAL_RESOLVED"
	EventContentReported       = "CONTENT_REPORTED"
	EventClaimFiled            = "RIGHTS_CLAIM_FILED"
	EventClaimDisputed         = "RIGHTS_CLAIM_DISPUTED"
	EventDisputeResolved       = "RIGHTS_DISPUTE_RESOLVED"
	EventEnforcementAppealed   = "RIGHTS_ENFORCEMENT_APPEALED"
	EventEnforcementResolved   = "RIGHTS_ENFORCEMENT_APPEAL_RESOLVED"
	EventRoyaltyPaid           = "ROYALTY_PAID"
	EventCreatorAction         = "CREATOR_ACTION"
)

// Events lists every event name in a stable order.
func Events() []string {
	return []string{
		EventModerationApproved, EventModerationRejected, EventModerationFlagged,
		EventModerationUnderReview, EventModerationAppealed, EventAppealResolved,
		EventContentReported, EventClaimFiled, EventClaimDisputed, EventDisputeResolved,
		EventEnforcementAppealed, EventEnforcementResolved, EventRoyaltyPaid, EventCreatorAction,
	}
}

// Event is one notification about a content item.
type Event struct {
	Name      string                `json:"event"`
	Content   models.ContentRef     `json:"content"`
	CreatorID string                `json:"creatorId"`
	Status    string                `json:"status,omitempty"`
	Action    models.ActionType     `json:"action,omitempty"`
	Priority  models.ReviewPriority `json:"priority,omitempty"`
	Reason    string                `json:"reason,omitempty"`
	Data      interface{}           `json:"data,omitempty"`
	At        time.Time             `json:"at"`
}

// Notifier delivers events to one channel.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to every channel concurrently and joins their
// errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var g errgroup.Group
	errs := make([]error, len(m))
	for i, n := range m {
		if n == nil {
			continue
		}
		g.Go(func() error {
			errs[i] = n.Notify(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Dispatcher sends events off the request path and logs failures.
type Dispatcher struct {
	notifier Notifier
	logger   *zap.Logger
	timeout  time.Duration
}

// NewDispatcher wraps n. A nil n drops everything.
func NewDispatcher(n Notifier, logger *zap.Logger) *Dispatcher {
	if n == nil {
		n = Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{notifier: n, logger: logger.Named("Notify"), timeout: 15 * time.Second}
}

// Send delivers ev in the background. The request context is not used so a
// finished request does not cancel delivery.
func (d *Dispatcher) Send(ev Event) {
	if d == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.SendSync(ctx, ev)
	}()
}

// SendSync delivers ev and waits for every channel.
func (d *Dispatcher) SendSync(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := d.notifier.Notify(ctx, ev); err != nil {
		d.logger.Warn("notification delivery failed",
			zap.String("event", ev.Name),
			zap.String("content", ev.Content.String()),
			zap.Error(err))
	}
}
