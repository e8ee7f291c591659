package notify

import (
	"context"
	"fmt"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/bark"
)

// BarkAlerter pushes operator alerts for events that need a human soon:
// urgent review requests and creator bans.
type BarkAlerter struct {
	svc *bark.Service
}

func NewBarkAlerter(svc *bark.Service) *BarkAlerter {
	return &BarkAlerter{svc: svc}
}

func (b *BarkAlerter) Notify(ctx context.Context, ev Event) error {
	if b == nil || !b.svc.Enabled() || !urgent(ev) {
		return nil
	}
	title := fmt.Sprintf("%s: %s", ev.Name, ev.Content)
	body := ev.Reason
	if body == "" {
		body = fmt.Sprintf("creator %s needs attention", ev.CreatorID)
	}
	_, err := b.svc.ThrottlePush(ctx, ev.Name+":"+ev.Content.ID, title, body)
	return err
}

func urgent(ev Event) bool {
	if ev.Priority == models.PriorityUrgent {
		return true
	}
	return ev.Action == models.ActionAccountSuspended
}
