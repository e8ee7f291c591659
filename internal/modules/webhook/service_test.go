package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mx-space/sentinel/internal/database/dbtest"
	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/modules/notify"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"github.com/mx-space/sentinel/internal/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeWebhookEvents(t *testing.T) {
	got := normalizeWebhookEvents([]string{" moderation_rejected ", "MODERATION_REJECTED", "unknown", ""})
	assert.Equal(t, []string{notify.EventModerationRejected}, got)

	assert.Equal(t, []string{"all"}, normalizeWebhookEvents([]string{"ROYALTY_PAID", "All"}))
	assert.Empty(t, normalizeWebhookEvents(nil))
}

func TestCreateRejectsUnknownEvents(t *testing.T) {
	svc := NewService(dbtest.Open(t), nil)
	_, err := svc.Create(context.Background(), &CreateWebhookDTO{
		PayloadURL: "http://example.com/hook",
		Events:     []string{"POST_CREATE"},
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestNotifyDeliversSignedPayload(t *testing.T) {
	var (
		hits      atomic.Int32
		gotSig    atomic.Value
		gotEvent  atomic.Value
		gotDigest atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		gotSig.Store(r.Header.Get("X-Webhook-Signature256"))
		gotEvent.Store(r.Header.Get("X-Webhook-Event"))
		gotDigest.Store(signWithHash(sha256.New, "s3cret", string(body)))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	db := dbtest.Open(t)
	svc := NewService(db, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, &CreateWebhookDTO{
		PayloadURL: srv.URL,
		Events:     []string{notify.EventModerationRejected},
		Secret:     "s3cret",
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, &CreateWebhookDTO{
		PayloadURL: srv.URL,
		Events:     []string{"all"},
		Secret:     "other",
		CreatorID:  "someone-else",
	})
	require.NoError(t, err)

	ev := notify.Event{
		Name:      notify.EventModerationRejected,
		Content:   models.ContentRef{Kind: models.ContentVideo, ID: "v1"},
		CreatorID: "creator-1",
		Reason:    "spam",
	}
	require.NoError(t, svc.Notify(ctx, ev))

	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, notify.EventModerationRejected, gotEvent.Load())
	assert.Equal(t, gotDigest.Load(), gotSig.Load())

	events, pag, err := svc.ListEvents(ctx, pagination.Query{Page: 1, Size: 10}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pag.Total)
	require.Len(t, events, 1)
	assert.True(t, events[0].Success)
	assert.Equal(t, http.StatusNoContent, events[0].Status)

	var payload notify.Event
	require.NoError(t, json.Unmarshal([]byte(events[0].Payload), &payload))
	assert.Equal(t, "v1", payload.Content.ID)
}

func TestNotifyReportsFailedDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewService(dbtest.Open(t), nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, &CreateWebhookDTO{PayloadURL: srv.URL, Events: []string{"all"}})
	require.NoError(t, err)

	err = svc.Notify(ctx, notify.Event{Name: notify.EventRoyaltyPaid, CreatorID: "c"})
	assert.Error(t, err)

	events, _, err := svc.ListEvents(ctx, pagination.Query{Page: 1, Size: 10}, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
}
