package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/modules/notify"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"github.com/mx-space/sentinel/internal/pkg/pagination"
	"github.com/mx-space/sentinel/internal/pkg/response"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// maxParallelDeliveries bounds outbound requests per event.
const maxParallelDeliveries = 8

// Service handles webhook CRUD and delivery. It is a notify.Notifier.
type Service struct {
	db     *gorm.DB
	client *http.Client
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     db,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.Named("WebhookService"),
	}
}

func (s *Service) List(ctx context.Context) ([]models.WebhookModel, error) {
	var items []models.WebhookModel
	return items, s.db.WithContext(ctx).Order("created_at DESC").Find(&items).Error
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.WebhookModel, error) {
	var w models.WebhookModel
	if err := s.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("webhook %s", id)
		}
		return nil, apperr.Storage("get webhook", err)
	}
	return &w, nil
}

func (s *Service) Create(ctx context.Context, dto *CreateWebhookDTO) (*models.WebhookModel, error) {
	events := normalizeWebhookEvents(dto.Events)
	if len(events) == 0 {
		return nil, apperr.Validation("events is empty")
	}

	secret := strings.TrimSpace(dto.Secret)
	if secret == "" {
		secretBytes := make([]byte, 20)
		if _, err := rand.Read(secretBytes); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(secretBytes)
	}

	w := models.WebhookModel{
		PayloadURL: dto.PayloadURL,
		Events:     events,
		Secret:     secret,
		Enabled:    true,
		CreatorID:  strings.TrimSpace(dto.CreatorID),
	}
	if dto.Enabled != nil {
		w.Enabled = *dto.Enabled
	}
	if err := s.db.WithContext(ctx).Create(&w).Error; err != nil {
		return nil, apperr.Storage("create webhook", err)
	}
	return &w, nil
}

func (s *Service) Update(ctx context.Context, id string, dto *UpdateWebhookDTO) (*models.WebhookModel, error) {
	w, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if dto.PayloadURL != nil {
		updates["payload_url"] = *dto.PayloadURL
	}
	if dto.Events != nil {
		events := normalizeWebhookEvents(dto.Events)
		if len(events) == 0 {
			return nil, apperr.Validation("events is empty")
		}
		updates["events"] = events
	}
	if dto.Enabled != nil {
		updates["enabled"] = *dto.Enabled
	}
	if dto.Secret != nil {
		updates["secret"] = strings.TrimSpace(*dto.Secret)
	}
	if dto.CreatorID != nil {
		updates["creator_id"] = strings.TrimSpace(*dto.CreatorID)
	}
	if len(updates) == 0 {
		return w, nil
	}
	if err := s.db.WithContext(ctx).Model(w).Updates(updates).Error; err != nil {
		return nil, apperr.Storage("update webhook", err)
	}
	return s.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return apperr.Storage("delete webhook", s.db.WithContext(ctx).Delete(&models.WebhookModel{}, "id = ?", id).Error)
}

// Notify delivers ev to every enabled hook subscribed to it and scoped to
// its creator. It waits for all deliveries and joins their errors.
func (s *Service) Notify(ctx context.Context, ev notify.Event) error {
	var hooks []models.WebhookModel
	err := s.db.WithContext(ctx).
		Where("enabled = ? AND (creator_id = '' OR creator_id IS NULL OR creator_id = ?)", true, ev.CreatorID).
		Find(&hooks).Error
	if err != nil {
		return apperr.Storage("load webhooks", err)
	}

	var g errgroup.Group
	g.SetLimit(maxParallelDeliveries)
	errs := make([]error, len(hooks))
	for i, hook := range hooks {
		if !webhookContainsEvent(hook.Events, ev.Name) {
			continue
		}
		g.Go(func() error {
			errs[i] = s.deliver(ctx, hook, ev.Name, ev)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

var _ notify.Notifier = (*Service)(nil)

func (s *Service) deliver(ctx context.Context, hook models.WebhookModel, event string, payload interface{}) error {
	body, _ := json.Marshal(payload)
	payloadString := string(body)

	signature := signWithHash(sha1.New, hook.Secret, payloadString)
	signature256 := signWithHash(sha256.New, hook.Secret, payloadString)
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	headers := map[string]string{
		"X-Webhook-Signature":    signature,
		"X-Webhook-Event":        event,
		"X-Webhook-Id":           hook.ID,
		"X-Webhook-Timestamp":    timestamp,
		"X-Webhook-Signature256": signature256,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.PayloadURL, bytes.NewReader(body))
	if err != nil {
		s.logEvent(ctx, hook.ID, event, headers, payloadString, nil, false, 0, err.Error())
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logEvent(ctx, hook.ID, event, headers, payloadString, nil, false, 0, err.Error())
		return fmt.Errorf("webhook %s: %w", hook.ID, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	s.logEvent(ctx, hook.ID, event, headers, payloadString, map[string]interface{}{
		"headers":   resp.Header,
		"data":      parseJSONOrString(bodyBytes),
		"timestamp": time.Now().UnixMilli(),
		"status":    resp.Status,
	}, ok, resp.StatusCode, "")
	if !ok {
		return fmt.Errorf("webhook %s: status %d", hook.ID, resp.StatusCode)
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, hookID, event string, headers map[string]string, payload string, respData interface{}, success bool, status int, errMsg string) {
	log := models.WebhookEventModel{
		HookID:    hookID,
		Event:     event,
		Headers:   toJSONString(headers),
		Payload:   payload,
		Response:  toJSONString(respData),
		Success:   success,
		Status:    status,
		Timestamp: time.Now(),
	}
	if errMsg != "" {
		log.Response = toJSONString(map[string]interface{}{"error": errMsg})
	}
	// delivery may outlive the caller's deadline; the log row must still land
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(&log).Error; err != nil {
		s.logger.Warn("webhook event log failed", zap.String("hook", hookID), zap.Error(err))
	}
}

func (s *Service) ListEvents(ctx context.Context, q pagination.Query, hookID *string) ([]models.WebhookEventModel, response.Pagination, error) {
	tx := s.db.WithContext(ctx).Model(&models.WebhookEventModel{}).Order("timestamp DESC")
	if hookID != nil {
		tx = tx.Where("hook_id = ?", *hookID)
	}
	var items []models.WebhookEventModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

func (s *Service) GetEventByID(ctx context.Context, id string) (*models.WebhookEventModel, error) {
	var item models.WebhookEventModel
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("webhook event %s", id)
		}
		return nil, apperr.Storage("get webhook event", err)
	}
	return &item, nil
}

// Redispatch replays a logged delivery in the background.
func (s *Service) Redispatch(ctx context.Context, eventID string) error {
	event, err := s.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	hook, err := s.GetByID(ctx, event.HookID)
	if err != nil {
		return err
	}
	if !hook.Enabled {
		return apperr.InvalidTransition("hook %s is disabled", hook.ID)
	}
	var payload interface{}
	if err := json.Unmarshal([]byte(event.Payload), &payload); err != nil {
		payload = event.Payload
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.deliver(ctx, *hook, event.Event, payload); err != nil {
			s.logger.Warn("webhook redispatch failed", zap.String("event", eventID), zap.Error(err))
		}
	}()
	return nil
}

func (s *Service) ClearEventsByHookID(ctx context.Context, hookID string) error {
	return apperr.Storage("clear webhook events",
		s.db.WithContext(ctx).Where("hook_id = ?", hookID).Delete(&models.WebhookEventModel{}).Error)
}

// normalizeWebhookEvents deduplicates events, uppercases them, and validates
// each against the accepted set. The special value "all" short-circuits.
func normalizeWebhookEvents(events []string) []string {
	if len(events) == 0 {
		return []string{}
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, len(events))
	for _, event := range events {
		next := strings.TrimSpace(event)
		if next == "" {
			continue
		}
		if strings.EqualFold(next, "all") {
			return []string{"all"}
		}
		next = strings.ToUpper(next)
		if _, ok := acceptedWebhookEvents[next]; !ok {
			continue
		}
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
	}
	return out
}

func webhookContainsEvent(events []string, event string) bool {
	event = strings.ToUpper(strings.TrimSpace(event))
	for _, item := range events {
		next := strings.ToUpper(strings.TrimSpace(item))
		if next == "ALL" || next == event {
			return true
		}
	}
	return false
}

func toResponse(w *models.WebhookModel) webhookResponse {
	events := w.Events
	if events == nil {
		events = []string{}
	}
	return webhookResponse{
		ID: w.ID, PayloadURL: w.PayloadURL, Events: events,
		Enabled: w.Enabled, CreatorID: w.CreatorID,
		Created: w.CreatedAt, Modified: w.UpdatedAt,
	}
}

func parseJSONOrString(data []byte) interface{} {
	if len(data) == 0 {
		return ""
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err == nil {
		return out
	}
	return string(data)
}

func toJSONString(v interface{}) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func signWithHash(newHash func() hash.Hash, secret, payload string) string {
	mac := hmac.New(newHash, []byte(secret))
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
