package bark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Service sends iOS push notifications via the Bark API. Alerts go to the
// on-call moderator device.
type Service struct {
	key        string
	serverURL  string
	title      string
	httpClient *http.Client

	mu         sync.Mutex
	lastPushAt map[string]time.Time
	throttleD  time.Duration
}

// New creates a Bark service. An empty key disables every push.
func New(key, serverURL, title string) *Service {
	if serverURL == "" {
		serverURL = "https://day.app"
	}
	return &Service{
		key:        strings.TrimSpace(key),
		serverURL:  strings.TrimRight(serverURL, "/"),
		title:      title,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		lastPushAt: make(map[string]time.Time),
		throttleD:  10 * time.Minute,
	}
}

// Enabled reports whether a device key is configured.
func (s *Service) Enabled() bool { return s != nil && s.key != "" }

type pushPayload struct {
	DeviceKey string `json:"device_key"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Level     string `json:"level,omitempty"`
	Group     string `json:"group,omitempty"`
}

// Push sends a Bark notification immediately (no throttle).
func (s *Service) Push(ctx context.Context, title, body string) error {
	if !s.Enabled() {
		return fmt.Errorf("bark key not configured")
	}

	payload := pushPayload{
		DeviceKey: s.key,
		Title:     fmt.Sprintf("[%s] %s", s.title, title),
		Body:      body,
		Level:     "timeSensitive",
		Group:     s.title,
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/push", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bark push: status %d", resp.StatusCode)
	}
	return nil
}

// ThrottlePush sends at most one notification per throttleKey every ten
// minutes. It reports whether a push was attempted.
func (s *Service) ThrottlePush(ctx context.Context, throttleKey, title, body string) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}

	s.mu.Lock()
	last, ok := s.lastPushAt[throttleKey]
	if ok && time.Since(last) < s.throttleD {
		s.mu.Unlock()
		return false, nil
	}
	s.lastPushAt[throttleKey] = time.Now()
	s.mu.Unlock()

	return true, s.Push(ctx, title, body)
}
