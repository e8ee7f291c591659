// Package audit keeps an append-only trail of every decision the engines
// take. The trail is a record for humans; the engines never read it back.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mx-space/sentinel/internal/models"
	"go.uber.org/zap"
)

// Entry is one decision.
type Entry struct {
	At         time.Time              `json:"at"                   bson:"at"`
	Engine     models.SourceEngine    `json:"engine"               bson:"engine"`
	Operation  string                 `json:"operation"            bson:"operation"`
	Content    models.ContentRef      `json:"content"              bson:"content"`
	CreatorID  string                 `json:"creatorId"            bson:"creatorId"`
	Actor      string                 `json:"actor,omitempty"      bson:"actor,omitempty"`
	FromStatus string                 `json:"fromStatus,omitempty" bson:"fromStatus,omitempty"`
	ToStatus   string                 `json:"toStatus,omitempty"   bson:"toStatus,omitempty"`
	RiskScore  *int                   `json:"riskScore,omitempty"  bson:"riskScore,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"    bson:"details,omitempty"`
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Reader returns the entries of one content item, newest first.
type Reader interface {
	History(ctx context.Context, contentID string, limit int) ([]Entry, error)
}

// Multi writes to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogRecorder writes entries to a zap logger.
type LogRecorder struct {
	logger *zap.Logger
}

func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogRecorder{logger: logger.Named("Audit")}
}

func (r *LogRecorder) Record(_ context.Context, e Entry) error {
	fields := []zap.Field{
		zap.String("engine", string(e.Engine)),
		zap.String("op", e.Operation),
		zap.String("content", e.Content.String()),
		zap.String("creator", e.CreatorID),
	}
	if e.Actor != "" {
		fields = append(fields, zap.String("actor", e.Actor))
	}
	if e.FromStatus != "" || e.ToStatus != "" {
		fields = append(fields, zap.String("from", e.FromStatus), zap.String("to", e.ToStatus))
	}
	if e.RiskScore != nil {
		fields = append(fields, zap.Int("risk", *e.RiskScore))
	}
	r.logger.Info("decision", fields...)
	return nil
}

// MemoryRecorder keeps entries in process. Used when no audit store is
// configured and in tests.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryRecorder() *MemoryRecorder { return &MemoryRecorder{} }

func (r *MemoryRecorder) Record(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *MemoryRecorder) History(_ context.Context, contentID string, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0)
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].Content.ID != contentID {
			continue
		}
		out = append(out, r.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Operations returns the recorded operation names in order.
func (r *MemoryRecorder) Operations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Operation
	}
	return out
}

// Trail records entries on behalf of the engines. Failures are logged and
// swallowed so the trail can never fail a committed decision.
type Trail struct {
	rec    Recorder
	logger *zap.Logger
}

func NewTrail(rec Recorder, logger *zap.Logger) *Trail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trail{rec: rec, logger: logger.Named("AuditTrail")}
}

func (t *Trail) Record(ctx context.Context, e Entry) {
	if t == nil || t.rec == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	// the request may already be cancelled once the decision has committed
	if err := t.rec.Record(context.WithoutCancel(ctx), e); err != nil {
		t.logger.Warn("audit record failed",
			zap.String("op", e.Operation),
			zap.String("content", e.Content.String()),
			zap.Error(err))
	}
}

// History reads back the trail when the recorder supports it.
func (t *Trail) History(ctx context.Context, contentID string, limit int) ([]Entry, error) {
	if t == nil {
		return []Entry{}, nil
	}
	if r, ok := t.rec.(Reader); ok {
		return r.History(ctx, contentID, limit)
	}
	if m, ok := t.rec.(Multi); ok {
		for _, inner := range m {
			if r, ok := inner.(Reader); ok {
				return r.History(ctx, contentID, limit)
			}
		}
	}
	return []Entry{}, nil
}
