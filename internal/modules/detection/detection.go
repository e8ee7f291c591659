// Package detection produces the automated signals the moderation engine
// scores. Each Detector covers some signal names; a Composite merges them.
package detection

import (
	"context"
	"errors"
	"fmt"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/metrics"
	"go.uber.org/zap"
)

// ErrNoSignals is returned when every detector of a Composite failed.
var ErrNoSignals = errors.New("no detector produced signals")

// Input is the material handed to detectors.
type Input struct {
	Content   models.ContentRef `json:"content"`
	CreatorID string            `json:"creatorId"`
	Text      string            `json:"text"`
	MediaURLs []string          `json:"mediaUrls,omitempty"`
}

type Detector interface {
	Name() string
	Detect(ctx context.Context, in Input) (models.Signals, error)
}

// Composite runs its detectors in order. For a signal reported by more than
// one detector the detected verdict with the higher confidence wins. A
// failing detector is skipped as long as another one succeeds.
type Composite struct {
	detectors []Detector
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewComposite(logger *zap.Logger, m *metrics.Metrics, detectors ...Detector) *Composite {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composite{detectors: detectors, logger: logger.Named("Detection"), metrics: m}
}

func (c *Composite) Name() string { return "composite" }

func (c *Composite) Detect(ctx context.Context, in Input) (models.Signals, error) {
	out := models.Signals{}
	var errs []error
	succeeded := 0
	for _, d := range c.detectors {
		sigs, err := d.Detect(ctx, in)
		if err != nil {
			c.metrics.DetectorError(d.Name())
			c.logger.Warn("detector failed",
				zap.String("detector", d.Name()),
				zap.String("content", in.Content.String()),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
			continue
		}
		succeeded++
		Merge(out, sigs)
	}
	if succeeded == 0 && len(c.detectors) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoSignals, errors.Join(errs...))
	}
	return out, nil
}

// Merge folds src into dst.
func Merge(dst, src models.Signals) {
	for name, sig := range src {
		cur, ok := dst[name]
		if !ok || stronger(sig, cur) {
			if ok {
				sig.Concerns = append(append([]models.SafetyConcern(nil), cur.Concerns...), sig.Concerns...)
			}
			dst[name] = sig
			continue
		}
		cur.Concerns = append(cur.Concerns, sig.Concerns...)
		dst[name] = cur
	}
}

func stronger(a, b models.Signal) bool {
	if a.Detected != b.Detected {
		return a.Detected
	}
	return normalized(a.Confidence) > normalized(b.Confidence)
}

func normalized(v float64) float64 {
	if v > 1 {
		return v / 100
	}
	return v
}
