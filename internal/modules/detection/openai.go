package detection

import (
	"context"
	"fmt"
	"strings"

	"github.com/mx-space/sentinel/internal/config"
	"github.com/mx-space/sentinel/internal/models"
	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const openAIProvider = "openai"

// minorSafetyCriticalScore is the sexual/minors score at which the concern
// is reported as critical.
const minorSafetyCriticalScore = 0.5

// OpenAIDetector classifies text with the OpenAI moderations endpoint.
type OpenAIDetector struct {
	client openai.Client
	model  string
}

func NewOpenAIDetector(cfg config.OpenAIConfig) *OpenAIDetector {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIDetector{client: openai.NewClient(opts...), model: cfg.Model}
}

func (d *OpenAIDetector) Name() string { return openAIProvider }

func (d *OpenAIDetector) Detect(ctx context.Context, in Input) (models.Signals, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return models.Signals{}, nil
	}

	params := openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
	}
	if d.model != "" {
		params.Model = openai.ModerationModel(d.model)
	}
	resp, err := d.client.Moderations.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("openai moderation: empty result")
	}
	return signalsFromModeration(resp.Results[0]), nil
}

func signalsFromModeration(m openai.Moderation) models.Signals {
	s := m.CategoryScores
	c := m.Categories

	out := models.Signals{
		models.SignalNSFW: scoreSignal(c.Sexual, map[string]float64{
			"sexual": s.Sexual,
		}),
		models.SignalViolence: scoreSignal(c.Violence || c.ViolenceGraphic, map[string]float64{
			"violence":         s.Violence,
			"violence/graphic": s.ViolenceGraphic,
		}),
		models.SignalHateSpeech: scoreSignal(c.Hate || c.HateThreatening || c.Harassment || c.HarassmentThreatening, map[string]float64{
			"hate":                   s.Hate,
			"hate/threatening":       s.HateThreatening,
			"harassment":             s.Harassment,
			"harassment/threatening": s.HarassmentThreatening,
		}),
		models.SignalDangerous: scoreSignal(c.Illicit || c.IllicitViolent || c.SelfHarm || c.SelfHarmIntent || c.SelfHarmInstructions, map[string]float64{
			"illicit":                s.Illicit,
			"illicit/violent":        s.IllicitViolent,
			"self-harm":              s.SelfHarm,
			"self-harm/intent":       s.SelfHarmIntent,
			"self-harm/instructions": s.SelfHarmInstructions,
		}),
	}

	minor := scoreSignal(c.SexualMinors, map[string]float64{"sexual/minors": s.SexualMinors})
	if c.SexualMinors || s.SexualMinors >= minorSafetyCriticalScore {
		sev := models.SeverityHigh
		if s.SexualMinors >= minorSafetyCriticalScore {
			sev = models.SeverityCritical
		}
		minor.Detected = true
		minor.Concerns = []models.SafetyConcern{{
			Concern:    "sexual_content_involving_minors",
			Severity:   sev,
			Confidence: s.SexualMinors,
		}}
	}
	out[models.SignalMinorSafety] = minor
	return out
}

// scoreSignal uses the highest category score as the confidence.
func scoreSignal(detected bool, scores map[string]float64) models.Signal {
	max := 0.0
	for _, v := range scores {
		if v > max {
			max = v
		}
	}
	return models.Signal{
		Detected:   detected,
		Confidence: max,
		Categories: scores,
		Provider:   openAIProvider,
	}
}
