package config

import (
	"fmt"
	"time"
)

// RiskWeights are the per-signal multipliers of the risk score. A weight of
// zero excludes the signal from scoring.
type RiskWeights struct {
	NSFW           float64 `yaml:"nsfw"`
	Violence       float64 `yaml:"violence"`
	HateSpeech     float64 `yaml:"hate_speech"`
	Profanity      float64 `yaml:"profanity"`
	Spam           float64 `yaml:"spam"`
	Dangerous      float64 `yaml:"dangerous"`
	Misinformation float64 `yaml:"misinformation"`
	Copyright      float64 `yaml:"copyright"`
	MinorSafety    float64 `yaml:"minor_safety"`
}

// RiskThresholds are inclusive lower bounds of each risk level.
type RiskThresholds struct {
	Critical int `yaml:"critical"`
	High     int `yaml:"high"`
	Medium   int `yaml:"medium"`
	Low      int `yaml:"low"`
}

// PolicyConfig holds the product-tuned decision constants.
type PolicyConfig struct {
	Weights               RiskWeights    `yaml:"weights"`
	Thresholds            RiskThresholds `yaml:"thresholds"`
	EscalationStrikes     int            `yaml:"escalation_strikes"`
	TemporaryActionTTL    time.Duration  `yaml:"temporary_action_ttl"`
	AutoClaimConfidence   float64        `yaml:"auto_claim_confidence"`
	StrikeOnFailedDispute bool           `yaml:"strike_on_failed_dispute"`
	MonetizeStrikeLimit   int            `yaml:"monetize_strike_limit"`
	DefaultRevenueShare   int            `yaml:"default_revenue_share"`
	HighRiskThreshold     int            `yaml:"high_risk_threshold"`
}

type rawRiskWeights struct {
	NSFW           *float64 `yaml:"nsfw"`
	Violence       *float64 `yaml:"violence"`
	HateSpeech     *float64 `yaml:"hate_speech"`
	Toxicity       *float64 `yaml:"toxicity"`
	Profanity      *float64 `yaml:"profanity"`
	Spam           *float64 `yaml:"spam"`
	Dangerous      *float64 `yaml:"dangerous"`
	Misinformation *float64 `yaml:"misinformation"`
	Copyright      *float64 `yaml:"copyright"`
	MinorSafety    *float64 `yaml:"minor_safety"`
}

type rawRiskThresholds struct {
	Critical *int `yaml:"critical"`
	High     *int `yaml:"high"`
	Medium   *int `yaml:"medium"`
	Low      *int `yaml:"low"`
}

type rawPolicyConfig struct {
	Weights               rawRiskWeights    `yaml:"weights"`
	Thresholds            rawRiskThresholds `yaml:"thresholds"`
	EscalationStrikes     *int              `yaml:"escalation_strikes"`
	TemporaryActionTTL    *time.Duration    `yaml:"temporary_action_ttl"`
	AutoClaimConfidence   *float64          `yaml:"auto_claim_confidence"`
	StrikeOnFailedDispute *bool             `yaml:"strike_on_failed_dispute"`
	MonetizeStrikeLimit   *int              `yaml:"monetize_strike_limit"`
	DefaultRevenueShare   *int              `yaml:"default_revenue_share"`
	HighRiskThreshold     *int              `yaml:"high_risk_threshold"`
}

// DefaultPolicy returns the stock weights and thresholds.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		Weights: RiskWeights{
			NSFW:           30,
			Violence:       30,
			HateSpeech:     25,
			Spam:           10,
			Misinformation: 20,
			Copyright:      15,
			MinorSafety:    40,
		},
		Thresholds: RiskThresholds{
			Critical: 80,
			High:     60,
			Medium:   40,
			Low:      20,
		},
		EscalationStrikes:     2,
		TemporaryActionTTL:    7 * 24 * time.Hour,
		AutoClaimConfidence:   0.85,
		StrikeOnFailedDispute: true,
		MonetizeStrikeLimit:   3,
		DefaultRevenueShare:   50,
		HighRiskThreshold:     70,
	}
}

func applyRawPolicyConfig(current PolicyConfig, raw rawPolicyConfig) PolicyConfig {
	cfg := current

	w := &cfg.Weights
	setFloat(&w.NSFW, raw.Weights.NSFW)
	setFloat(&w.Violence, raw.Weights.Violence)
	setFloat(&w.HateSpeech, raw.Weights.Toxicity)
	setFloat(&w.HateSpeech, raw.Weights.HateSpeech)
	setFloat(&w.Profanity, raw.Weights.Profanity)
	setFloat(&w.Spam, raw.Weights.Spam)
	setFloat(&w.Dangerous, raw.Weights.Dangerous)
	setFloat(&w.Misinformation, raw.Weights.Misinformation)
	setFloat(&w.Copyright, raw.Weights.Copyright)
	setFloat(&w.MinorSafety, raw.Weights.MinorSafety)

	setInt(&cfg.Thresholds.Critical, raw.Thresholds.Critical)
	setInt(&cfg.Thresholds.High, raw.Thresholds.High)
	setInt(&cfg.Thresholds.Medium, raw.Thresholds.Medium)
	setInt(&cfg.Thresholds.Low, raw.Thresholds.Low)

	setInt(&cfg.EscalationStrikes, raw.EscalationStrikes)
	if raw.TemporaryActionTTL != nil {
		cfg.TemporaryActionTTL = *raw.TemporaryActionTTL
	}
	setFloat(&cfg.AutoClaimConfidence, raw.AutoClaimConfidence)
	if raw.StrikeOnFailedDispute != nil {
		cfg.StrikeOnFailedDispute = *raw.StrikeOnFailedDispute
	}
	setInt(&cfg.MonetizeStrikeLimit, raw.MonetizeStrikeLimit)
	setInt(&cfg.DefaultRevenueShare, raw.DefaultRevenueShare)
	setInt(&cfg.HighRiskThreshold, raw.HighRiskThreshold)
	return cfg
}

// Validate checks that the policy is internally consistent.
func (p PolicyConfig) Validate() error {
	weights := map[string]float64{
		"nsfw": p.Weights.NSFW, "violence": p.Weights.Violence, "hate_speech": p.Weights.HateSpeech,
		"profanity": p.Weights.Profanity, "spam": p.Weights.Spam, "dangerous": p.Weights.Dangerous,
		"misinformation": p.Weights.Misinformation, "copyright": p.Weights.Copyright,
		"minor_safety": p.Weights.MinorSafety,
	}
	for name, w := range weights {
		if w < 0 || w > 100 {
			return fmt.Errorf("invalid policy.weights.%s %.2f, expected 0-100", name, w)
		}
	}

	t := p.Thresholds
	if !(t.Critical <= 100 && t.Critical > t.High && t.High > t.Medium && t.Medium > t.Low && t.Low > 0) {
		return fmt.Errorf("invalid policy.thresholds %d/%d/%d/%d, expected 100 >= critical > high > medium > low > 0",
			t.Critical, t.High, t.Medium, t.Low)
	}
	if p.EscalationStrikes < 1 {
		return fmt.Errorf("invalid policy.escalation_strikes %d, expected >= 1", p.EscalationStrikes)
	}
	if p.TemporaryActionTTL <= 0 {
		return fmt.Errorf("invalid policy.temporary_action_ttl %s, expected > 0", p.TemporaryActionTTL)
	}
	if p.AutoClaimConfidence <= 0 || p.AutoClaimConfidence > 1 {
		return fmt.Errorf("invalid policy.auto_claim_confidence %.2f, expected (0, 1]", p.AutoClaimConfidence)
	}
	if p.MonetizeStrikeLimit < 1 {
		return fmt.Errorf("invalid policy.monetize_strike_limit %d, expected >= 1", p.MonetizeStrikeLimit)
	}
	if p.DefaultRevenueShare < 0 || p.DefaultRevenueShare > 100 {
		return fmt.Errorf("invalid policy.default_revenue_share %d, expected 0-100", p.DefaultRevenueShare)
	}
	if p.HighRiskThreshold < 0 || p.HighRiskThreshold > 100 {
		return fmt.Errorf("invalid policy.high_risk_threshold %d, expected 0-100", p.HighRiskThreshold)
	}
	return nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
