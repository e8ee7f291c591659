package moderation

import (
	"math"

	"github.com/mx-space/sentinel/internal/config"
	"github.com/mx-space/sentinel/internal/models"
)

// ComputeRiskScore is the weighted sum of the detected signals, each
// confidence normalized to 0..1, rounded and clamped to 0..100.
func ComputeRiskScore(sigs models.Signals, w config.RiskWeights) int {
	total := 0.0
	for _, name := range models.SignalNames() {
		sig, ok := sigs[name]
		if !ok || !sig.Detected {
			continue
		}
		total += weightOf(name, w) * normalizeConfidence(sig.Confidence)
	}
	score := int(math.Round(total))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func weightOf(name models.SignalName, w config.RiskWeights) float64 {
	switch name {
	case models.SignalNSFW:
		return w.NSFW
	case models.SignalViolence:
		return w.Violence
	case models.SignalHateSpeech:
		return w.HateSpeech
	case models.SignalProfanity:
		return w.Profanity
	case models.SignalSpam:
		return w.Spam
	case models.SignalDangerous:
		return w.Dangerous
	case models.SignalMisinformation:
		return w.Misinformation
	case models.SignalCopyright:
		return w.Copyright
	case models.SignalMinorSafety:
		return w.MinorSafety
	}
	return 0
}

// normalizeConfidence maps a 0..100 confidence onto 0..1.
func normalizeConfidence(v float64) float64 {
	if v > 1 {
		v /= 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClassifyRisk maps a score onto a level. Thresholds are inclusive lower bounds.
func ClassifyRisk(score int, t config.RiskThresholds) models.RiskLevel {
	switch {
	case score >= t.Critical:
		return models.RiskCritical
	case score >= t.High:
		return models.RiskHigh
	case score >= t.Medium:
		return models.RiskMedium
	case score >= t.Low:
		return models.RiskLow
	default:
		return models.RiskSafe
	}
}

// Recommendation is the automated verdict for one risk level.
type Recommendation struct {
	Action         models.RecommendedAction
	ReviewRequired bool
	Priority       models.ReviewPriority
}

// RecommendAction decides what should happen to the content. A critical
// minor-safety concern overrides the level. escalationStrikes is the strike
// count from which critical content bans the creator instead of removing it.
func RecommendAction(level models.RiskLevel, strikes int, criticalMinorSafety bool, escalationStrikes int) Recommendation {
	if criticalMinorSafety {
		return Recommendation{Action: models.RecommendBanUser, ReviewRequired: true, Priority: models.PriorityUrgent}
	}
	switch level {
	case models.RiskCritical:
		action := models.RecommendRemove
		if strikes >= escalationStrikes {
			action = models.RecommendBanUser
		}
		return Recommendation{Action: action, ReviewRequired: true, Priority: models.PriorityHigh}
	case models.RiskHigh:
		return Recommendation{Action: models.RecommendRemove, ReviewRequired: true, Priority: models.PriorityMedium}
	case models.RiskMedium:
		return Recommendation{Action: models.RecommendRestrict, ReviewRequired: true, Priority: models.PriorityLow}
	case models.RiskLow:
		return Recommendation{Action: models.RecommendFlag}
	default:
		return Recommendation{Action: models.RecommendAllow}
	}
}

// Assess derives score and assessment from the signals and the creator's
// current strike count.
func Assess(sigs models.Signals, strikes int, p config.PolicyConfig) (int, models.Assessment) {
	score := ComputeRiskScore(sigs, p.Weights)
	level := ClassifyRisk(score, p.Thresholds)
	critical := sigs.HasCriticalMinorSafety()
	rec := RecommendAction(level, strikes, critical, p.EscalationStrikes)
	return score, models.Assessment{
		RiskLevel:           level,
		RecommendedAction:   rec.Action,
		ReviewRequired:      rec.ReviewRequired,
		ReviewPriority:      rec.Priority,
		CriticalMinorSafety: critical,
		StrikeCount:         strikes,
	}
}

// validateSignals rejects unknown names and confidences outside 0..100.
func validateSignals(sigs models.Signals) error {
	known := make(map[models.SignalName]struct{}, len(models.SignalNames()))
	for _, n := range models.SignalNames() {
		known[n] = struct{}{}
	}
	for name, sig := range sigs {
		if _, ok := known[name]; !ok {
			return errUnknownSignal(name)
		}
		if math.IsNaN(sig.Confidence) || sig.Confidence < 0 || sig.Confidence > 100 {
			return errConfidence(name, sig.Confidence)
		}
		for _, c := range sig.Concerns {
			switch c.Severity {
			case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
			default:
				return errSeverity(name, c.Severity)
			}
		}
	}
	return nil
}
