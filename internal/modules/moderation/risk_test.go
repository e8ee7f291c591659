package moderation

import (
	"testing"

	"github.com/mx-space/sentinel/internal/config"
	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"github.com/stretchr/testify/assert"
)

var policy = config.DefaultPolicy()

func TestComputeRiskScoreSingleSignal(t *testing.T) {
	sigs := models.Signals{
		models.SignalNSFW:     {Detected: true, Confidence: 0.9},
		models.SignalViolence: {Detected: false, Confidence: 0.99},
	}
	score := ComputeRiskScore(sigs, policy.Weights)
	assert.Equal(t, 27, score)
	assert.Equal(t, models.RiskLow, ClassifyRisk(score, policy.Thresholds))

	rec := RecommendAction(models.RiskLow, 0, false, policy.EscalationStrikes)
	assert.Equal(t, models.RecommendFlag, rec.Action)
	assert.False(t, rec.ReviewRequired)
}

func TestComputeRiskScoreNormalizesPercentages(t *testing.T) {
	fraction := models.Signals{models.SignalHateSpeech: {Detected: true, Confidence: 0.5}}
	percent := models.Signals{models.SignalHateSpeech: {Detected: true, Confidence: 50}}
	// 25 * 0.5 = 12.5 rounds away from zero
	assert.Equal(t, 13, ComputeRiskScore(fraction, policy.Weights))
	assert.Equal(t, 13, ComputeRiskScore(percent, policy.Weights))
}

func TestComputeRiskScoreIsClampedAndPure(t *testing.T) {
	all := models.Signals{}
	for _, name := range models.SignalNames() {
		all[name] = models.Signal{Detected: true, Confidence: 1}
	}
	first := ComputeRiskScore(all, policy.Weights)
	assert.Equal(t, 100, first)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ComputeRiskScore(all, policy.Weights))
	}

	assert.Equal(t, 0, ComputeRiskScore(nil, policy.Weights))
	assert.Equal(t, 0, ComputeRiskScore(models.Signals{
		models.SignalProfanity: {Detected: true, Confidence: 1},
		models.SignalDangerous: {Detected: true, Confidence: 1},
	}, policy.Weights), "zero-weight signals do not score")
}

func TestClassifyRiskBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  models.RiskLevel
	}{
		{100, models.RiskCritical},
		{80, models.RiskCritical},
		{79, models.RiskHigh},
		{60, models.RiskHigh},
		{59, models.RiskMedium},
		{40, models.RiskMedium},
		{39, models.RiskLow},
		{20, models.RiskLow},
		{19, models.RiskSafe},
		{0, models.RiskSafe},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyRisk(tc.score, policy.Thresholds), "score %d", tc.score)
	}
}

func TestRecommendAction(t *testing.T) {
	cases := []struct {
		name     string
		level    models.RiskLevel
		strikes  int
		critical bool
		want     Recommendation
	}{
		{"critical first offence", models.RiskCritical, 1, false, Recommendation{models.RecommendRemove, true, models.PriorityHigh}},
		{"critical repeat offender", models.RiskCritical, 2, false, Recommendation{models.RecommendBanUser, true, models.PriorityHigh}},
		{"high", models.RiskHigh, 5, false, Recommendation{models.RecommendRemove, true, models.PriorityMedium}},
		{"medium", models.RiskMedium, 0, false, Recommendation{models.RecommendRestrict, true, models.PriorityLow}},
		{"low", models.RiskLow, 0, false, Recommendation{models.RecommendFlag, false, models.PriorityNone}},
		{"safe", models.RiskSafe, 9, false, Recommendation{models.RecommendAllow, false, models.PriorityNone}},
		{"minor safety overrides safe", models.RiskSafe, 0, true, Recommendation{models.RecommendBanUser, true, models.PriorityUrgent}},
		{"minor safety overrides critical", models.RiskCritical, 0, true, Recommendation{models.RecommendBanUser, true, models.PriorityUrgent}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RecommendAction(tc.level, tc.strikes, tc.critical, policy.EscalationStrikes))
		})
	}
}

func TestAssessCriticalMinorSafetyAtLowScore(t *testing.T) {
	sigs := models.Signals{
		models.SignalSpam: {Detected: true, Confidence: 1},
		models.SignalMinorSafety: {Concerns: []models.SafetyConcern{
			{Concern: "age_indicators", Severity: models.SeverityCritical, Confidence: 0.7},
		}},
	}
	score, a := Assess(sigs, 0, policy)
	assert.Equal(t, 10, score)
	assert.Equal(t, models.RiskSafe, a.RiskLevel)
	assert.True(t, a.CriticalMinorSafety)
	assert.Equal(t, models.RecommendBanUser, a.RecommendedAction)
	assert.Equal(t, models.PriorityUrgent, a.ReviewPriority)
}

func TestValidateSignals(t *testing.T) {
	assert.NoError(t, validateSignals(models.Signals{models.SignalSpam: {Detected: true, Confidence: 85}}))

	bad := map[string]models.Signals{
		"unknown":  {"toxicity": {Detected: true, Confidence: 0.5}},
		"negative": {models.SignalNSFW: {Detected: true, Confidence: -0.1}},
		"too big":  {models.SignalNSFW: {Detected: true, Confidence: 120}},
		"severity": {models.SignalMinorSafety: {Concerns: []models.SafetyConcern{{Concern: "x", Severity: "severe"}}}},
	}
	for name, sigs := range bad {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, validateSignals(sigs), apperr.ErrValidation)
		})
	}
}
