package models

import (
	"strings"
	"time"
)

// ModerationStatus is the lifecycle state of a moderation record.
type ModerationStatus string

const (
	ModerationPending     ModerationStatus = "pending"
	ModerationApproved    ModerationStatus = "approved"
	ModerationRejected    ModerationStatus = "rejected"
	ModerationFlagged     ModerationStatus = "flagged"
	ModerationUnderReview ModerationStatus = "under_review"
	ModerationAppealed    ModerationStatus = "appealed"
)

// SignalName identifies one detector category.
type SignalName string

const (
	SignalNSFW           SignalName = "nsfw"
	SignalViolence       SignalName = "violence"
	SignalHateSpeech     SignalName = "hateSpeech"
	SignalProfanity      SignalName = "profanity"
	SignalSpam           SignalName = "spam"
	SignalDangerous      SignalName = "dangerous"
	SignalMisinformation SignalName = "misinformation"
	SignalCopyright      SignalName = "copyright"
	SignalMinorSafety    SignalName = "minorSafety"
)

// SignalNames lists every known signal in scoring order.
func SignalNames() []SignalName {
	return []SignalName{
		SignalNSFW, SignalViolence, SignalHateSpeech, SignalProfanity, SignalSpam,
		SignalDangerous, SignalMisinformation, SignalCopyright, SignalMinorSafety,
	}
}

// Severity grades a violation or a minor-safety concern.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SafetyConcern is one finding of the minor-safety detector.
type SafetyConcern struct {
	Concern    string   `json:"concern"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"`
}

// Signal is a single detector verdict. Confidence may be reported on a 0..1
// or a 0..100 scale; scoring normalizes it.
type Signal struct {
	Detected   bool               `json:"detected"`
	Confidence float64            `json:"confidence"`
	Categories map[string]float64 `json:"categories,omitempty"`
	Provider   string             `json:"provider,omitempty"`
	Concerns   []SafetyConcern    `json:"concerns,omitempty"`
}

// Signals maps signal name to the verdict from the latest detection pass.
type Signals map[SignalName]Signal

// HasCriticalMinorSafety reports whether any minor-safety concern is critical.
func (s Signals) HasCriticalMinorSafety() bool {
	sig, ok := s[SignalMinorSafety]
	if !ok {
		return false
	}
	for _, c := range sig.Concerns {
		if c.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low_risk"
	RiskMedium   RiskLevel = "medium_risk"
	RiskHigh     RiskLevel = "high_risk"
	RiskCritical RiskLevel = "critical"
)

type RecommendedAction string

const (
	RecommendAllow    RecommendedAction = "allow"
	RecommendFlag     RecommendedAction = "flag"
	RecommendRestrict RecommendedAction = "restrict"
	RecommendRemove   RecommendedAction = "remove"
	RecommendBanUser  RecommendedAction = "ban_user"
)

type ReviewPriority string

const (
	PriorityNone   ReviewPriority = ""
	PriorityLow    ReviewPriority = "low"
	PriorityMedium ReviewPriority = "medium"
	PriorityHigh   ReviewPriority = "high"
	PriorityUrgent ReviewPriority = "urgent"
)

// Assessment is the derived view of the current signals.
type Assessment struct {
	RiskLevel           RiskLevel         `json:"riskLevel"`
	RecommendedAction   RecommendedAction `json:"recommendedAction"`
	ReviewRequired      bool              `json:"reviewRequired"`
	ReviewPriority      ReviewPriority    `json:"reviewPriority,omitempty"`
	CriticalMinorSafety bool              `json:"criticalMinorSafety"`
	StrikeCount         int               `json:"strikeCount"`
}

type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)

type ManualReview struct {
	Required   bool           `json:"required"`
	Completed  bool           `json:"completed"`
	Priority   ReviewPriority `json:"priority,omitempty"`
	Reviewer   string         `json:"reviewer,omitempty"`
	Decision   ReviewDecision `json:"decision,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	ReviewedAt *time.Time     `json:"reviewedAt,omitempty"`
}

type AppealDecision string

const (
	AppealPending    AppealDecision = "pending"
	AppealUpheld     AppealDecision = "upheld"
	AppealOverturned AppealDecision = "overturned"
)

type Appeal struct {
	HasAppeal        bool           `json:"hasAppeal"`
	AppealedAt       *time.Time     `json:"appealedAt,omitempty"`
	AppealReason     string         `json:"appealReason,omitempty"`
	AppealNotes      string         `json:"appealNotes,omitempty"`
	AppealDecision   AppealDecision `json:"appealDecision,omitempty"`
	AppealReviewer   string         `json:"appealReviewer,omitempty"`
	AppealResolution string         `json:"appealResolution,omitempty"`
	AppealResolvedAt *time.Time     `json:"appealResolvedAt,omitempty"`
}

// AppliedAction is the last enforcement action taken on the content.
// Cycle ties it to the detection pass it was decided in.
type AppliedAction struct {
	Type       ActionType `json:"type"`
	Reason     string     `json:"reason,omitempty"`
	AppliedBy  string     `json:"appliedBy,omitempty"`
	AppliedAt  *time.Time `json:"appliedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	StrikeID   string     `json:"strikeId,omitempty"`
	Cycle      int        `json:"cycle"`
	ReversedAt *time.Time `json:"reversedAt,omitempty"`
}

type DetectedBy string

const (
	DetectedAutomated  DetectedBy = "automated"
	DetectedManual     DetectedBy = "manual"
	DetectedUserReport DetectedBy = "user_report"
)

type Violation struct {
	Category   string     `json:"category"`
	Severity   Severity   `json:"severity"`
	DetectedBy DetectedBy `json:"detectedBy"`
	Timestamp  time.Time  `json:"timestamp"`
}

type UserReport struct {
	Reason     string    `json:"reason"`
	ReportedBy string    `json:"reportedBy"`
	Timestamp  time.Time `json:"timestamp"`
}

type UserReports struct {
	Count   int          `json:"count"`
	Reports []UserReport `json:"reports,omitempty"`
}

type AutomatedActionKind string

const (
	AutoFlagged       AutomatedActionKind = "flagged"
	AutoHidden        AutomatedActionKind = "hidden"
	AutoRemoved       AutomatedActionKind = "removed"
	AutoAgeRestricted AutomatedActionKind = "age_restricted"
)

type AutomatedAction struct {
	Action     AutomatedActionKind `json:"action"`
	Reason     string              `json:"reason"`
	AppliedAt  time.Time           `json:"appliedAt"`
	Reversible bool                `json:"reversible"`
}

// ModerationRecord is the moderation state of one content item.
type ModerationRecord struct {
	Base
	Versioned
	Content          ContentRef        `json:"content"          gorm:"embedded"`
	CreatorID        string            `json:"creatorId"        gorm:"size:64;not null;index"`
	Status           ModerationStatus  `json:"status"           gorm:"size:16;not null;index"`
	Signals          Signals           `json:"automatedSignals" gorm:"type:longtext;serializer:json"`
	RiskScore        int               `json:"riskScore"        gorm:"not null;default:0;index"`
	RiskLevel        RiskLevel         `json:"-"                gorm:"size:16;index"`
	FlaggedSignals   string            `json:"-"                gorm:"size:255"`
	Assessment       Assessment        `json:"assessment"       gorm:"type:longtext;serializer:json"`
	Cycle            int               `json:"cycle"            gorm:"not null;default:0"`
	ReviewRequired   bool              `json:"-"                gorm:"not null;default:false;index"`
	ReviewCompleted  bool              `json:"-"                gorm:"not null;default:false"`
	ManualReview     ManualReview      `json:"manualReview"     gorm:"type:longtext;serializer:json"`
	Appeal           Appeal            `json:"appeal"           gorm:"type:longtext;serializer:json"`
	Action           AppliedAction     `json:"action"           gorm:"type:longtext;serializer:json"`
	Violations       []Violation       `json:"violations"       gorm:"type:longtext;serializer:json"`
	UserReports      UserReports       `json:"userReports"      gorm:"type:longtext;serializer:json"`
	AutomatedActions []AutomatedAction `json:"automatedActions" gorm:"type:longtext;serializer:json"`
}

func (ModerationRecord) TableName() string { return "moderation_records" }

// SyncColumns copies queryable flags out of the JSON columns before a save.
func (r *ModerationRecord) SyncColumns() {
	r.ReviewRequired = r.ManualReview.Required
	r.ReviewCompleted = r.ManualReview.Completed
	r.RiskLevel = r.Assessment.RiskLevel
	r.FlaggedSignals = r.Signals.flaggedColumn()
}

// flaggedColumn renders detected signal names as ",nsfw,spam," so a single
// LIKE finds one of them regardless of position.
func (s Signals) flaggedColumn() string {
	var b strings.Builder
	for _, name := range SignalNames() {
		if s[name].Detected {
			b.WriteString(",")
			b.WriteString(string(name))
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + ","
}

// ValidSignal reports whether name is a known detector category.
func ValidSignal(name SignalName) bool {
	for _, n := range SignalNames() {
		if n == name {
			return true
		}
	}
	return false
}
