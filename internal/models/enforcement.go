package models

import "time"

// ActionType is the enforcement vocabulary shared by the moderation and rights engines.
type ActionType string

const (
	ActionNone             ActionType = "none"
	ActionWarning          ActionType = "warning"
	ActionContentRemoved   ActionType = "content_removed"
	ActionAgeRestricted    ActionType = "age_restricted"
	ActionShadowban        ActionType = "shadowban"
	ActionAccountSuspended ActionType = "account_suspended"
	ActionContentBlocked   ActionType = "content_blocked"
	ActionAudioMuted       ActionType = "audio_muted"
	ActionAccountStrike    ActionType = "account_strike"
)

var actionTypes = map[ActionType]struct{}{
	ActionNone: {}, ActionWarning: {}, ActionContentRemoved: {}, ActionAgeRestricted: {},
	ActionShadowban: {}, ActionAccountSuspended: {}, ActionContentBlocked: {},
	ActionAudioMuted: {}, ActionAccountStrike: {},
}

func (a ActionType) Valid() bool {
	_, ok := actionTypes[a]
	return ok
}

// Temporary reports whether the action lapses on its own after the configured TTL.
func (a ActionType) Temporary() bool {
	return a == ActionShadowban || a == ActionAccountSuspended
}

// SourceEngine identifies which engine raised a ledger entry.
type SourceEngine string

const (
	SourceModeration SourceEngine = "moderation"
	SourceRights     SourceEngine = "rights"
	SourceManual     SourceEngine = "manual"
)

// CreatorStanding is the per-creator strike counter shared by both engines.
type CreatorStanding struct {
	CreatorID   string    `json:"creatorId"   gorm:"primaryKey;size:64"`
	StrikeCount int       `json:"strikeCount" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created"`
	UpdatedAt   time.Time `json:"modified"`
}

func (CreatorStanding) TableName() string { return "creator_standings" }

// StrikeEntry is one row of the per-creator enforcement log. Entries are
// never deleted; reversals and expiry are recorded in place.
type StrikeEntry struct {
	Base
	CreatorID     string       `json:"creatorId"               gorm:"size:64;not null;index;uniqueIndex:idx_strike_dedup,priority:1"`
	ContentID     string       `json:"contentId"               gorm:"size:64;not null;uniqueIndex:idx_strike_dedup,priority:2"`
	ActionType    ActionType   `json:"actionType"              gorm:"size:32;not null;uniqueIndex:idx_strike_dedup,priority:3"`
	DedupKey      string       `json:"dedupKey"                gorm:"size:128;not null;uniqueIndex:idx_strike_dedup,priority:4"`
	Reason        string       `json:"reason"                  gorm:"type:text"`
	AppliedBy     string       `json:"appliedBy"               gorm:"size:64"`
	SourceEngine  SourceEngine `json:"sourceEngine"            gorm:"size:16;not null"`
	AppliedAt     time.Time    `json:"appliedAt"               gorm:"not null"`
	ExpiresAt     *time.Time   `json:"expiresAt,omitempty"     gorm:"index"`
	Expired       bool         `json:"expired"                 gorm:"not null;default:false"`
	Reversed      bool         `json:"reversed"                gorm:"not null;default:false"`
	ReversedAt    *time.Time   `json:"reversedAt,omitempty"`
	ReversedBy    string       `json:"reversedBy,omitempty"    gorm:"size:64"`
	ReverseReason string       `json:"reverseReason,omitempty" gorm:"type:text"`
}

func (StrikeEntry) TableName() string { return "strike_entries" }

// Active reports whether the entry still restricts the creator at t.
func (e *StrikeEntry) Active(t time.Time) bool {
	if e.Reversed || e.Expired {
		return false
	}
	return e.ExpiresAt == nil || t.Before(*e.ExpiresAt)
}
