package models

import "time"

type RightsStatus string

const (
	RightsPendingScan     RightsStatus = "pending_scan"
	RightsClear           RightsStatus = "clear"
	RightsLicensed        RightsStatus = "licensed"
	RightsClaimed         RightsStatus = "claimed"
	RightsDisputed        RightsStatus = "disputed"
	RightsMonetizedShared RightsStatus = "monetized_shared"
	RightsBlocked         RightsStatus = "blocked"
	RightsMuted           RightsStatus = "muted"
)

type ClaimAction string

const (
	ClaimMonetize ClaimAction = "monetize"
	ClaimTrack    ClaimAction = "track"
	ClaimBlock    ClaimAction = "block"
	ClaimMute     ClaimAction = "mute"
)

func (a ClaimAction) Valid() bool {
	switch a {
	case ClaimMonetize, ClaimTrack, ClaimBlock, ClaimMute:
		return true
	}
	return false
}

type ClaimStatus string

const (
	ClaimActive   ClaimStatus = "active"
	ClaimDisputed ClaimStatus = "disputed"
	ClaimReleased ClaimStatus = "released"
	ClaimExpired  ClaimStatus = "expired"
)

type ClaimType string

const (
	ClaimTypeAudio       ClaimType = "audio"
	ClaimTypeComposition ClaimType = "composition"
	ClaimTypeBoth        ClaimType = "both"
)

type DisputeStatus string

const (
	DisputePending     DisputeStatus = "pending"
	DisputeUnderReview DisputeStatus = "under_review"
	DisputeUpheld      DisputeStatus = "upheld"
	DisputeRejected    DisputeStatus = "rejected"
)

// Open reports whether the dispute still awaits a decision.
func (s DisputeStatus) Open() bool {
	return s == DisputePending || s == DisputeUnderReview
}

type DisputeReason string

const (
	DisputePublicDomain    DisputeReason = "public_domain"
	DisputeFairUse         DisputeReason = "fair_use"
	DisputeLicensed        DisputeReason = "licensed"
	DisputeOriginalContent DisputeReason = "original_content"
	DisputeMisidentified   DisputeReason = "misidentified"
	DisputeOther           DisputeReason = "other"
)

func (r DisputeReason) Valid() bool {
	switch r {
	case DisputePublicDomain, DisputeFairUse, DisputeLicensed,
		DisputeOriginalContent, DisputeMisidentified, DisputeOther:
		return true
	}
	return false
}

// MusicMatch is one fingerprint hit inside the content's audio track.
type MusicMatch struct {
	SoundRef        string  `json:"soundRef"`
	Title           string  `json:"title,omitempty"`
	Artist          string  `json:"artist,omitempty"`
	MatchConfidence float64 `json:"matchConfidence"`
	StartTime       float64 `json:"startTime"`
	Duration        float64 `json:"duration"`
}

type RightsHolder struct {
	Name           string `json:"name"`
	ContactEmail   string `json:"contactEmail,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
}

type ClaimedMusic struct {
	SoundRef string `json:"soundRef,omitempty"`
	Title    string `json:"title"`
	Artist   string `json:"artist,omitempty"`
	ISRC     string `json:"isrc,omitempty"`
	Catalog  string `json:"catalog,omitempty"`
}

// RevenueShare splits monetized revenue in whole percentage points.
type RevenueShare struct {
	RightsHolderPercentage int `json:"rightsHolderPercentage"`
	CreatorPercentage      int `json:"creatorPercentage"`
}

type Claim struct {
	ClaimID      string        `json:"claimId"`
	RightsHolder RightsHolder  `json:"rightsHolder"`
	ClaimedMusic ClaimedMusic  `json:"claimedMusic"`
	ClaimType    ClaimType     `json:"claimType,omitempty"`
	Action       ClaimAction   `json:"action"`
	RevenueShare *RevenueShare `json:"revenueShare,omitempty"`
	Territories  []string      `json:"territories,omitempty"`
	Status       ClaimStatus   `json:"status"`
	Automated    bool          `json:"automated"`
	ClaimedAt    time.Time     `json:"claimedAt"`
}

// CoversTerritory reports whether the claim applies in the given territory.
// A claim without territories applies worldwide.
func (c *Claim) CoversTerritory(territory string) bool {
	if len(c.Territories) == 0 || territory == "" {
		return true
	}
	for _, t := range c.Territories {
		if t == territory || t == "WW" {
			return true
		}
	}
	return false
}

type DisputeResolution struct {
	Decision  DisputeStatus `json:"decision"`
	Reason    string        `json:"reason,omitempty"`
	DecidedBy string        `json:"decidedBy,omitempty"`
	DecidedAt time.Time     `json:"decidedAt"`
}

type Dispute struct {
	DisputeID   string             `json:"disputeId"`
	ClaimID     string             `json:"claimId"`
	DisputedBy  string             `json:"disputedBy"`
	Reason      DisputeReason      `json:"reason"`
	Explanation string             `json:"explanation,omitempty"`
	Status      DisputeStatus      `json:"status"`
	Resolution  *DisputeResolution `json:"resolution,omitempty"`
	FiledAt     time.Time          `json:"filedAt"`
}

type License struct {
	SoundRef    string     `json:"soundRef"`
	LicenseType string     `json:"licenseType"`
	Licensor    string     `json:"licensor,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

type RightsEnforcementAction struct {
	ActionType ActionType `json:"actionType"`
	Reason     string     `json:"reason,omitempty"`
	ClaimID    string     `json:"claimId,omitempty"`
	StrikeID   string     `json:"strikeId,omitempty"`
	TakenAt    time.Time  `json:"takenAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	ReversedAt *time.Time `json:"reversedAt,omitempty"`
}

type EnforcementAppealStatus string

const (
	EnforcementAppealNone     EnforcementAppealStatus = "none"
	EnforcementAppealPending  EnforcementAppealStatus = "pending"
	EnforcementAppealApproved EnforcementAppealStatus = "approved"
	EnforcementAppealDenied   EnforcementAppealStatus = "denied"
)

type RightsEnforcement struct {
	Strikes      int                       `json:"strikes"`
	Actions      []RightsEnforcementAction `json:"actions,omitempty"`
	AppealStatus EnforcementAppealStatus   `json:"appealStatus"`
}

type ScanEntry struct {
	ScannedAt  time.Time `json:"scannedAt"`
	Method     string    `json:"method"`
	Detections int       `json:"detections"`
}

// RightsRecord is the rights state of one content item. Royalty totals live
// in RoyaltyAccount so they can be incremented atomically.
type RightsRecord struct {
	Base
	Versioned
	Content          ContentRef        `json:"content"          gorm:"embedded"`
	CreatorID        string            `json:"creatorId"        gorm:"size:64;not null;index"`
	AudioFingerprint string            `json:"audioFingerprint" gorm:"size:255"`
	DetectedMusic    []MusicMatch      `json:"detectedMusic"    gorm:"type:longtext;serializer:json"`
	Status           RightsStatus      `json:"status"           gorm:"size:24;not null;index"`
	Claims           []Claim           `json:"claims"           gorm:"type:longtext;serializer:json"`
	Disputes         []Dispute         `json:"disputes"         gorm:"type:longtext;serializer:json"`
	License          *License          `json:"license,omitempty" gorm:"type:longtext;serializer:json"`
	Enforcement      RightsEnforcement `json:"enforcement"      gorm:"type:longtext;serializer:json"`
	ScanHistory      []ScanEntry       `json:"scanHistory"      gorm:"type:longtext;serializer:json"`
	Usage            UsageStats        `json:"usageStats"       gorm:"embedded;embeddedPrefix:usage_"`
	OpenDisputes     int               `json:"openDisputes"     gorm:"not null;default:0;index"`

	Royalties *RoyaltyAccount `json:"royalties,omitempty" gorm:"-"`
}

func (RightsRecord) TableName() string { return "rights_records" }

// UsageStats is the latest view and revenue snapshot reported for the content.
type UsageStats struct {
	Views            int64      `json:"views"            gorm:"not null;default:0"`
	MonetizableViews int64      `json:"monetizableViews" gorm:"not null;default:0"`
	EstimatedRevenue int64      `json:"estimatedRevenue" gorm:"not null;default:0"`
	LastUpdated      *time.Time `json:"lastUpdated,omitempty"`
}

// SyncColumns copies queryable counters out of the JSON columns before a save.
func (r *RightsRecord) SyncColumns() {
	n := 0
	for _, d := range r.Disputes {
		if d.Status.Open() {
			n++
		}
	}
	r.OpenDisputes = n
}

// FindClaim returns the index of the claim with the given id, or -1.
func (r *RightsRecord) FindClaim(claimID string) int {
	for i := range r.Claims {
		if r.Claims[i].ClaimID == claimID {
			return i
		}
	}
	return -1
}

// FindDispute returns the index of the dispute with the given id, or -1.
func (r *RightsRecord) FindDispute(disputeID string) int {
	for i := range r.Disputes {
		if r.Disputes[i].DisputeID == disputeID {
			return i
		}
	}
	return -1
}

// RoyaltyAccount holds running royalty totals in minor currency units.
// PendingPayout always equals TotalEarned - TotalPaidOut.
type RoyaltyAccount struct {
	ContentID     string     `json:"contentId"     gorm:"primaryKey;size:64"`
	Currency      string     `json:"currency"      gorm:"size:3;not null;default:USD"`
	TotalEarned   int64      `json:"totalEarned"   gorm:"not null;default:0"`
	TotalPaidOut  int64      `json:"totalPaidOut"  gorm:"not null;default:0"`
	PendingPayout int64      `json:"pendingPayout" gorm:"not null;default:0"`
	LastAccrualAt *time.Time `json:"lastAccrualAt,omitempty"`
	UpdatedAt     time.Time  `json:"modified"`

	Payouts []RoyaltyPayout `json:"payouts,omitempty" gorm:"-"`
}

func (RoyaltyAccount) TableName() string { return "royalty_accounts" }

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// RoyaltyPayout is one entry of the payout ledger.
type RoyaltyPayout struct {
	Base
	ContentID      string       `json:"contentId"      gorm:"size:64;not null;index"`
	RightsHolderID string       `json:"rightsHolderId" gorm:"size:64;not null;index"`
	Amount         int64        `json:"amount"         gorm:"not null"`
	Currency       string       `json:"currency"       gorm:"size:3;not null;default:USD"`
	Status         PayoutStatus `json:"status"         gorm:"size:16;not null"`
	PaidAt         *time.Time   `json:"paidAt,omitempty"`
}

func (RoyaltyPayout) TableName() string { return "royalty_payouts" }

// SoundRight is a catalog entry used to auto-file claims on fingerprint matches.
type SoundRight struct {
	SoundRef     string        `json:"soundRef"     gorm:"primaryKey;size:128"`
	Title        string        `json:"title"        gorm:"size:255;not null"`
	Artist       string        `json:"artist"       gorm:"size:255"`
	ISRC         string        `json:"isrc"         gorm:"size:32"`
	Catalog      string        `json:"catalog"      gorm:"size:128"`
	Holder       RightsHolder  `json:"rightsHolder" gorm:"type:longtext;serializer:json"`
	Policy       ClaimAction   `json:"policy"       gorm:"size:16;not null"`
	RevenueShare *RevenueShare `json:"revenueShare,omitempty" gorm:"type:longtext;serializer:json"`
	Territories  []string      `json:"territories"  gorm:"type:longtext;serializer:json"`
	RoyaltyFree  bool          `json:"royaltyFree"  gorm:"not null;default:false"`
	CreatedAt    time.Time     `json:"created"`
	UpdatedAt    time.Time     `json:"modified"`
}

func (SoundRight) TableName() string { return "sound_rights" }
