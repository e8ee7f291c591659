package rights

import (
	"time"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
)

// ScanInput is one fingerprint pass over a content item's audio track.
type ScanInput struct {
	Content     models.ContentRef
	CreatorID   string
	Fingerprint string
	Method      string
	Matches     []models.MusicMatch
}

// ClaimInput is a rights holder's claim over music in the content.
type ClaimInput struct {
	RightsHolder models.RightsHolder
	ClaimedMusic models.ClaimedMusic
	ClaimType    models.ClaimType
	Action       models.ClaimAction
	RevenueShare *models.RevenueShare
	Territories  []string
	FiledBy      string
	Automated    bool
}

type DisputeInput struct {
	ClaimID     string
	DisputedBy  string
	Reason      models.DisputeReason
	Explanation string
}

type ResolveDisputeInput struct {
	Decision  models.DisputeStatus
	Reason    string
	DecidedBy string
}

// Distribution is one rights holder's cut of a revenue event.
type Distribution struct {
	ClaimID        string `json:"claimId"`
	RightsHolderID string `json:"rightsHolderId"`
	Name           string `json:"rightsHolderName"`
	Percentage     int    `json:"percentage"`
	Amount         int64  `json:"amount"`
}

// RevenueSplit is the outcome of RecordRevenue, in minor currency units.
type RevenueSplit struct {
	ContentID         string         `json:"contentId"`
	Territory         string         `json:"territory,omitempty"`
	Amount            int64          `json:"amount"`
	RightsHolderShare int64          `json:"rightsHolderShare"`
	CreatorShare      int64          `json:"creatorShare"`
	Distributions     []Distribution `json:"distributions"`
}

// Monetization reports whether the creator can earn from the content.
type Monetization struct {
	ContentID string `json:"contentId"`
	Eligible  bool   `json:"eligible"`
	Reason    string `json:"reason,omitempty"`
	Strikes   int    `json:"strikes"`
}

// DisputeQueueItem is one undecided dispute with the claim it contests.
type DisputeQueueItem struct {
	ContentID string         `json:"contentId"`
	CreatorID string         `json:"creatorId"`
	Dispute   models.Dispute `json:"dispute"`
	Claim     *models.Claim  `json:"claim,omitempty"`
}

// ReportLine is one content item of a royalty report.
type ReportLine struct {
	ContentID     string              `json:"contentId"`
	Status        models.RightsStatus `json:"status"`
	Views         int64               `json:"views"`
	Earned        int64               `json:"earned"`
	PaidToHolder  int64               `json:"paidToHolder"`
	PendingPayout int64               `json:"pendingPayout"`
}

// RoyaltyReport totals a rights holder's claimed content created in
// [Start, End). Earned and pending amounts are the content's whole royalty
// pool; paid counts only payouts to this holder.
type RoyaltyReport struct {
	RightsHolderID string       `json:"rightsHolderId"`
	Start          time.Time    `json:"start"`
	End            time.Time    `json:"end"`
	TotalContent   int          `json:"totalContent"`
	TotalViews     int64        `json:"totalViews"`
	TotalEarned    int64        `json:"totalEarned"`
	TotalPaid      int64        `json:"totalPaid"`
	PendingPayout  int64        `json:"pendingPayout"`
	Content        []ReportLine `json:"contentList"`
}

// BatchPayout is the outcome of paying out every pending balance of a holder.
type BatchPayout struct {
	RightsHolderID string                 `json:"rightsHolderId"`
	TotalPaid      int64                  `json:"totalPaid"`
	Payouts        []models.RoyaltyPayout `json:"payouts"`
	Skipped        []string               `json:"skipped"`
}

type UsageDTO struct {
	Views            int64 `json:"views"`
	MonetizableViews int64 `json:"monetizableViews"`
	EstimatedRevenue int64 `json:"estimatedRevenue"`
}

type ScanDTO struct {
	ContentID   string              `json:"contentId" binding:"required"`
	ContentKind string              `json:"contentKind" binding:"required"`
	CreatorID   string              `json:"creatorId" binding:"required"`
	Fingerprint string              `json:"audioFingerprint"`
	Method      string              `json:"method"`
	Matches     []models.MusicMatch `json:"detectedMusic"`
}

type ClaimDTO struct {
	RightsHolder models.RightsHolder  `json:"rightsHolder"`
	ClaimedMusic models.ClaimedMusic  `json:"claimedMusic"`
	ClaimType    string               `json:"claimType"`
	Action       string               `json:"action" binding:"required"`
	RevenueShare *models.RevenueShare `json:"revenueShare"`
	Territories  []string             `json:"territories"`
}

type DisputeDTO struct {
	Reason      string `json:"reason" binding:"required"`
	Explanation string `json:"explanation"`
}

type ResolveDisputeDTO struct {
	Decision string `json:"decision" binding:"required"`
	Reason   string `json:"reason"`
}

type RevenueDTO struct {
	Amount    int64  `json:"amount" binding:"required"`
	Territory string `json:"territory"`
}

type PayoutDTO struct {
	RightsHolderID string `json:"rightsHolderId" binding:"required"`
	Amount         int64  `json:"amount" binding:"required"`
}

type EnforcementAppealDTO struct {
	Reason string `json:"reason" binding:"required"`
}

type ResolveEnforcementAppealDTO struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

type SoundRightDTO struct {
	Title        string               `json:"title" binding:"required"`
	Artist       string               `json:"artist"`
	ISRC         string               `json:"isrc"`
	Catalog      string               `json:"catalog"`
	RightsHolder models.RightsHolder  `json:"rightsHolder"`
	Policy       string               `json:"policy" binding:"required"`
	RevenueShare *models.RevenueShare `json:"revenueShare"`
	Territories  []string             `json:"territories"`
	RoyaltyFree  bool                 `json:"royaltyFree"`
}

func errShare(share models.RevenueShare) error {
	return apperr.Validation("revenue share %d/%d must be two percentages adding up to 100",
		share.RightsHolderPercentage, share.CreatorPercentage)
}
