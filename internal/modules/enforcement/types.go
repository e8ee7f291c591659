package enforcement

import (
	"time"

	"github.com/mx-space/sentinel/internal/models"
)

// ActionRequest asks the ledger to record one enforcement action.
// (CreatorID, ContentID, ActionType, DedupKey) identifies it: applying the
// same request twice records it once.
type ActionRequest struct {
	CreatorID  string
	ContentID  string
	ActionType models.ActionType
	Reason     string
	AppliedBy  string
	Source     models.SourceEngine
	DedupKey   string
}

// Standing summarizes a creator's enforcement state.
type Standing struct {
	CreatorID   string               `json:"creatorId"`
	StrikeCount int                  `json:"strikeCount"`
	Active      []models.StrikeEntry `json:"activeRestrictions"`
	History     []models.StrikeEntry `json:"history"`
	CheckedAt   time.Time            `json:"checkedAt"`
}

// ApplyActionDTO is the body of a manual enforcement action.
type ApplyActionDTO struct {
	ContentID  string `json:"contentId"  binding:"required"`
	ActionType string `json:"actionType" binding:"required"`
	Reason     string `json:"reason"     binding:"required"`
	DedupKey   string `json:"dedupKey"`
}

// ReverseDTO is the body of a manual strike reversal.
type ReverseDTO struct {
	Reason string `json:"reason" binding:"required"`
}
