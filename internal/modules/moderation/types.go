package moderation

import (
	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
)

// SubmitInput is one detection pass for a content item.
type SubmitInput struct {
	Content   models.ContentRef
	CreatorID string
	Signals   models.Signals
}

// ScanInput is content handed to the configured detectors.
type ScanInput struct {
	Content   models.ContentRef
	CreatorID string
	Text      string
	MediaURLs []string
}

// RejectInput carries a reviewer's rejection.
type RejectInput struct {
	ReviewerID string
	Reason     string
	Notes      string
	Categories []string
}

type SubmitDTO struct {
	ContentID   string         `json:"contentId"   binding:"required"`
	ContentKind string         `json:"contentKind" binding:"required"`
	CreatorID   string         `json:"creatorId"   binding:"required"`
	Signals     models.Signals `json:"automatedSignals"`
}

type ScanDTO struct {
	ContentID   string   `json:"contentId"   binding:"required"`
	ContentKind string   `json:"contentKind" binding:"required"`
	CreatorID   string   `json:"creatorId"   binding:"required"`
	Text        string   `json:"text"`
	MediaURLs   []string `json:"mediaUrls"`
}

type ApproveDTO struct {
	Notes string `json:"notes"`
}

type RejectDTO struct {
	Reason     string   `json:"reason"     binding:"required"`
	Notes      string   `json:"notes"`
	Categories []string `json:"categories"`
}

type FlagDTO struct {
	Reason string `json:"reason" binding:"required"`
}

type ReviewDTO struct {
	Priority string `json:"priority"`
	Reason   string `json:"reason"`
}

type AppealDTO struct {
	Reason string `json:"reason" binding:"required"`
	Notes  string `json:"notes"`
}

type ResolveAppealDTO struct {
	Decision   string `json:"decision"   binding:"required"`
	Resolution string `json:"resolution" binding:"required"`
}

type ReportDTO struct {
	Reason string `json:"reason" binding:"required"`
}

// ScanTask is the payload of a queued scan.
type ScanTask struct {
	ContentID   string   `json:"contentId"`
	ContentKind string   `json:"contentKind"`
	CreatorID   string   `json:"creatorId"`
	Text        string   `json:"text,omitempty"`
	MediaURLs   []string `json:"mediaUrls,omitempty"`
}

func (t ScanTask) Input() ScanInput {
	return ScanInput{
		Content:   models.ContentRef{Kind: models.ContentKind(t.ContentKind), ID: t.ContentID},
		CreatorID: t.CreatorID,
		Text:      t.Text,
		MediaURLs: t.MediaURLs,
	}
}

func errUnknownSignal(name models.SignalName) error {
	return apperr.Validation("unknown signal %q", name)
}

func errConfidence(name models.SignalName, v float64) error {
	return apperr.Validation("signal %s confidence %v out of range", name, v)
}

func errSeverity(name models.SignalName, sev models.Severity) error {
	return apperr.Validation("signal %s has unknown concern severity %q", name, sev)
}
