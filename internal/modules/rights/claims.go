package rights

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
)

// buildClaim validates in and returns an active claim. Monetize claims filed
// without a split give holderPct percent to the rights holder.
func buildClaim(in ClaimInput, holderPct int, now time.Time) (models.Claim, error) {
	holder := in.RightsHolder
	holder.Name = strings.TrimSpace(holder.Name)
	holder.ContactEmail = strings.TrimSpace(holder.ContactEmail)
	holder.OrganizationID = strings.TrimSpace(holder.OrganizationID)
	music := in.ClaimedMusic
	music.Title = strings.TrimSpace(music.Title)

	if holder.Name == "" {
		return models.Claim{}, apperr.Validation("rights holder name is required")
	}
	if music.Title == "" {
		return models.Claim{}, apperr.Validation("claimed music title is required")
	}
	if !in.Action.Valid() {
		return models.Claim{}, apperr.Validation("unknown claim action %q", in.Action)
	}
	claimType := in.ClaimType
	switch claimType {
	case "":
		claimType = models.ClaimTypeAudio
	case models.ClaimTypeAudio, models.ClaimTypeComposition, models.ClaimTypeBoth:
	default:
		return models.Claim{}, apperr.Validation("unknown claim type %q", claimType)
	}

	var share *models.RevenueShare
	if in.Action == models.ClaimMonetize {
		s := models.RevenueShare{RightsHolderPercentage: holderPct, CreatorPercentage: 100 - holderPct}
		if in.RevenueShare != nil {
			s = *in.RevenueShare
		}
		if err := validateShare(s); err != nil {
			return models.Claim{}, err
		}
		share = &s
	}

	return models.Claim{
		ClaimID:      uuid.NewString(),
		RightsHolder: holder,
		ClaimedMusic: music,
		ClaimType:    claimType,
		Action:       in.Action,
		RevenueShare: share,
		Territories:  normalizeTerritories(in.Territories),
		Status:       models.ClaimActive,
		Automated:    in.Automated,
		ClaimedAt:    now,
	}, nil
}

func validateShare(s models.RevenueShare) error {
	if s.RightsHolderPercentage < 0 || s.RightsHolderPercentage > 100 ||
		s.CreatorPercentage < 0 || s.CreatorPercentage > 100 ||
		s.RightsHolderPercentage+s.CreatorPercentage != 100 {
		return errShare(s)
	}
	return nil
}

// normalizeTerritories upper-cases ISO codes, drops blanks and duplicates.
func normalizeTerritories(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func validateScan(in ScanInput) error {
	if strings.TrimSpace(in.Content.ID) == "" {
		return apperr.Validation("content id is required")
	}
	if !in.Content.Kind.Valid() {
		return apperr.Validation("unknown content kind %q", in.Content.Kind)
	}
	if strings.TrimSpace(in.CreatorID) == "" {
		return apperr.Validation("creator id is required")
	}
	for i, m := range in.Matches {
		if strings.TrimSpace(m.SoundRef) == "" {
			return apperr.Validation("match %d has no soundRef", i)
		}
		if math.IsNaN(m.MatchConfidence) || m.MatchConfidence < 0 || m.MatchConfidence > 1 {
			return apperr.Validation("match %d confidence %v out of range [0,1]", i, m.MatchConfidence)
		}
		if m.StartTime < 0 || m.Duration < 0 {
			return apperr.Validation("match %d has a negative offset or duration", i)
		}
	}
	return nil
}

// holderID identifies a rights holder for payouts.
func holderID(h models.RightsHolder) string {
	if h.OrganizationID != "" {
		return h.OrganizationID
	}
	return h.Name
}
