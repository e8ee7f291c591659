package rights

import (
	"context"
	"strings"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"go.uber.org/zap"
)

// UpsertSoundRight creates or replaces a catalog entry. Entries drive the
// automatic claims filed by RecordScan.
func (s *Service) UpsertSoundRight(ctx context.Context, sr *models.SoundRight) error {
	sr.SoundRef = strings.TrimSpace(sr.SoundRef)
	sr.Title = strings.TrimSpace(sr.Title)
	sr.Holder.Name = strings.TrimSpace(sr.Holder.Name)
	switch {
	case sr.SoundRef == "":
		return apperr.Validation("soundRef is required")
	case sr.Title == "":
		return apperr.Validation("title is required")
	case !sr.Policy.Valid():
		return apperr.Validation("unknown claim policy %q", sr.Policy)
	case !sr.RoyaltyFree && sr.Holder.Name == "":
		return apperr.Validation("rights holder name is required")
	}
	if sr.Policy == models.ClaimMonetize && sr.RevenueShare != nil {
		if err := validateShare(*sr.RevenueShare); err != nil {
			return err
		}
	}
	if sr.Policy != models.ClaimMonetize {
		sr.RevenueShare = nil
	}
	sr.Territories = normalizeTerritories(sr.Territories)
	if err := s.store.UpsertSoundRight(ctx, sr); err != nil {
		return err
	}
	s.logger.Info("catalog entry saved", zap.String("sound", sr.SoundRef), zap.String("policy", string(sr.Policy)))
	return nil
}

func (s *Service) SoundRight(ctx context.Context, soundRef string) (*models.SoundRight, error) {
	return s.store.GetSoundRight(ctx, strings.TrimSpace(soundRef))
}
