package app

import (
	"strings"
	"time"

	"github.com/mx-space/sentinel/internal/config"
	jwtpkg "github.com/mx-space/sentinel/internal/pkg/jwt"
	"go.uber.org/zap"
)

func applyRuntimeSettings(cfg *config.AppConfig, logger *zap.Logger) {
	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		jwtpkg.SetSecret(secret)
		return
	}
	if cfg.IsDev() {
		logger.Warn("jwt_secret is empty, using built-in development secret")
		return
	}
	logger.Error("jwt_secret is empty in production, tokens are signed with the built-in secret")
}

func humanizeDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Truncate(time.Second).String()
	}
	if d < time.Hour {
		return d.Truncate(time.Minute).String()
	}
	if d < 24*time.Hour {
		return d.Truncate(time.Hour).String()
	}
	return d.Truncate(24 * time.Hour).String()
}
