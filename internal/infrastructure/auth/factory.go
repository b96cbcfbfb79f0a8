package auth

import (
	"livesession/internal/core/ports"
	"livesession/pkg/config"
	"livesession/pkg/retry"

	"go.uber.org/zap"
)

// NewTokenSource picks the refresh endpoint when one is configured and the
// static token otherwise.
func NewTokenSource(cfg *config.Config, logger *zap.SugaredLogger) ports.TokenSource {
	inspector := NewInspector(cfg.Auth.ExpiryLeeway)
	if cfg.Auth.TokenURL == "" {
		return NewStaticTokenSource(cfg.Auth.Token, inspector, logger)
	}
	return NewHTTPTokenSource(HTTPConfig{
		URL:            cfg.Auth.TokenURL,
		RefreshToken:   cfg.Auth.RefreshToken,
		RequestTimeout: cfg.Auth.RequestTimeout,
		Retry:          retry.DefaultConfig(),
	}, inspector, logger)
}
