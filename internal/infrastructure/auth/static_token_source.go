package auth

import (
	"context"
	"fmt"

	"livesession/pkg/utils"

	"go.uber.org/zap"
)

// StaticTokenSource serves one token from configuration.
type StaticTokenSource struct {
	token     string
	inspector *Inspector
	logger    *zap.SugaredLogger
}

func NewStaticTokenSource(token string, inspector *Inspector, logger *zap.SugaredLogger) *StaticTokenSource {
	return &StaticTokenSource{token: token, inspector: inspector, logger: logger}
}

// Token returns "" when no token is configured or the token has expired.
func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	if s.token == "" {
		return "", nil
	}
	claims, err := s.inspector.Check(s.token)
	if err != nil {
		return "", fmt.Errorf("static token unusable: %w", err)
	}
	if claims != nil {
		s.logger.Debugw("using static token",
			"subject", subject(claims),
			"token", utils.MaskSensitive(s.token, 6),
		)
	}
	return s.token, nil
}
