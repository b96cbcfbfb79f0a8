package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"livesession/internal/core/domain"
	"livesession/pkg/retry"

	"go.uber.org/zap"
)

var errTokenRejected = errors.New("token endpoint rejected the refresh token")

type HTTPConfig struct {
	URL            string
	RefreshToken   string
	RequestTimeout time.Duration
	Retry          retry.Config
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken      string `json:"accessToken"`
	AccessTokenSnake string `json:"access_token"`
	Token            string `json:"token"`
}

func (r refreshResponse) token() string {
	switch {
	case r.AccessToken != "":
		return r.AccessToken
	case r.AccessTokenSnake != "":
		return r.AccessTokenSnake
	default:
		return r.Token
	}
}

// HTTPTokenSource exchanges a refresh token for an access token and caches
// it until it is about to expire.
type HTTPTokenSource struct {
	cfg       HTTPConfig
	client    *http.Client
	inspector *Inspector
	logger    *zap.SugaredLogger

	mu     sync.Mutex
	cached string
}

func NewHTTPTokenSource(cfg HTTPConfig, inspector *Inspector, logger *zap.SugaredLogger) *HTTPTokenSource {
	cfg.Retry.NonRetryableErrors = append(cfg.Retry.NonRetryableErrors, errTokenRejected)
	return &HTTPTokenSource{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		inspector: inspector,
		logger:    logger,
	}
}

func (s *HTTPTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" {
		if _, err := s.inspector.Check(s.cached); err == nil {
			return s.cached, nil
		}
		s.cached = ""
	}

	token, err := retry.RetryWithResult(ctx, s.cfg.Retry, func() (string, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}
	if _, err := s.inspector.Check(token); err != nil {
		return "", err
	}

	s.cached = token
	s.logger.Infow("access token refreshed", "expires_at", s.inspector.ExpiresAt(token))
	return token, nil
}

func (s *HTTPTokenSource) fetch(ctx context.Context) (string, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: s.cfg.RefreshToken})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: %s", errTokenRejected, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var out refreshResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return "", fmt.Errorf("invalid token response: %w", err)
	}
	if out.token() == "" {
		return "", fmt.Errorf("token response: %w", domain.ErrTokenUnavailable)
	}
	return out.token(), nil
}
