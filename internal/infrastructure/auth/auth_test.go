package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"livesession/internal/core/domain"
	"livesession/pkg/retry"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func signToken(t *testing.T, userID string, ttl time.Duration) string {
	t.Helper()
	claims := &Claims{
		UserID:   userID,
		Username: "user-" + userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestInspector_Check(t *testing.T) {
	inspector := NewInspector(30 * time.Second)

	claims, err := inspector.Check(signToken(t, "u1", time.Hour))
	require.NoError(t, err)
	require.NotNil(t, claims)
	assert.Equal(t, "u1", claims.UserID)

	_, err = inspector.Check(signToken(t, "u1", -time.Minute))
	assert.ErrorIs(t, err, domain.ErrTokenExpired)

	_, err = inspector.Check(signToken(t, "u1", 10*time.Second))
	assert.ErrorIs(t, err, domain.ErrTokenExpired, "tokens inside the leeway count as expired")

	claims, err = inspector.Check("opaque-session-token")
	assert.NoError(t, err)
	assert.Nil(t, claims)
}

func TestInspector_ExpiresAt(t *testing.T) {
	inspector := NewInspector(0)

	assert.True(t, inspector.ExpiresAt("opaque").IsZero())
	exp := inspector.ExpiresAt(signToken(t, "u1", time.Hour))
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 2*time.Second)
}

func TestStaticTokenSource(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	inspector := NewInspector(0)

	token, err := NewStaticTokenSource("", inspector, logger).Token(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, token)

	valid := signToken(t, "u1", time.Hour)
	token, err = NewStaticTokenSource(valid, inspector, logger).Token(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, valid, token)

	token, err = NewStaticTokenSource(signToken(t, "u1", -time.Hour), inspector, logger).Token(context.Background())
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
	assert.Empty(t, token)
}

func testRetry() retry.Config {
	return retry.Config{
		Enabled:      true,
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestHTTPTokenSource_FetchesAndCaches(t *testing.T) {
	access := signToken(t, "u1", time.Hour)
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var req refreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "refresh-1", req.RefreshToken)
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(map[string]string{"accessToken": access})
	}))
	defer srv.Close()

	src := NewHTTPTokenSource(HTTPConfig{
		URL:            srv.URL,
		RefreshToken:   "refresh-1",
		RequestTimeout: time.Second,
		Retry:          testRetry(),
	}, NewInspector(time.Second), zaptest.NewLogger(t).Sugar())

	for i := 0; i < 3; i++ {
		token, err := src.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, access, token)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPTokenSource_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "opaque-token"})
	}))
	defer srv.Close()

	src := NewHTTPTokenSource(HTTPConfig{
		URL:            srv.URL,
		RefreshToken:   "refresh-1",
		RequestTimeout: time.Second,
		Retry:          testRetry(),
	}, NewInspector(0), zaptest.NewLogger(t).Sugar())

	token, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", token)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPTokenSource_RejectedRefreshIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewHTTPTokenSource(HTTPConfig{
		URL:            srv.URL,
		RefreshToken:   "revoked",
		RequestTimeout: time.Second,
		Retry:          testRetry(),
	}, NewInspector(0), zaptest.NewLogger(t).Sugar())

	token, err := src.Token(context.Background())
	assert.Error(t, err)
	assert.ErrorIs(t, err, errTokenRejected)
	assert.Empty(t, token)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPTokenSource_RefreshesExpiredCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ttl := time.Hour
		if hits.Add(1) == 1 {
			ttl = 2 * time.Second
		}
		json.NewEncoder(w).Encode(map[string]string{"token": signToken(t, "u1", ttl)})
	}))
	defer srv.Close()

	inspector := NewInspector(0)
	src := NewHTTPTokenSource(HTTPConfig{
		URL:            srv.URL,
		RefreshToken:   "refresh-1",
		RequestTimeout: time.Second,
		Retry:          testRetry(),
	}, inspector, zaptest.NewLogger(t).Sugar())

	_, err := src.Token(context.Background())
	require.NoError(t, err)

	inspector.now = func() time.Time { return time.Now().Add(time.Minute) }
	_, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}
