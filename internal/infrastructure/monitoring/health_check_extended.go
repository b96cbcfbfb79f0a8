package monitoring

import (
	"context"
	"fmt"
	"time"

	"livesession/internal/core/domain"
)

// Pinger is satisfied by redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client Pinger, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddSessionCheck reports unhealthy once the client reached Closed, which
// needs operator action (usually new credentials).
func (h *HealthChecker) AddSessionCheck(state func() domain.ConnectionState, interval time.Duration) {
	h.AddCheck("session", func(ctx context.Context) (bool, error) {
		if s := state(); s == domain.StateClosed {
			return false, fmt.Errorf("session client is %s", s)
		}
		return true, nil
	}, interval, time.Second)
}

// IsReady reports whether the client is Live and every check passes.
func (h *HealthChecker) IsReady(ctx context.Context, state func() domain.ConnectionState) bool {
	if state() != domain.StateLive {
		return false
	}
	return h.CheckAll(ctx).Status == StatusHealthy
}
