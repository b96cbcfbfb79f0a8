package signal

import (
	"time"

	"livesession/pkg/retry"
)

// reconnectPolicy owns the single pending reconnect timer and the backoff
// sequence. It is used from the session loop only.
type reconnectPolicy struct {
	enabled bool
	backoff *retry.Backoff
	timer   *time.Timer
}

func newReconnectPolicy(cfg retry.Config) *reconnectPolicy {
	return &reconnectPolicy{
		enabled: cfg.Enabled,
		backoff: retry.NewBackoff(cfg),
	}
}

// schedule arms the timer for the next attempt. It reports false when
// reconnection is disabled or max attempts are used up.
func (p *reconnectPolicy) schedule() (time.Duration, bool) {
	if !p.enabled {
		return 0, false
	}
	delay, ok := p.backoff.Next()
	if !ok {
		return 0, false
	}
	p.cancel()
	p.timer = time.NewTimer(delay)
	return delay, true
}

func (p *reconnectPolicy) C() <-chan time.Time {
	if p.timer == nil {
		return nil
	}
	return p.timer.C
}

// fired must be called after receiving from C.
func (p *reconnectPolicy) fired() {
	p.timer = nil
}

func (p *reconnectPolicy) cancel() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// reset is called on reaching Live and on a fresh caller Connect.
func (p *reconnectPolicy) reset() {
	p.backoff.Reset()
}

func (p *reconnectPolicy) attempts() int {
	return p.backoff.Attempts()
}
