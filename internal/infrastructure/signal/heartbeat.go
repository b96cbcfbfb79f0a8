package signal

import (
	"sync/atomic"
	"time"
)

// heartbeat tracks liveness of one transport. The ticker belongs to the
// session loop; touch may be called from the transport's reader goroutine.
type heartbeat struct {
	interval  time.Duration
	maxMissed int
	now       func() time.Time

	ticker   *time.Ticker
	lastSeen atomic.Int64
}

func newHeartbeat(interval time.Duration, maxMissed int, now func() time.Time) *heartbeat {
	h := &heartbeat{interval: interval, maxMissed: maxMissed, now: now}
	h.touch()
	return h
}

func (h *heartbeat) start() {
	if h.interval <= 0 || h.ticker != nil {
		return
	}
	h.touch()
	h.ticker = time.NewTicker(h.interval)
}

func (h *heartbeat) stop() {
	if h == nil || h.ticker == nil {
		return
	}
	h.ticker.Stop()
	h.ticker = nil
}

// C is nil while the heartbeat is stopped, which disables its select case.
func (h *heartbeat) C() <-chan time.Time {
	if h == nil || h.ticker == nil {
		return nil
	}
	return h.ticker.C
}

// touch records proof of life: a pong or any inbound frame.
func (h *heartbeat) touch() {
	h.lastSeen.Store(h.now().UnixNano())
}

// expired reports whether maxMissed intervals passed without proof of life.
func (h *heartbeat) expired() bool {
	if h.maxMissed <= 0 {
		return false
	}
	silence := h.now().Sub(time.Unix(0, h.lastSeen.Load()))
	return silence > time.Duration(h.maxMissed)*h.interval
}
