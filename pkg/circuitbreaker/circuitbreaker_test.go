package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTestError = errors.New("test error")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cb := New(cfg)
	cb.now = clock.Now
	return cb, clock
}

func fail() error    { return errTestError }
func succeed() error { return nil }

func TestCircuitBreaker_PassesErrorsThrough(t *testing.T) {
	cb, _ := newTestBreaker(DefaultConfig())

	if err := cb.Execute(succeed); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if err := cb.Execute(fail); !errors.Is(err, errTestError) {
		t.Errorf("Expected the function's error, got: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state closed, got: %v", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 3, SuccessThreshold: 1, OpenTimeout: time.Second})

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	_ = cb.Execute(succeed) // resets the streak
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != StateClosed {
		t.Fatalf("Expected state closed after a broken streak, got: %v", cb.State())
	}

	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("Expected state open, got: %v", cb.State())
	}

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen, got: %v", err)
	}
	if called {
		t.Error("Function should not run while the circuit is open")
	}
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	cfg := Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Second}

	t.Run("successful trials close the circuit", func(t *testing.T) {
		cb, clock := newTestBreaker(cfg)
		_ = cb.Execute(fail)
		clock.Advance(time.Second)

		if err := cb.Execute(succeed); err != nil {
			t.Fatalf("Expected trial call to run, got: %v", err)
		}
		if cb.State() != StateHalfOpen {
			t.Fatalf("Expected state half-open after one success, got: %v", cb.State())
		}
		if err := cb.Execute(succeed); err != nil {
			t.Fatalf("Expected second trial call to run, got: %v", err)
		}
		if cb.State() != StateClosed {
			t.Errorf("Expected state closed, got: %v", cb.State())
		}
	})

	t.Run("failed trial reopens the circuit", func(t *testing.T) {
		cb, clock := newTestBreaker(cfg)
		_ = cb.Execute(fail)
		clock.Advance(time.Second)

		_ = cb.Execute(fail)
		if cb.State() != StateOpen {
			t.Fatalf("Expected state open, got: %v", cb.State())
		}
		if err := cb.Execute(succeed); !errors.Is(err, ErrOpen) {
			t.Errorf("Expected ErrOpen until the timeout passes again, got: %v", err)
		}
	})
}

func TestCircuitBreaker_SingleTrialAtATime(t *testing.T) {
	cb, clock := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Second})
	_ = cb.Execute(fail)
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen while a trial call is in flight, got: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Trial call returned error: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state closed, got: %v", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	cb, clock := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Second})

	var transitions []string
	cb.OnStateChange(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	_ = cb.Execute(fail)
	clock.Advance(time.Second)
	_ = cb.Execute(succeed)

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("Expected transitions %v, got: %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_ConcurrentUse(t *testing.T) {
	cb := New(Config{FailureThreshold: 10, SuccessThreshold: 1, OpenTimeout: time.Hour})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (i+j)%2 == 0 {
					_ = cb.Execute(succeed)
				} else {
					_ = cb.Execute(fail)
				}
			}
		}(i)
	}
	wg.Wait()

	if s := cb.State(); s != StateClosed && s != StateOpen {
		t.Errorf("Unexpected state %v", s)
	}
}
