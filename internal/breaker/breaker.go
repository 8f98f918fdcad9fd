package breaker

import (
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Settings holds the knobs shared by every outbound integration.
type Settings struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

func DefaultSettings() Settings {
	return Settings{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// New returns a breaker that opens after a run of consecutive failures and
// logs every state change.
func New[T any](name string, s Settings) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[BREAKER] [WARN] %s: %s -> %s", name, from, to)
		},
	})
}

// IsOpen reports whether err was returned because the breaker rejected the
// call without running it.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
