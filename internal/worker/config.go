package worker

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/SyedDaiam9101/batch-worker/internal/frame"
)

// Transport is the socket kind used to reach the front-end.
type Transport string

const (
	Unix Transport = "unix"
	TCP  Transport = "tcp"
)

// ParseTransport accepts "unix" or "tcp", case-insensitively.
func ParseTransport(raw string) (Transport, error) {
	switch t := Transport(strings.ToLower(strings.TrimSpace(raw))); t {
	case Unix, TCP:
		return t, nil
	case "":
		return Unix, nil
	default:
		return "", fmt.Errorf("worker: unknown transport %q", raw)
	}
}

// Config defines connection behavior. Zero timeouts block forever, matching
// a front-end that may legitimately stay idle between batches.
type Config struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Limits       frame.Limits
	Backoff      BackoffConfig
	Logger       zerolog.Logger
	// OnStateChange is called synchronously on every transition.
	OnStateChange func(State)
}

// DefaultConfig returns the defaults used by cmd/worker.
func DefaultConfig() Config {
	return Config{
		DialTimeout: 5 * time.Second,
		Limits:      frame.DefaultLimits(),
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		Logger: zerolog.Nop(),
	}
}
