package ratchet

import (
	"time"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
)

const (
	// DefaultRotationInterval is the number of sent messages between DH ratchets.
	DefaultRotationInterval uint32 = 10

	// DefaultSessionTimeout is the absolute lifetime of a session.
	DefaultSessionTimeout = 24 * time.Hour
)

type config struct {
	cacheWindow      uint32
	rotationInterval uint32
	sessionTimeout   time.Duration
	clock            domain.TimeProvider
}

func defaultConfig() config {
	return config{
		cacheWindow:      DefaultCacheWindow,
		rotationInterval: DefaultRotationInterval,
		sessionTimeout:   DefaultSessionTimeout,
		clock:            domain.SystemTime{},
	}
}

// Option configures a session.
type Option func(*config) error

// WithCacheWindow sets how many derived keys each chain step keeps.
// Zero keeps every key.
func WithCacheWindow(n uint32) Option {
	return func(c *config) error {
		c.cacheWindow = n
		return nil
	}
}

// WithRotationInterval sets how many sent messages separate two sender DH
// ratchets.
func WithRotationInterval(n uint32) Option {
	return func(c *config) error {
		if n == 0 {
			return failure.New(failure.ErrInvalidInput, "ratchet.WithRotationInterval", "interval must be positive")
		}
		c.rotationInterval = n
		return nil
	}
}

// WithSessionTimeout sets the absolute session lifetime.
func WithSessionTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return failure.New(failure.ErrInvalidInput, "ratchet.WithSessionTimeout", "timeout must be positive")
		}
		c.sessionTimeout = d
		return nil
	}
}

// WithTimeProvider replaces the wall clock.
func WithTimeProvider(tp domain.TimeProvider) Option {
	return func(c *config) error {
		if tp == nil {
			return failure.New(failure.ErrInvalidInput, "ratchet.WithTimeProvider", "nil time provider")
		}
		c.clock = tp
		return nil
	}
}

func applyOptions(opts []Option) (config, error) {
	c := defaultConfig()
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return c, err
		}
	}
	return c, nil
}

// TimeProviderOf returns the clock that opts select, so callers stamping
// messages use the same time source as session expiry.
func TimeProviderOf(opts ...Option) domain.TimeProvider {
	c, err := applyOptions(opts)
	if err != nil {
		return domain.SystemTime{}
	}
	return c.clock
}
