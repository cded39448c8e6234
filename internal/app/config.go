package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"securechannel/internal/failure"
	"securechannel/internal/protocol/ratchet"
)

// Config holds runtime options for building the app.
type Config struct {
	Home               string // state directory, e.g. $HOME/.securechannel
	Passphrase         string // seals persisted ratchet state
	LogLevel           string // logrus level name
	OneTimeKeyCount    int
	CacheWindow        uint32
	DhRotationInterval uint32
	SessionTimeout     time.Duration
}

// DefaultConfig returns the defaults used when a flag is not set.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Home:               filepath.Join(home, ".securechannel"),
		LogLevel:           logrus.InfoLevel.String(),
		OneTimeKeyCount:    1,
		CacheWindow:        ratchet.DefaultCacheWindow,
		DhRotationInterval: ratchet.DefaultRotationInterval,
		SessionTimeout:     ratchet.DefaultSessionTimeout,
	}
}

// Validate checks the fields the wiring depends on.
func (c Config) Validate() error {
	const op = "app.Config.Validate"
	switch {
	case c.Home == "":
		return failure.New(failure.ErrInvalidInput, op, "home directory is empty")
	case c.OneTimeKeyCount < 0:
		return failure.New(failure.ErrInvalidInput, op, "one-time key count is negative")
	case c.DhRotationInterval == 0:
		return failure.New(failure.ErrInvalidInput, op, "dh rotation interval must be positive")
	case c.SessionTimeout <= 0:
		return failure.New(failure.ErrInvalidInput, op, "session timeout must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return failure.Wrap(failure.ErrInvalidInput, op, err)
	}
	return nil
}

// RatchetOptions converts the ratchet tunables to session options.
func (c Config) RatchetOptions() []ratchet.Option {
	return []ratchet.Option{
		ratchet.WithCacheWindow(c.CacheWindow),
		ratchet.WithRotationInterval(c.DhRotationInterval),
		ratchet.WithSessionTimeout(c.SessionTimeout),
	}
}

// ConfigureLogging applies LogLevel to the standard logrus logger.
func (c Config) ConfigureLogging() error {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return failure.Wrap(failure.ErrInvalidInput, "app.ConfigureLogging", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}
