package app

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/store"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, 1, c.OneTimeKeyCount)
	assert.Equal(t, uint32(1000), c.CacheWindow)
	assert.Equal(t, uint32(10), c.DhRotationInterval)
	assert.Equal(t, 24*time.Hour, c.SessionTimeout)
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(c *Config){
		"empty home":    func(c *Config) { c.Home = "" },
		"negative opks": func(c *Config) { c.OneTimeKeyCount = -1 },
		"zero interval": func(c *Config) { c.DhRotationInterval = 0 },
		"zero timeout":  func(c *Config) { c.SessionTimeout = 0 },
		"bad log level": func(c *Config) { c.LogLevel = "chatty" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), failure.ErrInvalidInput)
		})
	}
}

func TestConfigureLogging(t *testing.T) {
	prev := logrus.GetLevel()
	defer logrus.SetLevel(prev)

	c := DefaultConfig()
	c.LogLevel = "debug"
	require.NoError(t, c.ConfigureLogging())
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestNewWire(t *testing.T) {
	c := DefaultConfig()
	c.Home = t.TempDir()
	c.Passphrase = "pass"
	c.OneTimeKeyCount = 3

	w, err := NewWire(c, store.WithScryptParams(store.ScryptParams{N: 1 << 10, R: 8, P: 1}))
	require.NoError(t, err)
	defer w.Close()

	assert.Len(t, w.Identity.OneTimePreKeyIDs(), 3)
	_, err = w.Sessions.Begin(1, domain.ExchangeEphemeralConnect)
	require.NoError(t, err)
	assert.Len(t, w.Sessions.ConnectIDs(), 1)
}
