package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "LOG_LEVEL", "PAIRS", "JWT_SECRET", "ADMIN_PASSWORD_HASH", "TICK_MS"} {
		t.Setenv(k, "")
	}

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5175, c.Port)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 8, c.Pairs)
	assert.Equal(t, time.Hour, c.SessionTTL())

	d := c.Delays()
	assert.Equal(t, 600*time.Millisecond, d.Match)
	assert.Equal(t, time.Second, d.MismatchFlag)
	assert.Equal(t, 500*time.Millisecond, d.MismatchRevert)
	assert.Equal(t, 800*time.Millisecond, d.Victory)
	assert.Equal(t, time.Second, d.Tick)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("PAIRS", "4")
	t.Setenv("MATCH_DELAY_MS", "50")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SYMBOLS_FILE", "/etc/concentration/faces.txt")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/etc/concentration/faces.txt", c.SymbolsFile)
	assert.Equal(t, 9000, c.Port)
	assert.Equal(t, 4, c.Pairs)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 50*time.Millisecond, c.Delays().Match)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"not a number":   {"PORT", "abc"},
		"port range":     {"PORT", "70000"},
		"single pair":    {"PAIRS", "1"},
		"zero delay":     {"VICTORY_DELAY_MS", "0"},
		"bad level":      {"LOG_LEVEL", "loud"},
		"short secret":   {"JWT_SECRET", "short"},
		"not bcrypt":     {"ADMIN_PASSWORD_HASH", "plaintext"},
		"negative ttl":   {"SESSION_TTL_MINUTES", "-5"},
		"origin not url": {"CLIENT_ORIGIN", "nope"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
