// internal/config/config.go
//
// Process configuration.
//
// Responsibilities:
//   - Read settings from the environment (main loads .env first via godotenv).
//   - Apply defaults for local development.
//   - Validate ranges with go-playground/validator before anything starts.

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/robalobadob/concentration/internal/game"
)

// Config holds all server settings.
type Config struct {
	Port              int    `validate:"gt=0,lt=65536"`
	LogLevel          string `validate:"oneof=trace debug info warn error fatal"`
	DBPath            string `validate:"required"`
	ClientOrigin      string `validate:"required,url"`
	JWTSecret         string `validate:"required,min=16"`
	SessionTTLMinutes int    `validate:"gt=0"`
	DailySalt         string `validate:"required"`
	AdminPasswordHash string `validate:"omitempty,startswith=$2"` // bcrypt
	Pairs             int    `validate:"gte=2"`
	SymbolsFile       string

	MatchDelayMS          int `validate:"gt=0"`
	MismatchFlagDelayMS   int `validate:"gt=0"`
	MismatchRevertDelayMS int `validate:"gt=0"`
	VictoryDelayMS        int `validate:"gt=0"`
	TickMS                int `validate:"gt=0"`
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	var c Config
	var err error
	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"PORT", 5175, &c.Port},
		{"SESSION_TTL_MINUTES", 60, &c.SessionTTLMinutes},
		{"PAIRS", 8, &c.Pairs},
		{"MATCH_DELAY_MS", 600, &c.MatchDelayMS},
		{"MISMATCH_FLAG_DELAY_MS", 1000, &c.MismatchFlagDelayMS},
		{"MISMATCH_REVERT_DELAY_MS", 500, &c.MismatchRevertDelayMS},
		{"VICTORY_DELAY_MS", 800, &c.VictoryDelayMS},
		{"TICK_MS", 1000, &c.TickMS},
	}
	for _, f := range ints {
		if *f.dst, err = envInt(f.key, f.def); err != nil {
			return Config{}, err
		}
	}

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.DBPath = getEnv("DB_PATH", "./data/concentration.db")
	c.ClientOrigin = getEnv("CLIENT_ORIGIN", "http://localhost:5173")
	c.JWTSecret = getEnv("JWT_SECRET", "dev_secret_change_me")
	c.DailySalt = getEnv("DAILY_SALT", "local_dev_salt")
	c.AdminPasswordHash = os.Getenv("ADMIN_PASSWORD_HASH")
	c.SymbolsFile = os.Getenv("SYMBOLS_FILE")

	if err := validator.New().Struct(c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// Delays converts the millisecond settings for the engine.
func (c Config) Delays() game.Delays {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return game.Delays{
		Match:          ms(c.MatchDelayMS),
		MismatchFlag:   ms(c.MismatchFlagDelayMS),
		MismatchRevert: ms(c.MismatchRevertDelayMS),
		Victory:        ms(c.VictoryDelayMS),
		Tick:           ms(c.TickMS),
	}
}

// SessionTTL is how long an untouched session survives.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", k, err)
	}
	return n, nil
}
