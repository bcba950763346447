package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/scrumdog/cheddar-logic/internal/sports"
)

type Config struct {
	// Scheduler
	Timezone     string // IANA name for window math (fixed windows, hourly bucket)
	TickPeriod   time.Duration
	DryRun       bool
	FixedCatchup bool

	// Job enablement
	EnableOddsPull bool
	EnabledSports  map[sports.Sport]bool

	// Odds provider
	OddsAPIKey     string
	OddsAPIBaseURL string
	OddsHorizonHrs int // upcoming-game horizon for the odds pull

	// Stats provider (team metrics enrichment)
	StatsBaseURL string

	// Settlement
	SettleMinHoursAfterStart int
	SettleLookbackHours      int

	// Model
	ModelVersion string

	// Store
	DatabasePath string

	// Read API
	APIAddr string

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	enabled := make(map[sports.Sport]bool, len(sports.All))
	for _, s := range sports.All {
		key := fmt.Sprintf("ENABLE_%s_MODEL", strings.ToUpper(string(s)))
		enabled[s] = envBool(key, false)
	}

	return &Config{
		Timezone:     envStr("TZ", "America/New_York"),
		TickPeriod:   time.Duration(envInt("TICK_MS", 60000)) * time.Millisecond,
		DryRun:       envBool("DRY_RUN", false),
		FixedCatchup: envBool("FIXED_CATCHUP", true),

		EnableOddsPull: envBool("ENABLE_ODDS_PULL", true),
		EnabledSports:  enabled,

		OddsAPIKey:     envStr("ODDS_API_KEY", ""),
		OddsAPIBaseURL: envStr("ODDS_API_BASE_URL", "https://api.the-odds-api.com"),
		OddsHorizonHrs: envInt("ODDS_HORIZON_HOURS", 36),

		StatsBaseURL: envStr("STATS_BASE_URL", "https://api.balldontlie.io"),

		SettleMinHoursAfterStart: envInt("SETTLE_MIN_HOURS_AFTER_START", 3),
		SettleLookbackHours:      envInt("SETTLE_LOOKBACK_HOURS", 72),

		ModelVersion: envStr("MODEL_VERSION", "v1"),

		DatabasePath: envStr("DATABASE_PATH", "data/pipeline.db"),

		APIAddr: envStr("API_ADDR", ":8090"),

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

// Location resolves the configured timezone, falling back to UTC when the
// name does not load.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SportEnabled reports whether the model job for s is switched on.
func (c *Config) SportEnabled(s sports.Sport) bool {
	return c.EnabledSports[s]
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
