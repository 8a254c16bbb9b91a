package game

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config carries the tunable parameters of the round engine. Odds and pacing
// are deployment choices, not design constraints.
type Config struct {
	TickInterval    time.Duration // broadcast cadence while Running
	BettingWindow   time.Duration // length of the Waiting state
	BetCutoff       time.Duration // tail of the window during which bets are refused
	Cooldown        time.Duration // pause between Settled and the next Waiting
	GrowthRate      float64       // clock exponent, per second
	HouseEdge       float64       // probability of an instant 1.00x crash
	MinBetAmount    float64
	MaxBetAmount    float64
	MaxSlotsPerUser int // independent concurrent bet slots per account
}

// DefaultConfig returns the parameters used when no environment overrides
// are present.
func DefaultConfig() Config {
	return Config{
		TickInterval:    100 * time.Millisecond,
		BettingWindow:   5 * time.Second,
		BetCutoff:       500 * time.Millisecond,
		Cooldown:        3 * time.Second,
		GrowthRate:      0.08,
		HouseEdge:       0.01,
		MinBetAmount:    1.0,
		MaxBetAmount:    10000.0,
		MaxSlotsPerUser: 2,
	}
}

// ConfigFromEnv layers GAME_* environment variables over the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = getEnvAsDuration("GAME_TICK_INTERVAL", cfg.TickInterval)
	cfg.BettingWindow = getEnvAsDuration("GAME_BETTING_WINDOW", cfg.BettingWindow)
	cfg.BetCutoff = getEnvAsDuration("GAME_BET_CUTOFF", cfg.BetCutoff)
	cfg.Cooldown = getEnvAsDuration("GAME_COOLDOWN", cfg.Cooldown)
	cfg.GrowthRate = getEnvAsFloat("GAME_GROWTH_RATE", cfg.GrowthRate)
	cfg.HouseEdge = getEnvAsFloat("GAME_HOUSE_EDGE", cfg.HouseEdge)
	cfg.MinBetAmount = getEnvAsFloat("GAME_MIN_BET", cfg.MinBetAmount)
	cfg.MaxBetAmount = getEnvAsFloat("GAME_MAX_BET", cfg.MaxBetAmount)
	cfg.MaxSlotsPerUser = getEnvAsInt("GAME_MAX_SLOTS", cfg.MaxSlotsPerUser)
	return cfg
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
