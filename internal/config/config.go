// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/aristath/qportfolio/internal/modules/optimization"
	"github.com/aristath/qportfolio/internal/modules/quantum"
)

// Config holds application configuration
type Config struct {
	LogLevel       string
	StatusSchedule string // cron spec for the engine status job
	Port           int
	DevMode        bool

	PoolSize               int
	ChunkAllocator         string
	ChunkTimeout           time.Duration
	DecompositionThreshold int
	MaxIterations          int
	RiskFreeRate           float64

	QuantumEnabled  bool
	MaxQubits       int
	QuantumSeed     int64
	CorrelationSeed int64
	RiskShots       int
	QAOAShots       int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		StatusSchedule:         getEnv("STATUS_SCHEDULE", "@every 1m"),
		Port:                   getEnvAsInt("GO_PORT", 8001),
		DevMode:                getEnvAsBool("DEV_MODE", false),
		PoolSize:               getEnvAsInt("WORKER_POOL_SIZE", 4),
		ChunkAllocator:         getEnv("CHUNK_ALLOCATOR", optimization.AllocatorRiskTolerance),
		ChunkTimeout:           getEnvAsDuration("CHUNK_TIMEOUT", optimization.DefaultChunkTimeout),
		DecompositionThreshold: getEnvAsInt("DECOMPOSITION_THRESHOLD", optimization.DefaultDecompositionThreshold),
		MaxIterations:          getEnvAsInt("CLASSICAL_MAX_ITERATIONS", optimization.DefaultMaxIterations),
		RiskFreeRate:           getEnvAsFloat("RISK_FREE_RATE", 0.02),
		QuantumEnabled:         getEnvAsBool("QUANTUM_ENABLED", true),
		MaxQubits:              getEnvAsInt("MAX_QUBITS", quantum.HardQubitLimit),
		QuantumSeed:            int64(getEnvAsInt("QUANTUM_SEED", quantum.DefaultSeed)),
		CorrelationSeed:        int64(getEnvAsInt("CORRELATION_SEED", 42)),
		RiskShots:              getEnvAsInt("RISK_SHOTS", 1000),
		QAOAShots:              getEnvAsInt("QAOA_SHOTS", quantum.DefaultShots),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT must be within 1..65535, got %d", c.Port)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("WORKER_POOL_SIZE must be positive, got %d", c.PoolSize)
	}
	switch c.ChunkAllocator {
	case optimization.AllocatorRiskTolerance, optimization.AllocatorClassical, optimization.AllocatorHRP:
	default:
		return fmt.Errorf("unknown CHUNK_ALLOCATOR %q", c.ChunkAllocator)
	}
	if c.ChunkTimeout <= 0 {
		return fmt.Errorf("CHUNK_TIMEOUT must be positive, got %s", c.ChunkTimeout)
	}
	if c.DecompositionThreshold <= 0 {
		return fmt.Errorf("DECOMPOSITION_THRESHOLD must be positive, got %d", c.DecompositionThreshold)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("CLASSICAL_MAX_ITERATIONS must be positive, got %d", c.MaxIterations)
	}
	if c.MaxQubits <= 0 || c.MaxQubits > quantum.HardQubitLimit {
		return fmt.Errorf("MAX_QUBITS must be within 1..%d, got %d", quantum.HardQubitLimit, c.MaxQubits)
	}
	if c.RiskShots <= 0 || c.QAOAShots <= 0 {
		return fmt.Errorf("shot counts must be positive")
	}
	if _, err := cron.ParseStandard(c.StatusSchedule); err != nil {
		return fmt.Errorf("invalid STATUS_SCHEDULE %q: %w", c.StatusSchedule, err)
	}
	return nil
}

// ServiceConfig translates the environment into engine settings
func (c *Config) ServiceConfig() optimization.ServiceConfig {
	sc := optimization.DefaultServiceConfig()
	sc.PoolSize = c.PoolSize
	sc.ChunkTimeout = c.ChunkTimeout
	sc.ChunkAllocator = c.ChunkAllocator
	sc.DecompositionThreshold = c.DecompositionThreshold
	sc.MaxIterations = c.MaxIterations
	sc.RiskFreeRate = c.RiskFreeRate
	sc.RiskShots = c.RiskShots
	sc.CorrelationSeed = c.CorrelationSeed
	sc.QuantumEnabled = c.QuantumEnabled
	sc.Quantum.MaxQubits = c.MaxQubits
	sc.Quantum.Seed = c.QuantumSeed
	sc.Quantum.Shots = c.QAOAShots
	return sc
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
