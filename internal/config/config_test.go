package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"GO_PORT", "WORKER_POOL_SIZE", "CHUNK_TIMEOUT", "QUANTUM_ENABLED", "MAX_QUBITS", "STATUS_SCHEDULE", "CHUNK_ALLOCATOR"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, 30*time.Second, cfg.ChunkTimeout)
	assert.Equal(t, 8, cfg.DecompositionThreshold)
	assert.Equal(t, 8, cfg.MaxQubits)
	assert.True(t, cfg.QuantumEnabled)
	assert.Equal(t, "@every 1m", cfg.StatusSchedule)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GO_PORT", "9100")
	t.Setenv("WORKER_POOL_SIZE", "2")
	t.Setenv("CHUNK_TIMEOUT", "5s")
	t.Setenv("QUANTUM_ENABLED", "false")
	t.Setenv("RISK_FREE_RATE", "0.035")
	t.Setenv("QUANTUM_SEED", "7")
	t.Setenv("CHUNK_ALLOCATOR", "hrp")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 2, cfg.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.ChunkTimeout)
	assert.False(t, cfg.QuantumEnabled)
	assert.Equal(t, 0.035, cfg.RiskFreeRate)

	sc := cfg.ServiceConfig()
	assert.Equal(t, 2, sc.PoolSize)
	assert.Equal(t, int64(7), sc.Quantum.Seed)
	assert.Equal(t, "hrp", sc.ChunkAllocator)
	assert.False(t, sc.QuantumEnabled)
}

func TestLoad_UnparsableFallsBack(t *testing.T) {
	t.Setenv("WORKER_POOL_SIZE", "many")
	t.Setenv("CHUNK_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, 30*time.Second, cfg.ChunkTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port: 8001, PoolSize: 4, ChunkAllocator: "risk_tolerance", ChunkTimeout: time.Second, DecompositionThreshold: 8,
			MaxIterations: 500, MaxQubits: 8, RiskShots: 1000, QAOAShots: 1024,
			StatusSchedule: "@every 1m",
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero pool", func(c *Config) { c.PoolSize = 0 }},
		{"negative timeout", func(c *Config) { c.ChunkTimeout = -time.Second }},
		{"qubits over limit", func(c *Config) { c.MaxQubits = 12 }},
		{"bad port", func(c *Config) { c.Port = 70000 }},
		{"zero shots", func(c *Config) { c.RiskShots = 0 }},
		{"bad schedule", func(c *Config) { c.StatusSchedule = "whenever" }},
		{"unknown allocator", func(c *Config) { c.ChunkAllocator = "magic" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
