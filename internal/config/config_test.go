package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("TX_MAX_RETRIES", "7")
	t.Setenv("DB_STATEMENT_TIMEOUT_MS", "250")
	t.Setenv("MIGRATIONS_AUTO", "false")
	t.Setenv("ASOF_PAGE_SIZE", "not-a-number")

	cfg := Load()
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 7, cfg.TxMaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.DBStatementTimeout)
	assert.False(t, cfg.MigrationsAuto)
	assert.Equal(t, 500, cfg.AsOfPageSize)
}

func TestValidateRepairsBadValues(t *testing.T) {
	cfg := &Config{
		StoreBackend:   "sqlite",
		TxMaxRetries:   -1,
		AsOfPageSize:   0,
		WorkerInterval: 0,
	}
	cfg.Validate(zap.NewNop())

	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, 0, cfg.TxMaxRetries)
	assert.Equal(t, 500, cfg.AsOfPageSize)
	assert.Equal(t, 5*time.Minute, cfg.WorkerInterval)
}

func TestPersistent(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		want    bool
	}{
		{name: "postgres", backend: BackendPostgres, want: true},
		{name: "memory", backend: BackendMemory, want: false},
		{name: "unknown falls back to postgres", backend: "sqlite", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{StoreBackend: tt.backend, WorkerInterval: time.Minute, AsOfPageSize: 1}
			cfg.Validate(zap.NewNop())
			assert.Equal(t, tt.want, cfg.Persistent())
		})
	}
}
