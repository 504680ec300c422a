package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("PSEUDONYM_EXCHANGE_ENDPOINT", "")
	t.Setenv("PSEUDONYM_EXCHANGE_TARGET_PROVIDER_ID", "")
	t.Setenv("AUDIT_KAFKA_BROKERS", "")
	t.Setenv("ENROLLMENT_INDEX", "")
	t.Setenv("ENROLLMENT_INDEX_TTL", "")

	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Exchange.Timeout)
	assert.Equal(t, 4, cfg.Aggregate.Concurrency)
	assert.Empty(t, cfg.Audit.KafkaBrokers)
	assert.True(t, cfg.Server.EnableCreateRoutes)
	assert.Equal(t, IndexOff, cfg.Index.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Index.TTL)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PSEUDONYM_EXCHANGE_ENDPOINT", " https://exchange.example.com/exchange ")
	t.Setenv("PSEUDONYM_EXCHANGE_TARGET_PROVIDER_ID", "provider-42")
	t.Setenv("PSEUDONYM_EXCHANGE_TIMEOUT", "750ms")
	t.Setenv("AUDIT_KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("AGGREGATE_CONCURRENCY", "not-a-number")

	cfg := FromEnv()
	assert.Equal(t, "https://exchange.example.com/exchange", cfg.Exchange.Endpoint)
	assert.Equal(t, "provider-42", cfg.Exchange.TargetProviderID)
	assert.Equal(t, 750*time.Millisecond, cfg.Exchange.Timeout)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Audit.KafkaBrokers)
	assert.Equal(t, 4, cfg.Aggregate.Concurrency, "unparseable values fall back to defaults")
	require.NoError(t, cfg.Validate())
}

func TestValidate_ExchangeConfigurationMissing(t *testing.T) {
	tests := []struct {
		name     string
		exchange Exchange
		missing  string
	}{
		{"no endpoint", Exchange{TargetProviderID: "p"}, "PSEUDONYM_EXCHANGE_ENDPOINT"},
		{"no provider", Exchange{Endpoint: "http://x"}, "PSEUDONYM_EXCHANGE_TARGET_PROVIDER_ID"},
		{"nothing", Exchange{}, "PSEUDONYM_EXCHANGE_ENDPOINT, PSEUDONYM_EXCHANGE_TARGET_PROVIDER_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Exchange: tt.exchange, Aggregate: Aggregate{Concurrency: 1}}
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfigurationMissing))
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestValidate_RejectsNonPositiveConcurrency(t *testing.T) {
	cfg := Config{
		Exchange:  Exchange{Endpoint: "http://x", TargetProviderID: "p"},
		Aggregate: Aggregate{Concurrency: 0},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidate_EnrollmentIndex(t *testing.T) {
	base := Config{
		Exchange:  Exchange{Endpoint: "http://x", TargetProviderID: "p"},
		Aggregate: Aggregate{Concurrency: 1},
	}
	tests := []struct {
		name    string
		index   Index
		redis   string
		wantErr bool
		missing bool
	}{
		{name: "off", index: Index{Mode: IndexOff}},
		{name: "unset", index: Index{}},
		{name: "memory", index: Index{Mode: IndexMemory, TTL: time.Minute}},
		{name: "redis", index: Index{Mode: IndexRedis, TTL: time.Minute}, redis: "redis://localhost:6379"},
		{name: "redis without url", index: Index{Mode: IndexRedis, TTL: time.Minute}, wantErr: true, missing: true},
		{name: "unbounded ttl", index: Index{Mode: IndexMemory}, wantErr: true},
		{name: "negative ttl", index: Index{Mode: IndexRedis, TTL: -time.Second}, redis: "redis://localhost:6379", wantErr: true},
		{name: "unknown mode", index: Index{Mode: "disk", TTL: time.Minute}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Index = tt.index
			cfg.Redis.URL = tt.redis
			err := cfg.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.missing, errors.Is(err, ErrConfigurationMissing))
		})
	}
}
