// Package config holds the in-memory tunables for every subsystem of the
// spamming engine. There is no TOML/YAML loader here — callers (tests,
// cmd/spamengine's flag wiring) build a Config directly.
package config

import "time"

// Config aggregates every subsystem's tunables. Zero value is not useful;
// use Default to get a fully populated, sane configuration.
type Config struct {
	RPCURL      string
	ChainID     uint64
	WorkerCount int

	Nonce  NonceConfig
	Proxy  ProxyConfig
	Retry  RetryConfig
	Lease  LeaseConfig
	Tempo  TempoDefaults
	Worker WorkerConfig
}

// NonceConfig controls the sharded nonce reservation manager.
// Defaults mirror tempo-spammer's NonceConfig.
type NonceConfig struct {
	ShardCount      int
	BaseCooldown    time.Duration
	MinCooldown     time.Duration
	MaxCooldown     time.Duration
	AdaptiveBackoff bool
}

// ProxyConfig controls the proxy banlist policy.
type ProxyConfig struct {
	FailureThreshold int
	BanDuration      time.Duration
}

// RetryConfig controls the submission pipeline's retry/backoff behavior.
// Field names and defaults mirror the original RetryConfig exactly.
// RateLimitDelay is the wait before retrying a throttled submission when
// the response carried no Retry-After header.
type RetryConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	JitterMin       float64
	JitterMax       float64
	RateLimitDelay  time.Duration
}

// LeaseConfig controls client-pool lease behavior.
type LeaseConfig struct {
	TTL             time.Duration
	ReleaseCooldown time.Duration
}

// TempoDefaults are the fallback fields used when constructing a Tempo
// transaction and the caller does not override them. These were hardcoded
// constants in the original implementation; here they are explicit,
// overridable configuration per spec.md §9's Open Question resolution.
type TempoDefaults struct {
	ChainID              uint64
	MaxPriorityFeePerGas uint64
	MaxFeePerGas         uint64
	GasLimit             uint64
	FeeToken             string // hex address, may be empty for native fee token
}

// WorkerConfig controls the worker scheduler loop.
type WorkerConfig struct {
	StartupJitter   time.Duration
	TaskIntervalMin time.Duration
	TaskIntervalMax time.Duration
	TaskTimeout     time.Duration
}

// Default returns a Config populated with the same defaults as the
// original tempo-spammer config.rs / tempo-alloy protocol defaults.
func Default() Config {
	return Config{
		ChainID:     42431,
		WorkerCount: 1,
		Nonce: NonceConfig{
			ShardCount:      16,
			BaseCooldown:    1500 * time.Millisecond,
			MinCooldown:     500 * time.Millisecond,
			MaxCooldown:     30 * time.Second,
			AdaptiveBackoff: true,
		},
		Proxy: ProxyConfig{
			FailureThreshold: 3,
			BanDuration:      5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries:      3,
			BaseDelay:       time.Second,
			MaxDelay:        30 * time.Second,
			ExponentialBase: 2.0,
			JitterMin:       0.5,
			JitterMax:       1.5,
			RateLimitDelay:  2 * time.Second,
		},
		Lease: LeaseConfig{
			TTL:             60 * time.Second,
			ReleaseCooldown: 4 * time.Second,
		},
		Tempo: TempoDefaults{
			ChainID:              42431,
			MaxPriorityFeePerGas: 1_500_000_000,
			MaxFeePerGas:         150_000_000_000,
			GasLimit:             500_000,
			FeeToken:             "0x20C0000000000000000000000000000000000000",
		},
		Worker: WorkerConfig{
			StartupJitter:   2 * time.Second,
			TaskIntervalMin: 5 * time.Second,
			TaskIntervalMax: 15 * time.Second,
			TaskTimeout:     60 * time.Second,
		},
	}
}
