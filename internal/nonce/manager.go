// Package nonce implements the engine's single authoritative nonce
// reservation manager: an address-sharded, in-memory cache of the next
// nonce to use per wallet, backed by an RPC pending-nonce lookup on first
// use. Reservations that are dropped without being submitted create a
// permanent gap rather than being recycled, by design — see DESIGN.md.
package nonce

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tempospam/engine/internal/config"
)

// Fetcher is the minimal RPC surface the manager needs to seed a wallet's
// nonce the first time it is seen.
type Fetcher interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// walletState carries one wallet's reservation cursor. mu serializes the
// reservation-issuance critical section for that wallet alone; it is held
// across the pending-nonce fetch only on a cache miss, so a miss never
// blocks reservations for other wallets, even ones in the same shard.
type walletState struct {
	mu          sync.Mutex
	next        uint64
	initialized bool
	cooldown    time.Duration
}

type shard struct {
	mu      sync.Mutex
	wallets map[common.Address]*walletState
}

// Manager is the sharded nonce reservation manager. The zero value is not
// useful; construct with NewManager.
type Manager struct {
	shards  []*shard
	fetcher Fetcher
	cfg     config.NonceConfig
}

// NewManager builds a Manager with cfg.ShardCount shards (16 by default,
// per the Tempo spammer's own NonceConfig).
func NewManager(fetcher Fetcher, cfg config.NonceConfig) *Manager {
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = 16
	}
	m := &Manager{
		shards:  make([]*shard, cfg.ShardCount),
		fetcher: fetcher,
		cfg:     cfg,
	}
	for i := range m.shards {
		m.shards[i] = &shard{wallets: make(map[common.Address]*walletState)}
	}
	return m
}

func (m *Manager) shardFor(addr common.Address) *shard {
	h := binary.BigEndian.Uint32(addr[:4])
	return m.shards[int(h%uint32(len(m.shards)))]
}

// state returns addr's walletState, creating it if needed. The shard lock
// is held only for the map lookup/insert, never across I/O.
func (m *Manager) state(addr common.Address) *walletState {
	s := m.shardFor(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.wallets[addr]
	if !ok {
		st = &walletState{cooldown: m.cfg.BaseCooldown}
		s.wallets[addr] = st
	}
	return st
}

// syncLocked seeds st.next from the chain's pending transaction count.
// Must be called with st.mu held. Pending, not latest: the count has to
// include the wallet's own in-flight submissions or two workers could be
// handed the same nonce.
func (m *Manager) syncLocked(ctx context.Context, st *walletState, addr common.Address) error {
	next, err := m.fetcher.PendingNonceAt(ctx, addr)
	if err != nil {
		return fmt.Errorf("nonce: fetch pending nonce for %s: %w", addr, err)
	}
	st.next = next
	st.initialized = true
	return nil
}

// Reserve hands out the next sequential nonce for addr, fetching the
// current pending nonce from the chain on first use.
func (m *Manager) Reserve(ctx context.Context, addr common.Address) (*Reservation, error) {
	st := m.state(addr)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.initialized {
		if err := m.syncLocked(ctx, st, addr); err != nil {
			return nil, err
		}
	}
	n := st.next
	st.next++
	return &Reservation{Address: addr, Nonce: n, manager: m}, nil
}

// ReserveBatch reserves count sequential nonces atomically with respect to
// other callers, matching BatchNonceHelper.reserve_batch: the manager's
// cursor is advanced past the whole batch up front so no other task can
// interleave nonces within it. A count of zero is a no-op and yields an
// empty batch.
func (m *Manager) ReserveBatch(ctx context.Context, addr common.Address, count int) ([]*Reservation, error) {
	if count < 0 {
		return nil, fmt.Errorf("nonce: reserve batch count must not be negative, got %d", count)
	}
	if count == 0 {
		return []*Reservation{}, nil
	}
	st := m.state(addr)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.initialized {
		if err := m.syncLocked(ctx, st, addr); err != nil {
			return nil, err
		}
	}
	start := st.next
	st.next += uint64(count)

	reservations := make([]*Reservation, count)
	for i := 0; i < count; i++ {
		reservations[i] = &Reservation{Address: addr, Nonce: start + uint64(i), manager: m}
	}
	return reservations, nil
}

// Commit confirms a run of successful submissions ending at
// lastSuccessNonce: further reserves start at lastSuccessNonce+1. After a
// partial batch failure this moves the cursor back over the unsubmitted
// tail so the failed nonce is retried rather than gapped — safe because
// the wallet's lease is exclusive, so the committing task owns every
// outstanding reservation above the commit point.
func (m *Manager) Commit(addr common.Address, lastSuccessNonce uint64) {
	st := m.state(addr)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.next = lastSuccessNonce + 1
	st.initialized = true
}

// Reset drops the cached cursor for addr so the next Reserve re-fetches
// from the chain. The wallet's adaptive cooldown survives the reset — a
// resync must not erase the backoff accumulated from the errors that
// forced it.
func (m *Manager) Reset(addr common.Address) {
	st := m.state(addr)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.initialized = false
}

// Cooldown returns the wallet's current adaptive cooldown, the delay a
// worker should wait before reusing this wallet.
func (m *Manager) Cooldown(addr common.Address) time.Duration {
	st := m.state(addr)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cooldown
}

// RecordFailure doubles a wallet's cooldown, capped at MaxCooldown, when
// AdaptiveBackoff is enabled.
func (m *Manager) RecordFailure(addr common.Address) {
	if !m.cfg.AdaptiveBackoff {
		return
	}
	st := m.state(addr)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cooldown *= 2
	if st.cooldown > m.cfg.MaxCooldown {
		st.cooldown = m.cfg.MaxCooldown
	}
}

// RecordSuccess halves a wallet's cooldown, floored at MinCooldown, when
// AdaptiveBackoff is enabled.
func (m *Manager) RecordSuccess(addr common.Address) {
	if !m.cfg.AdaptiveBackoff {
		return
	}
	st := m.state(addr)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cooldown /= 2
	if st.cooldown < m.cfg.MinCooldown {
		st.cooldown = m.cfg.MinCooldown
	}
}
