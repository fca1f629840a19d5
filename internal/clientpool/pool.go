// Package clientpool leases exclusive (wallet, RPC client, proxy) triples
// to workers, generalizing the teacher's 16-concurrency channel-based
// worker pool from "n identical workers" to "lease one of m resource
// triples, cooling down between uses".
package clientpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tempospam/engine/internal/proxy"
	"github.com/tempospam/engine/internal/rpcclient"
	"github.com/tempospam/engine/internal/wallet"
)

// Resource is one (wallet, client, proxy) triple the pool manages.
type Resource struct {
	Wallet *wallet.Wallet
	Client *rpcclient.Client
	Proxy  *proxy.Proxy
}

type slot struct {
	resource Resource
	held     bool
	readyAt  time.Time
}

// Pool manages a fixed set of Resources, handing out exclusive Leases that
// cool down for a wallet-specific duration on release.
type Pool struct {
	mu    sync.Mutex
	cond  *sync.Cond
	slots []*slot
	ttl   time.Duration
	cool  time.Duration

	// cooldownFor, when set, overrides the fixed cool duration with a
	// per-wallet adaptive cooldown (e.g. internal/nonce.Manager.Cooldown)
	// looked up at release time, per spec.md §4.7.
	cooldownFor func(Resource) time.Duration
}

// New builds a Pool over the given resources. ttl is retained for callers
// that want to size the lease's nominal validity window for logging/
// diagnostics; it is never used to reclaim a slot still held by a worker —
// only Close (or the worker's deadline firing and calling Close) does
// that, so a resource is never handed out to two workers at once.
func New(resources []Resource, ttl, releaseCooldown time.Duration) *Pool {
	p := &Pool{
		slots: make([]*slot, len(resources)),
		ttl:   ttl,
		cool:  releaseCooldown,
	}
	for i, r := range resources {
		p.slots[i] = &slot{resource: r}
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetCooldownFunc installs a per-wallet cooldown lookup used in place of
// the fixed release cooldown whenever it returns a positive duration.
func (p *Pool) SetCooldownFunc(f func(Resource) time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cooldownFor = f
}

func (p *Pool) pickReadyLocked() (*slot, bool) {
	now := time.Now()
	for _, s := range p.slots {
		if s.held {
			continue
		}
		if !s.readyAt.After(now) {
			return s, true
		}
	}
	return nil, false
}

// Acquire blocks until a resource becomes available or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-done:
		}
	}()

	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s, ok := p.pickReadyLocked(); ok {
			s.held = true
			return p.newLease(s), nil
		}
		p.cond.Wait()
	}
}

// TryAcquire returns a Lease immediately if one is available, or (nil,
// false) without blocking.
func (p *Pool) TryAcquire() (*Lease, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.pickReadyLocked()
	if !ok {
		return nil, false
	}
	s.held = true
	return p.newLease(s), true
}

func (p *Pool) newLease(s *slot) *Lease {
	id := uuid.New()
	return &Lease{
		ID:       id,
		Resource: s.resource,
		release: func() {
			p.mu.Lock()
			cool := p.cool
			if p.cooldownFor != nil {
				if adaptive := p.cooldownFor(s.resource); adaptive > 0 {
					cool = adaptive
				}
			}
			s.held = false
			s.readyAt = time.Now().Add(cool)
			p.cond.Broadcast()
			p.mu.Unlock()
		},
	}
}

// Size returns the total number of resources managed by the pool.
func (p *Pool) Size() int {
	return len(p.slots)
}

// Lease is an exclusive, time-bounded hold on a Resource. Close must be
// called to return the resource to the pool; calls after the first are
// no-ops.
type Lease struct {
	ID       uuid.UUID
	Resource Resource

	once    sync.Once
	release func()
}

// Close releases the lease back to the pool, starting its release
// cooldown before the resource becomes available again.
func (l *Lease) Close() {
	l.once.Do(l.release)
}

// String renders a short, loggable identifier for the lease.
func (l *Lease) String() string {
	return fmt.Sprintf("lease(%s, wallet=%s)", l.ID, l.Resource.Wallet.Address)
}
