package proxy

import (
	"sync"
	"time"
)

type entry struct {
	failures int
	bannedAt time.Time
}

// Banlist tracks consecutive-failure counts per proxy key and bans a proxy
// once it crosses FailureThreshold, for BanDuration. A single success
// resets the failure count and lifts any ban, mirroring the
// record_success/record_failure policy of the original RPC health tracker
// applied here to proxies instead of RPC endpoints.
type Banlist struct {
	mu               sync.Mutex
	entries          map[string]*entry
	failureThreshold int
	banDuration      time.Duration
	now              func() time.Time
}

// NewBanlist returns a Banlist with the given policy.
func NewBanlist(failureThreshold int, banDuration time.Duration) *Banlist {
	return &Banlist{
		entries:          make(map[string]*entry),
		failureThreshold: failureThreshold,
		banDuration:      banDuration,
		now:              time.Now,
	}
}

// RecordSuccess clears a proxy's failure count and lifts any ban.
func (b *Banlist) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
}

// RecordFailure increments a proxy's consecutive failure count, banning it
// once the threshold is reached.
func (b *Banlist) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		e = &entry{}
		b.entries[key] = e
	}
	e.failures++
	if e.failures >= b.failureThreshold {
		e.bannedAt = b.now()
	}
}

// IsBanned reports whether key is currently banned. A ban expires after
// BanDuration, at which point IsBanned returns false again (the failure
// count itself is left intact until the next success or failure).
func (b *Banlist) IsBanned(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok || e.bannedAt.IsZero() {
		return false
	}
	if b.now().Sub(e.bannedAt) >= b.banDuration {
		return false
	}
	return true
}

// Failures returns the current consecutive failure count for key.
func (b *Banlist) Failures(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return 0
	}
	return e.failures
}
