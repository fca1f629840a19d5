package submit

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/tempospam/engine/internal/config"
	"github.com/tempospam/engine/internal/nonce"
	"github.com/tempospam/engine/internal/proxy"
)

// RawSender is the minimal RPC surface the pipeline needs to broadcast a
// signed, raw-encoded transaction.
type RawSender interface {
	SendRawTransaction(ctx context.Context, raw []byte) error
}

// proxyKeyed is implemented by RawSenders that know which proxy, if any,
// they are routed through, so the pipeline can notify the banlist without
// the submission pipeline owning a reference to the lease itself.
type proxyKeyed interface {
	ProxyKey() string
}

// Rebuild re-signs a transaction payload against a freshly reserved nonce
// after a NonceTooLow classification forces the stale reservation to be
// abandoned, matching §4.4/§4.5's "reset cache, re-fetch pending count,
// rebuild the transaction with the new nonce, re-sign, resubmit."
type Rebuild func(nonce uint64) (raw []byte, hash common.Hash, err error)

// Pipeline wraps RawSender.SendRawTransaction in classification, jittered
// retry, and a circuit breaker, and feeds the outcome back into the nonce
// manager's adaptive cooldown/gap-resync behavior and the proxy banlist. A
// single Pipeline is shared across every leased wallet/client pair; Send
// takes the RawSender to use for this particular call since each lease
// carries its own (possibly proxy-routed) client.
type Pipeline struct {
	retryCfg config.RetryConfig
	breaker  *CircuitBreaker
	nonceMgr *nonce.Manager
	banlist  *proxy.Banlist
	log      log.Logger
}

// NewPipeline builds a Pipeline. nonceMgr and banlist may be nil if that
// feedback is not desired (e.g. in a test harness exercising the pipeline
// alone).
func NewPipeline(retryCfg config.RetryConfig, breaker *CircuitBreaker, nonceMgr *nonce.Manager, banlist *proxy.Banlist) *Pipeline {
	return &Pipeline{
		retryCfg: retryCfg,
		breaker:  breaker,
		nonceMgr: nonceMgr,
		banlist:  banlist,
		log:      log.New("component", "submit"),
	}
}

// Send broadcasts raw via sender. A NonceTooLow classification resets the
// nonce manager's cache for addr, releases the stale reservation, reserves
// a fresh nonce, invokes rebuild to produce a freshly signed payload for
// it, and retries with that payload — all within the same retry budget —
// so a reservation invalidated mid-flight can still succeed within N
// retries (spec.md §4.4/§4.5, scenario S4). rebuild may be nil, in which
// case a NonceTooLow is terminal (there is nothing to rebuild against). A
// ProxyError classification notifies the banlist; a clean send does too,
// via whichever proxy (if any) sender reports through ProxyKey.
//
// Send returns the reservation that was ultimately submitted — reservation
// itself, or its replacement if a rebuild occurred — the hash actually
// broadcast, the final Kind observed (Unknown on success), and the last
// error, if any. The caller owns calling MarkSubmitted/Commit or Release
// on whichever reservation comes back.
func (p *Pipeline) Send(ctx context.Context, sender RawSender, addr common.Address, reservation *nonce.Reservation, hash common.Hash, raw []byte, rebuild Rebuild) (*nonce.Reservation, common.Hash, Kind, error) {
	var kind Kind
	current := reservation

	var proxyKey string
	if pk, ok := sender.(proxyKeyed); ok {
		proxyKey = pk.ProxyKey()
	}

	unknownRetries := 0
	shouldRetry := func(err error) bool {
		k := Classify(err, HTTPStatusOf(err))
		if k == Unknown {
			// One retry for an unrecognized failure, then surface.
			unknownRetries++
			return unknownRetries <= 1
		}
		if k == NonceTooLow && (rebuild == nil || p.nonceMgr == nil) {
			// Nothing to rebuild against: replaying the stale payload
			// cannot succeed.
			return false
		}
		return k.Retryable()
	}

	err := WithRetry(ctx, p.retryCfg, shouldRetry, func(attempt int) error {
		sendErr := p.breaker.Execute(func() error {
			return sender.SendRawTransaction(ctx, raw)
		})
		if sendErr != nil {
			kind = Classify(sendErr, HTTPStatusOf(sendErr))
			p.log.Debug("submission attempt failed", "addr", addr, "txHash", hash, "attempt", attempt, "kind", kind, "err", sendErr)

			switch kind {
			case NonceTooLow:
				if p.nonceMgr != nil {
					p.nonceMgr.Reset(addr)
					p.nonceMgr.RecordFailure(addr)
				}
				if rebuild == nil || p.nonceMgr == nil {
					return sendErr
				}
				next, reserveErr := p.nonceMgr.Reserve(ctx, addr)
				if reserveErr != nil {
					return fmt.Errorf("submit: re-reserve nonce after nonce-too-low: %w", reserveErr)
				}
				newRaw, newHash, buildErr := rebuild(next.Nonce)
				if buildErr != nil {
					next.Release()
					return fmt.Errorf("submit: rebuild for nonce %d: %w", next.Nonce, buildErr)
				}
				current.Release()
				current = next
				raw = newRaw
				hash = newHash
			case ProxyError:
				if p.banlist != nil && proxyKey != "" {
					p.banlist.RecordFailure(proxyKey)
				}
			}
			return sendErr
		}
		kind = Unknown
		if p.nonceMgr != nil {
			p.nonceMgr.RecordSuccess(addr)
		}
		if p.banlist != nil && proxyKey != "" {
			p.banlist.RecordSuccess(proxyKey)
		}
		return nil
	})
	if err != nil {
		return current, hash, kind, fmt.Errorf("submit: send %s: %w", hash, err)
	}
	return current, hash, kind, nil
}
