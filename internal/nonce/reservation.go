package nonce

import (
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

const (
	reservationPending = iota
	reservationSubmitted
	reservationReleased
)

// Reservation is a single reserved nonce slot. It must end in exactly one
// terminal state: MarkSubmitted (the nonce was used on the wire) or
// Release (the nonce is abandoned, permanently creating a gap — see
// DESIGN.md's gap-don't-reclaim decision).
type Reservation struct {
	Address common.Address
	Nonce   uint64

	manager *Manager
	state   atomic.Int32
}

// MarkSubmitted transitions the reservation to submitted. Calling it more
// than once is a no-op; calling it after Release returns an error.
func (r *Reservation) MarkSubmitted() error {
	if r.state.CompareAndSwap(reservationPending, reservationSubmitted) {
		return nil
	}
	if r.state.Load() == reservationSubmitted {
		return nil
	}
	return fmt.Errorf("nonce: reservation %d for %s already released", r.Nonce, r.Address)
}

// Release abandons the reservation, permanently creating a gap at this
// nonce — the manager's cursor is never rewound to reuse it. Calling it
// more than once is a no-op; calling it after MarkSubmitted returns an
// error.
func (r *Reservation) Release() error {
	if r.state.CompareAndSwap(reservationPending, reservationReleased) {
		return nil
	}
	if r.state.Load() == reservationReleased {
		return nil
	}
	return fmt.Errorf("nonce: reservation %d for %s already submitted", r.Nonce, r.Address)
}

// Submitted reports whether MarkSubmitted has been called successfully.
func (r *Reservation) Submitted() bool {
	return r.state.Load() == reservationSubmitted
}

// Released reports whether Release has been called successfully.
func (r *Reservation) Released() bool {
	return r.state.Load() == reservationReleased
}
