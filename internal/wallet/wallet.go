// Package wallet discovers and decrypts the engine's signing wallets and
// caches them by index, mirroring the keystore discovery and decrypt flow
// of the original wallet manager while using go-ethereum's own key types.
package wallet

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet is a decrypted signing identity cached in memory for the lifetime
// of the process. Destroy wipes the private key bytes once the wallet is
// no longer needed.
type Wallet struct {
	Index   int
	Address common.Address
	key     *ecdsa.PrivateKey
}

// New builds a Wallet directly from an already-parsed private key, for
// callers that obtain key material outside the Store's keystore/pv.txt
// discovery (e.g. tests, or a future hardware-wallet source).
func New(index int, key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{Index: index, Address: crypto.PubkeyToAddress(key.PublicKey), key: key}
}

// PrivateKey returns the wallet's signing key. Callers must not retain it
// past Destroy.
func (w *Wallet) PrivateKey() *ecdsa.PrivateKey {
	return w.key
}

// Destroy zeroes the private key's scalar so it does not linger in memory.
// Safe to call more than once.
func (w *Wallet) Destroy() {
	if w.key == nil {
		return
	}
	w.key.D.SetInt64(0)
	w.key = nil
}

func newWallet(index int, hexKey string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(trim0x(hexKey))
	if err != nil {
		return nil, fmt.Errorf("wallet %d: parse private key: %v: %w", index, err, ErrInvalidKeyFormat)
	}
	return New(index, key), nil
}

func trim0x(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
