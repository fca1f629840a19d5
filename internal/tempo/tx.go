// Package tempo implements the Tempo chain's custom 0x76 typed transaction
// envelope: a multi-call transaction, RLP-encoded and Keccak256/SECP256K1
// signed the same way go-ethereum's own typed transactions are, but kept as
// a standalone codec rather than an extension of go-ethereum's core/types
// (whose TxData interface has unexported methods and is closed to outside
// packages).
package tempo

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TxType is the Tempo transaction type byte prepended to the RLP payload,
// following the EIP-2718 typed-transaction envelope convention.
const TxType = 0x76

// ErrNoCalls is returned by Validate when a transaction carries no calls.
var ErrNoCalls = errors.New("tempo: transaction has no calls")

// Call is a single call within a Tempo transaction's call list. Calls in a
// transaction execute atomically.
type Call struct {
	To    common.Address
	Value *uint256.Int
	Input []byte
}

// NewCall builds a zero-value call to the given address with the given
// input, matching the original Call::new default of Value = 0.
func NewCall(to common.Address, input []byte) Call {
	return Call{To: to, Value: new(uint256.Int), Input: input}
}

// WithValue returns a copy of the call carrying the given value.
func (c Call) WithValue(v *uint256.Int) Call {
	c.Value = v
	return c
}

// AccessTuple mirrors go-ethereum's own access-list tuple shape.
type AccessTuple struct {
	Address     common.Address
	StorageKeys []common.Address
}

// Transaction is the Tempo chain's 0x76 envelope: an atomic batch of calls
// plus the 2D nonce (nonce_key, nonce), fee-token override, validity
// window, and authorization lists defined by the Tempo protocol.
type Transaction struct {
	ChainID              uint64
	MaxPriorityFeePerGas uint64
	MaxFeePerGas         uint64
	GasLimit             uint64
	Calls                []Call
	AccessList           []AccessTuple
	NonceKey             *uint256.Int
	Nonce                uint64
	ValidBefore          *uint64
	ValidAfter           *uint64
	FeeToken             *common.Address
	TempoAuthorizations  [][]byte
	KeyAuthorization     []byte

	// Signature, set by Sign.
	V uint64
	R *uint256.Int
	S *uint256.Int
}

// New returns an unsigned Transaction populated with the Tempo protocol's
// own defaults (chain id 42431, fee caps, gas limit, fee token) — callers
// override any field that their config.TempoDefaults specifies differently.
func New() *Transaction {
	feeToken := common.HexToAddress("0x20C0000000000000000000000000000000000000")
	return &Transaction{
		ChainID:              42431,
		MaxPriorityFeePerGas: 1_500_000_000,
		MaxFeePerGas:         150_000_000_000,
		GasLimit:             500_000,
		NonceKey:             new(uint256.Int),
		FeeToken:             &feeToken,
	}
}

// Validate checks structural invariants before signing: non-empty calls,
// matching spec.md's validate_calls check.
func (tx *Transaction) Validate() error {
	if len(tx.Calls) == 0 {
		return ErrNoCalls
	}
	return nil
}

// IsSigned reports whether Sign has populated the signature fields.
func (tx *Transaction) IsSigned() bool {
	return tx.R != nil && tx.S != nil
}

// Copy returns a deep clone of tx, allocating fresh uint256.Int receivers
// for every big numeric field — the same defensive-clone shape used by
// go-ethereum's own typed-transaction implementations.
func (tx *Transaction) Copy() *Transaction {
	cpy := &Transaction{
		ChainID:              tx.ChainID,
		MaxPriorityFeePerGas: tx.MaxPriorityFeePerGas,
		MaxFeePerGas:         tx.MaxFeePerGas,
		GasLimit:             tx.GasLimit,
		Calls:                make([]Call, len(tx.Calls)),
		AccessList:           make([]AccessTuple, len(tx.AccessList)),
		NonceKey:             new(uint256.Int),
		Nonce:                tx.Nonce,
		TempoAuthorizations:  make([][]byte, len(tx.TempoAuthorizations)),
		KeyAuthorization:     common.CopyBytes(tx.KeyAuthorization),
		V:                    tx.V,
	}
	for i, c := range tx.Calls {
		val := new(uint256.Int)
		if c.Value != nil {
			val.Set(c.Value)
		}
		cpy.Calls[i] = Call{To: c.To, Value: val, Input: common.CopyBytes(c.Input)}
	}
	for i, a := range tx.AccessList {
		cpy.AccessList[i] = AccessTuple{Address: a.Address, StorageKeys: append([]common.Address(nil), a.StorageKeys...)}
	}
	for i, auth := range tx.TempoAuthorizations {
		cpy.TempoAuthorizations[i] = common.CopyBytes(auth)
	}
	if tx.NonceKey != nil {
		cpy.NonceKey.Set(tx.NonceKey)
	}
	if tx.ValidBefore != nil {
		v := *tx.ValidBefore
		cpy.ValidBefore = &v
	}
	if tx.ValidAfter != nil {
		v := *tx.ValidAfter
		cpy.ValidAfter = &v
	}
	if tx.FeeToken != nil {
		a := *tx.FeeToken
		cpy.FeeToken = &a
	}
	if tx.R != nil {
		cpy.R = new(uint256.Int).Set(tx.R)
	}
	if tx.S != nil {
		cpy.S = new(uint256.Int).Set(tx.S)
	}
	return cpy
}

func uint256FromBig(b *big.Int) *uint256.Int {
	u := new(uint256.Int)
	u.SetFromBig(b)
	return u
}
