package tempo

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// rlpCall is the wire shape of a Call: RLP has no native support for our
// *uint256.Int-bearing Call type directly inside a slice field, so it is
// mirrored field-for-field.
type rlpCall struct {
	To    common.Address
	Value *uint256.Int
	Input []byte
}

type rlpAccessTuple struct {
	Address     common.Address
	StorageKeys []common.Address
}

// rlpUnsigned is the RLP shape hashed for signing: every Transaction field
// except the signature. Optional fields are flattened into a presence flag
// plus a zero-valued slot rather than relying on RLP's pointer-nil
// encoding, which keeps the wire format unambiguous across encode/decode.
type rlpUnsigned struct {
	ChainID              uint64
	MaxPriorityFeePerGas uint64
	MaxFeePerGas         uint64
	GasLimit             uint64
	Calls                []rlpCall
	AccessList           []rlpAccessTuple
	NonceKey             *uint256.Int
	Nonce                uint64
	HasValidBefore       bool
	ValidBefore          uint64
	HasValidAfter        bool
	ValidAfter           uint64
	HasFeeToken          bool
	FeeToken             common.Address
	TempoAuthorizations  [][]byte
	KeyAuthorization     []byte
}

// rlpSigned is the full wire shape: one flat list of the unsigned fields
// in the same order as rlpUnsigned, with the signature appended as
// (r, s, v). The two structs must stay field-for-field aligned so a
// decoded transaction re-encodes and re-hashes to the same bytes.
type rlpSigned struct {
	ChainID              uint64
	MaxPriorityFeePerGas uint64
	MaxFeePerGas         uint64
	GasLimit             uint64
	Calls                []rlpCall
	AccessList           []rlpAccessTuple
	NonceKey             *uint256.Int
	Nonce                uint64
	HasValidBefore       bool
	ValidBefore          uint64
	HasValidAfter        bool
	ValidAfter           uint64
	HasFeeToken          bool
	FeeToken             common.Address
	TempoAuthorizations  [][]byte
	KeyAuthorization     []byte
	R                    *uint256.Int
	S                    *uint256.Int
	V                    uint64
}

func (tx *Transaction) toUnsigned() rlpUnsigned {
	u := rlpUnsigned{
		ChainID:              tx.ChainID,
		MaxPriorityFeePerGas: tx.MaxPriorityFeePerGas,
		MaxFeePerGas:         tx.MaxFeePerGas,
		GasLimit:             tx.GasLimit,
		Calls:                make([]rlpCall, len(tx.Calls)),
		AccessList:           make([]rlpAccessTuple, len(tx.AccessList)),
		NonceKey:             tx.NonceKey,
		Nonce:                tx.Nonce,
		TempoAuthorizations:  tx.TempoAuthorizations,
		KeyAuthorization:     tx.KeyAuthorization,
	}
	if u.NonceKey == nil {
		u.NonceKey = new(uint256.Int)
	}
	for i, c := range tx.Calls {
		val := c.Value
		if val == nil {
			val = new(uint256.Int)
		}
		u.Calls[i] = rlpCall{To: c.To, Value: val, Input: c.Input}
	}
	for i, a := range tx.AccessList {
		u.AccessList[i] = rlpAccessTuple{Address: a.Address, StorageKeys: a.StorageKeys}
	}
	if tx.ValidBefore != nil {
		u.HasValidBefore = true
		u.ValidBefore = *tx.ValidBefore
	}
	if tx.ValidAfter != nil {
		u.HasValidAfter = true
		u.ValidAfter = *tx.ValidAfter
	}
	if tx.FeeToken != nil {
		u.HasFeeToken = true
		u.FeeToken = *tx.FeeToken
	}
	return u
}

// SigningHash returns the Keccak256 digest signed by Sign: the type byte
// followed by the RLP encoding of every unsigned field, exactly the
// signature_hash() used by the original Tempo sender before sign_hash.
func (tx *Transaction) SigningHash() (common.Hash, error) {
	var buf bytes.Buffer
	buf.WriteByte(TxType)
	if err := rlp.Encode(&buf, tx.toUnsigned()); err != nil {
		return common.Hash{}, fmt.Errorf("tempo: rlp encode unsigned: %w", err)
	}
	return crypto.Keccak256Hash(buf.Bytes()), nil
}

// Sign computes the signing hash and produces a SECP256K1 signature over
// it, storing (v, r, s) on the transaction. v is the 0/1 recovery id, not
// EIP-155 adjusted, matching TempoSignature's shape.
func (tx *Transaction) Sign(key *ecdsa.PrivateKey) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	hash, err := tx.SigningHash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return fmt.Errorf("tempo: sign: %w", err)
	}
	tx.R = uint256FromBig(new(big.Int).SetBytes(sig[:32]))
	tx.S = uint256FromBig(new(big.Int).SetBytes(sig[32:64]))
	tx.V = uint64(sig[64])
	return nil
}

// Encode returns the full type-prefixed, RLP-encoded signed envelope ready
// for eth_sendRawTransaction. Sign must be called first.
func (tx *Transaction) Encode() ([]byte, error) {
	if !tx.IsSigned() {
		return nil, fmt.Errorf("tempo: transaction is not signed")
	}
	u := tx.toUnsigned()
	signed := rlpSigned{
		ChainID:              u.ChainID,
		MaxPriorityFeePerGas: u.MaxPriorityFeePerGas,
		MaxFeePerGas:         u.MaxFeePerGas,
		GasLimit:             u.GasLimit,
		Calls:                u.Calls,
		AccessList:           u.AccessList,
		NonceKey:             u.NonceKey,
		Nonce:                u.Nonce,
		HasValidBefore:       u.HasValidBefore,
		ValidBefore:          u.ValidBefore,
		HasValidAfter:        u.HasValidAfter,
		ValidAfter:           u.ValidAfter,
		HasFeeToken:          u.HasFeeToken,
		FeeToken:             u.FeeToken,
		TempoAuthorizations:  u.TempoAuthorizations,
		KeyAuthorization:     u.KeyAuthorization,
		R:                    tx.R,
		S:                    tx.S,
		V:                    tx.V,
	}
	var buf bytes.Buffer
	buf.WriteByte(TxType)
	if err := rlp.Encode(&buf, signed); err != nil {
		return nil, fmt.Errorf("tempo: rlp encode signed: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a type-prefixed, RLP-encoded signed envelope back into a
// Transaction.
func Decode(raw []byte) (*Transaction, error) {
	if len(raw) == 0 || raw[0] != TxType {
		return nil, fmt.Errorf("tempo: not a 0x%x-typed transaction", TxType)
	}
	var signed rlpSigned
	if err := rlp.DecodeBytes(raw[1:], &signed); err != nil {
		return nil, fmt.Errorf("tempo: rlp decode: %w", err)
	}

	tx := &Transaction{
		ChainID:              signed.ChainID,
		MaxPriorityFeePerGas: signed.MaxPriorityFeePerGas,
		MaxFeePerGas:         signed.MaxFeePerGas,
		GasLimit:             signed.GasLimit,
		Calls:                make([]Call, len(signed.Calls)),
		AccessList:           make([]AccessTuple, len(signed.AccessList)),
		NonceKey:             signed.NonceKey,
		Nonce:                signed.Nonce,
		TempoAuthorizations:  signed.TempoAuthorizations,
		KeyAuthorization:     signed.KeyAuthorization,
		V:                    signed.V,
		R:                    signed.R,
		S:                    signed.S,
	}
	for i, c := range signed.Calls {
		tx.Calls[i] = Call{To: c.To, Value: c.Value, Input: c.Input}
	}
	for i, a := range signed.AccessList {
		tx.AccessList[i] = AccessTuple{Address: a.Address, StorageKeys: a.StorageKeys}
	}
	if signed.HasValidBefore {
		v := signed.ValidBefore
		tx.ValidBefore = &v
	}
	if signed.HasValidAfter {
		v := signed.ValidAfter
		tx.ValidAfter = &v
	}
	if signed.HasFeeToken {
		a := signed.FeeToken
		tx.FeeToken = &a
	}
	return tx, nil
}

// Sender recovers the signing address from a signed transaction's
// signature and its SigningHash, without re-deriving it from any stored
// field.
func (tx *Transaction) Sender() (common.Address, error) {
	if !tx.IsSigned() {
		return common.Address{}, fmt.Errorf("tempo: transaction is not signed")
	}
	hash, err := tx.SigningHash()
	if err != nil {
		return common.Address{}, err
	}
	r := tx.R.Bytes32()
	s := tx.S.Bytes32()
	sig := make([]byte, 65)
	copy(sig[0:32], r[:])
	copy(sig[32:64], s[:])
	sig[64] = byte(tx.V)

	pub, err := crypto.SigToPub(hash[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("tempo: recover sender: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
