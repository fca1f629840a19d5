package tempo

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

func TestTransaction_ValidateRejectsEmptyCalls(t *testing.T) {
	tx := New()
	if err := tx.Validate(); err != ErrNoCalls {
		t.Fatalf("Validate() error = %v, want ErrNoCalls", err)
	}
}

func TestTransaction_SignAndEncodeDecodeRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	tx := New()
	tx.Calls = []Call{
		NewCall(common.HexToAddress("0x1111111111111111111111111111111111111111"), []byte{0x01, 0x02}),
		NewCall(common.HexToAddress("0x2222222222222222222222222222222222222222"), nil).WithValue(uint256.NewInt(5)),
	}
	tx.Nonce = 7

	if err := tx.Sign(key); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if !tx.IsSigned() {
		t.Fatal("IsSigned() = false after Sign")
	}

	wantSender := crypto.PubkeyToAddress(key.PublicKey)
	gotSender, err := tx.Sender()
	if err != nil {
		t.Fatalf("Sender() error = %v", err)
	}
	if gotSender != wantSender {
		t.Fatalf("Sender() = %s, want %s", gotSender, wantSender)
	}

	raw, err := tx.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if raw[0] != TxType {
		t.Fatalf("Encode()[0] = 0x%x, want 0x%x", raw[0], TxType)
	}

	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Nonce != tx.Nonce {
		t.Errorf("decoded.Nonce = %d, want %d", decoded.Nonce, tx.Nonce)
	}
	if len(decoded.Calls) != len(tx.Calls) {
		t.Fatalf("decoded.Calls len = %d, want %d", len(decoded.Calls), len(tx.Calls))
	}
	if decoded.Calls[0].To != tx.Calls[0].To {
		t.Errorf("decoded.Calls[0].To = %s, want %s", decoded.Calls[0].To, tx.Calls[0].To)
	}
	if !bytes.Equal(decoded.Calls[0].Input, tx.Calls[0].Input) {
		t.Errorf("decoded.Calls[0].Input mismatch")
	}

	decodedSender, err := decoded.Sender()
	if err != nil {
		t.Fatalf("decoded.Sender() error = %v", err)
	}
	if decodedSender != wantSender {
		t.Fatalf("decoded.Sender() = %s, want %s", decodedSender, wantSender)
	}
}

// TestTransaction_ValidityWindowRoundTripAndStableHash builds the kind of
// envelope the batch tasks submit — several calls, a bounded validity
// window, an ERC-20 fee token — and checks that decoding recovers every
// optional field and that the signing hash survives a full
// encode/decode/re-hash cycle unchanged.
func TestTransaction_ValidityWindowRoundTripAndStableHash(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	validAfter := uint64(1_700_000_000)
	validBefore := validAfter + 3600

	tx := New()
	tx.ChainID = 42431
	tx.Nonce = 7
	tx.ValidAfter = &validAfter
	tx.ValidBefore = &validBefore
	tx.Calls = []Call{
		NewCall(common.HexToAddress("0x1111111111111111111111111111111111111111"), []byte{0xaa}),
		NewCall(common.HexToAddress("0x2222222222222222222222222222222222222222"), []byte{0xbb}),
		NewCall(common.HexToAddress("0x3333333333333333333333333333333333333333"), nil).WithValue(uint256.NewInt(1)),
	}

	wantHash, err := tx.SigningHash()
	if err != nil {
		t.Fatalf("SigningHash() error = %v", err)
	}

	if err := tx.Sign(key); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	raw, err := tx.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if raw[0] != TxType {
		t.Fatalf("Encode()[0] = 0x%x, want 0x%x", raw[0], TxType)
	}

	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.ValidAfter == nil || *decoded.ValidAfter != validAfter {
		t.Errorf("decoded.ValidAfter = %v, want %d", decoded.ValidAfter, validAfter)
	}
	if decoded.ValidBefore == nil || *decoded.ValidBefore != validBefore {
		t.Errorf("decoded.ValidBefore = %v, want %d", decoded.ValidBefore, validBefore)
	}
	if decoded.FeeToken == nil || *decoded.FeeToken != *tx.FeeToken {
		t.Errorf("decoded.FeeToken = %v, want %v", decoded.FeeToken, tx.FeeToken)
	}
	if len(decoded.Calls) != 3 {
		t.Fatalf("decoded.Calls len = %d, want 3", len(decoded.Calls))
	}

	gotHash, err := decoded.SigningHash()
	if err != nil {
		t.Fatalf("decoded.SigningHash() error = %v", err)
	}
	if gotHash != wantHash {
		t.Fatalf("signing hash changed across encode/decode: %s != %s", gotHash, wantHash)
	}

	reencoded, err := decoded.Encode()
	if err != nil {
		t.Fatalf("re-Encode() error = %v", err)
	}
	if !bytes.Equal(reencoded, raw) {
		t.Fatal("re-encoding a decoded transaction produced different bytes")
	}
}

func TestTransaction_EncodeBeforeSignFails(t *testing.T) {
	tx := New()
	tx.Calls = []Call{NewCall(common.Address{}, nil)}
	if _, err := tx.Encode(); err == nil {
		t.Fatal("expected error encoding unsigned transaction")
	}
}

func TestTransaction_CopyIsDeep(t *testing.T) {
	tx := New()
	tx.Calls = []Call{NewCall(common.HexToAddress("0x1111111111111111111111111111111111111111"), []byte{0x01})}
	tx.NonceKey = uint256.NewInt(9)

	cpy := tx.Copy()
	cpy.Calls[0].Value.SetUint64(42)
	cpy.NonceKey.SetUint64(123)

	if tx.Calls[0].Value.Uint64() == 42 {
		t.Error("mutating copy's call value mutated original")
	}
	if tx.NonceKey.Uint64() == 123 {
		t.Error("mutating copy's nonce key mutated original")
	}
}
