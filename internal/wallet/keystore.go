package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// ErrDecryptionFailed is returned when the GCM authentication tag does not
// verify, i.e. the password was wrong or the file is corrupt.
var ErrDecryptionFailed = errors.New("wallet: decryption failed")

// scrypt KDF parameters. Not specified by the wire format itself, so these
// follow the conventional scrypt-over-password defaults used by JSON
// wallet tooling.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// encryptedBlock is the `encrypted` object inside a wallet-json/*.json file:
//
//	{"encrypted": {"ciphertext": "...", "iv": "...", "salt": "...", "tag": "..."}}
//
// All fields are hex-encoded. This is NOT go-ethereum's V3 keystore format.
type encryptedBlock struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
	Tag        string `json:"tag"`
}

type walletFile struct {
	Encrypted *encryptedBlock `json:"encrypted"`
}

// decryptedPayload is the plaintext JSON recovered after AES-GCM decryption.
// Only the EVM fields are decoded; any other fields in the plaintext are
// ignored.
type decryptedPayload struct {
	EVMPrivateKey string `json:"evm_private_key"`
	EVMAddress    string `json:"evm_address"`
}

// decryptJSONWallet decrypts a wallet-json file's "encrypted" block using
// scrypt(password, salt) -> AES-256-GCM(iv, tag) -> plaintext JSON.
func decryptJSONWallet(raw []byte, password string) (*decryptedPayload, error) {
	var wf walletFile
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, fmt.Errorf("parse wallet json: %w", err)
	}
	if wf.Encrypted == nil {
		return nil, fmt.Errorf("wallet json has no \"encrypted\" block")
	}
	if password == "" {
		return nil, fmt.Errorf("password required for encrypted wallet")
	}

	ciphertext, err := hex.DecodeString(wf.Encrypted.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	iv, err := hex.DecodeString(wf.Encrypted.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	salt, err := hex.DecodeString(wf.Encrypted.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	tag, err := hex.DecodeString(wf.Encrypted.Tag)
	if err != nil {
		return nil, fmt.Errorf("decode tag: %w", err)
	}

	derivedKey, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("new aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	var payload decryptedPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("parse decrypted payload: %w", err)
	}
	return &payload, nil
}
