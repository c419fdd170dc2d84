package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rendis/autoflow/pkg/schema"
)

// VaultConfig configures the AES vault key derivation.
// Provide either MasterKey (raw 32 bytes) or Passphrase + Salt.
type VaultConfig struct {
	MasterKey  []byte // raw 32-byte key (takes priority)
	Passphrase string // derive key via PBKDF2
	Salt       []byte // salt for PBKDF2 (required with Passphrase)
	Iterations int    // PBKDF2 iterations (default 100_000)
}

// AESVault encrypts credentials with AES-256-GCM. Envelopes are
// hex(nonce) + ":" + hex(ciphertext||tag).
type AESVault struct {
	aead cipher.AEAD
}

// NewAESVault creates a vault with AES-256-GCM encryption.
func NewAESVault(cfg VaultConfig) (*AESVault, error) {
	key, err := deriveKey(cfg)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &AESVault{aead: aead}, nil
}

func deriveKey(cfg VaultConfig) ([]byte, error) {
	if len(cfg.MasterKey) > 0 {
		if len(cfg.MasterKey) != 32 {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"master key must be 32 bytes, got %d", len(cfg.MasterKey))
		}
		return cfg.MasterKey, nil
	}
	if cfg.Passphrase == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "either master_key or passphrase is required")
	}
	if len(cfg.Salt) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "salt is required with passphrase")
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 100_000
	}
	return pbkdf2.Key(sha256.New, cfg.Passphrase, cfg.Salt, iterations, 32)
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *AESVault) Encrypt(plaintext []byte) (EncryptedSecret, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ct := v.aead.Seal(nil, nonce, plaintext, nil)
	return EncryptedSecret(hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ct)), nil
}

// Decrypt opens an envelope produced by Encrypt.
func (v *AESVault) Decrypt(secret EncryptedSecret) ([]byte, error) {
	ivHex, ctHex, ok := strings.Cut(string(secret), ":")
	if !ok {
		return nil, schema.NewError(schema.ErrCodeDecryption, "malformed envelope: missing ':' separator")
	}
	if ivHex == "" {
		return nil, schema.NewError(schema.ErrCodeDecryption, "malformed envelope: missing iv")
	}
	nonce, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDecryption, "malformed iv: %s", err.Error()).WithCause(err)
	}
	if len(nonce) != v.aead.NonceSize() {
		return nil, schema.NewErrorf(schema.ErrCodeDecryption,
			"invalid iv length %d, want %d", len(nonce), v.aead.NonceSize())
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDecryption, "malformed ciphertext: %s", err.Error()).WithCause(err)
	}
	plaintext, err := v.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDecryption, "decrypt failed: %s", err.Error()).WithCause(err)
	}
	return plaintext, nil
}

// DecryptCredential decrypts a stored credential, failing with
// MISSING_CREDENTIALS when nothing was stored.
func (v *AESVault) DecryptCredential(secret EncryptedSecret) ([]byte, error) {
	if secret.IsZero() {
		return nil, schema.NewError(schema.ErrCodeMissingCredentials, "stored credential is empty")
	}
	return v.Decrypt(secret)
}
