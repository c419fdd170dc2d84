package secrets

import (
	"encoding/json"
	"strings"
)

// Vault encrypts and decrypts stored integration credentials.
// The key is process-wide configuration, not per-tenant.
type Vault interface {
	Encrypt(plaintext []byte) (EncryptedSecret, error)
	Decrypt(secret EncryptedSecret) ([]byte, error)
	DecryptCredential(secret EncryptedSecret) ([]byte, error)
}

// EncryptedSecret is an `ivHex:cipherHex` envelope as produced by Encrypt.
// It is created once at the write boundary; readers never sniff shapes.
type EncryptedSecret string

// String returns the envelope text.
func (s EncryptedSecret) String() string { return string(s) }

// IsZero reports whether the secret carries no envelope at all.
func (s EncryptedSecret) IsZero() bool { return strings.TrimSpace(string(s)) == "" }

// ParseStoredSecret converts a persisted credential column into an
// EncryptedSecret. Rows written by older connection flows may hold a JSON
// string, an object wrapping an "encrypted" field, a bare envelope, or some
// other JSON value; the latter is kept as its text and will fail decryption.
func ParseStoredSecret(raw []byte) EncryptedSecret {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		// Not JSON: a bare envelope.
		return EncryptedSecret(trimmed)
	}

	switch val := v.(type) {
	case string:
		return EncryptedSecret(val)
	case map[string]any:
		if enc, ok := val["encrypted"].(string); ok {
			return EncryptedSecret(enc)
		}
	case nil:
		return ""
	}
	return EncryptedSecret(trimmed)
}

// DecodeCredentials turns decrypted plaintext into the credential object
// handed to actions. JSON objects pass through; any other plaintext is
// exposed under "value".
func DecodeCredentials(plaintext []byte) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(plaintext, &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"value": string(plaintext)}
}
