package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12
	tagSize   = 16
)

// ErrNoKey is returned by New when no encryption key is configured. A key
// synthesized at startup would make previously stored secrets permanently
// undecryptable after a restart, so the vault refuses to start without one.
var ErrNoKey = errors.New("vault: encryption key is not configured")

// ErrDecryptFailed is returned when the authentication tag does not verify.
// The secret must be treated as unusable; no partial plaintext is returned.
var ErrDecryptFailed = errors.New("vault: decryption failed, secret is corrupted or tampered with")

// EncryptedSecret is a provider credential at rest. IV and Tag are either
// both present (the secret is encrypted) or both absent (stored in the
// clear); a partially encrypted record is invalid.
type EncryptedSecret struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
}

// Vault encrypts and decrypts provider credentials with AES-256-GCM.
// It is stateless and safe for concurrent use.
type Vault struct {
	key []byte
}

// New creates a Vault from a hex-encoded 32-byte key. It fails when the key
// is missing or malformed rather than falling back to a generated one.
func New(keyHex string) (*Vault, error) {
	if keyHex == "" {
		return nil, ErrNoKey
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("vault: encryption key is not valid hex: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("vault: encryption key must be %d bytes, got %d", keySize, len(key))
	}
	return &Vault{key: key}, nil
}

// Encrypt seals plaintext with a fresh random nonce. Every call produces a
// distinct IV; nonce reuse under the same key breaks GCM.
func (v *Vault) Encrypt(plaintext string) (EncryptedSecret, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return EncryptedSecret{}, fmt.Errorf("vault: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return EncryptedSecret{}, fmt.Errorf("vault: failed to create GCM: %w", err)
	}

	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return EncryptedSecret{}, fmt.Errorf("vault: failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return EncryptedSecret{
		Ciphertext: hex.EncodeToString(ciphertext),
		IV:         hex.EncodeToString(iv),
		Tag:        hex.EncodeToString(tag),
	}, nil
}

// Decrypt opens a sealed secret. It returns ErrDecryptFailed when the tag
// does not verify; it never returns unverified plaintext.
func (v *Vault) Decrypt(secret EncryptedSecret) (string, error) {
	ciphertext, err := hex.DecodeString(secret.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("vault: ciphertext is not valid hex: %w", err)
	}
	iv, err := hex.DecodeString(secret.IV)
	if err != nil {
		return "", fmt.Errorf("vault: iv is not valid hex: %w", err)
	}
	tag, err := hex.DecodeString(secret.Tag)
	if err != nil {
		return "", fmt.Errorf("vault: tag is not valid hex: %w", err)
	}
	if len(iv) != nonceSize {
		return "", fmt.Errorf("vault: iv must be %d bytes, got %d", nonceSize, len(iv))
	}
	if len(tag) != tagSize {
		return "", fmt.Errorf("vault: tag must be %d bytes, got %d", tagSize, len(tag))
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether a record is fully encrypted: both IV and Tag
// present. A record missing either is stored in the clear.
func IsEncrypted(secret EncryptedSecret) bool {
	return secret.IV != "" && secret.Tag != ""
}
