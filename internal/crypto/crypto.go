// Package crypto implements the gateway's credential envelope (§4.2): a
// single UTF-8 string sealed with AES-256-GCM under a key derived per record
// via PBKDF2-HMAC-SHA256 from a process-wide master key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 64
	ivSize     = 16
	keySize    = 32
	iterations = 100_000
)

// Sealer seals and unseals credential fields under a single process-wide
// master key. The zero value is not usable; construct with NewSealer.
type Sealer struct {
	masterKey []byte
}

// NewSealer derives a Sealer from a hex-encoded master key (32 raw bytes,
// i.e. 64 hex characters). Absence or malformed input is a fatal
// configuration error at startup, per §4.2.
func NewSealer(masterKeyHex string) (*Sealer, error) {
	key, err := hex.DecodeString(strings.TrimSpace(masterKeyHex))
	if err != nil {
		return nil, fmt.Errorf("master key is not valid hex: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("master key must decode to %d bytes, got %d", keySize, len(key))
	}
	return &Sealer{masterKey: key}, nil
}

// Encrypt seals plaintext into the on-disk envelope
// "<salt-hex>:<iv-hex>:<ciphertext-hex>:<tag-hex>" (§6). Every call draws a
// fresh salt and IV.
func (s *Sealer) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	derivedKey := pbkdf2.Key(s.masterKey, salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return "", fmt.Errorf("constructing cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", fmt.Errorf("constructing GCM: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-gcm.Overhead()]
	tag := sealed[len(sealed)-gcm.Overhead():]

	return strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(iv),
		hex.EncodeToString(ciphertext),
		hex.EncodeToString(tag),
	}, ":"), nil
}

// Decrypt opens an envelope produced by Encrypt. It fails closed on a
// malformed envelope (ErrInvalidEnvelope) or an authentication-tag mismatch
// (ErrTamperDetected). A wrong key and a wrong ciphertext both end in the
// same tag mismatch, so a field-level attacker cannot distinguish them.
func (s *Sealer) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: expected 4 colon-joined fields, got %d", ErrInvalidEnvelope, len(parts))
	}

	saltHex, ivHex, ciphertextHex, tagHex := parts[0], parts[1], parts[2], parts[3]
	salt, err1 := hex.DecodeString(saltHex)
	iv, err2 := hex.DecodeString(ivHex)
	ciphertext, err3 := hex.DecodeString(ciphertextHex)
	tag, err4 := hex.DecodeString(tagHex)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return "", fmt.Errorf("%w: non-hex field", ErrInvalidEnvelope)
	}
	if len(salt) != saltSize || len(iv) != ivSize {
		return "", fmt.Errorf("%w: unexpected salt/iv length", ErrInvalidEnvelope)
	}

	derivedKey := pbkdf2.Key(s.masterKey, salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return "", fmt.Errorf("constructing cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", fmt.Errorf("constructing GCM: %w", err)
	}

	sealed := append(ciphertext, tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrTamperDetected)
	}
	return string(plaintext), nil
}

// UnsealField decrypts value if the field schema marks the field encrypted;
// otherwise it returns value unchanged. This is the pass-through behavior
// required for historical data stored before a field was marked encrypted.
func (s *Sealer) UnsealField(value string, encrypted bool) (string, error) {
	if !encrypted {
		return value, nil
	}
	return s.Decrypt(value)
}
