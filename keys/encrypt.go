package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/deemkeen/mangafedi/domain"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfo = "mangafedi private key encryption v1"

// SecretSource supplies the process-wide secret private keys are sealed with.
// Implementations must never log the returned bytes.
type SecretSource interface {
	Secret() ([]byte, error)
}

func deriveKey(src SecretSource) ([]byte, error) {
	secret, err := src.Secret()
	if err != nil {
		return nil, err
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving encryption key: %w", err)
	}
	return key, nil
}

// EncryptPrivateKey seals a PEM private key as "hex(nonce):hex(ciphertext)".
func EncryptPrivateKey(src SecretSource, plaintext string) (string, error) {
	key, err := deriveKey(src)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("reading nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// DecryptPrivateKey reverses EncryptPrivateKey. Any malformed input or
// authentication failure comes back as domain.ErrDecryptionFailed.
func DecryptPrivateKey(src SecretSource, encrypted string) (string, error) {
	key, err := deriveKey(src)
	if err != nil {
		return "", err
	}

	nonceHex, ctHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", domain.ErrDecryptionFailed
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return "", domain.ErrDecryptionFailed
	}
	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", domain.ErrDecryptionFailed
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", domain.ErrDecryptionFailed
	}
	return string(plain), nil
}
