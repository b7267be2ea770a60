// Package keys holds the key material used by local actors: RSA signing
// keypairs for HTTP signatures, encryption of private keys at rest, and the
// mnemonic-derived portable keys that survive an instance migration.
package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

const DefaultKeyBits = 2048

// SigningKeypair is a PEM-encoded RSA keypair. Public is SPKI ("PUBLIC KEY"),
// Private is PKCS#8 ("PRIVATE KEY") and still in clear text.
type SigningKeypair struct {
	Public  string
	Private string
}

type keygenResult struct {
	pair *SigningKeypair
	err  error
}

// GenerateSigningKeypair creates an RSA keypair off the calling goroutine so
// request handlers can abandon the wait when their context ends.
func GenerateSigningKeypair(ctx context.Context, bits int) (*SigningKeypair, error) {
	if bits < DefaultKeyBits {
		bits = DefaultKeyBits
	}

	done := make(chan keygenResult, 1)
	go func() {
		pair, err := generate(bits)
		done <- keygenResult{pair: pair, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.pair, res.err
	}
}

func generate(bits int) (*SigningKeypair, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generating rsa key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshalling private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshalling public key: %w", err)
	}

	return &SigningKeypair{
		Public:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		Private: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
	}, nil
}

// ParsePrivateKey parses a PEM-encoded RSA private key.
// Supports both PKCS#1 and PKCS#8 formats.
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 private key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA private key")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", block.Type)
	}
}

// ParsePublicKey parses a PEM-encoded RSA public key.
// Supports both PKIX and PKCS#1 formats.
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKIX public key: %w", err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA public key")
		}
		return rsaPub, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", block.Type)
	}
}
