package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/deemkeen/mangafedi/domain"
	"github.com/tyler-smith/go-bip39"
)

// PortableKeypair is the Ed25519 identity derived from a recovery mnemonic.
// Only the public half is ever persisted.
type PortableKeypair struct {
	PublicKey   string // hex, 64 chars
	Fingerprint string // hex of the first 16 bytes of sha256(public key)
	private     ed25519.PrivateKey
}

// NewMnemonic returns a fresh 12-word BIP-39 phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("reading entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// NormalizeMnemonic lower-cases the phrase and collapses whitespace.
func NormalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}

// ValidateMnemonic checks word list membership and checksum.
func ValidateMnemonic(mnemonic string) error {
	if !bip39.IsMnemonicValid(NormalizeMnemonic(mnemonic)) {
		return domain.ErrInvalidMnemonic
	}
	return nil
}

// DerivePortableKeypair turns a mnemonic into its Ed25519 keypair. The seed
// uses an empty passphrase and the key is built from the first 32 bytes, so
// the same words always give the same fingerprint on any instance.
func DerivePortableKeypair(mnemonic string) (*PortableKeypair, error) {
	normalized := NormalizeMnemonic(mnemonic)
	seed, err := bip39.NewSeedWithErrorChecking(normalized, "")
	if err != nil {
		return nil, domain.ErrInvalidMnemonic
	}

	priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	pub := priv.Public().(ed25519.PublicKey)

	return &PortableKeypair{
		PublicKey:   hex.EncodeToString(pub),
		Fingerprint: Fingerprint(pub),
		private:     priv,
	}, nil
}

// Fingerprint is the identity lookup key for a portable public key.
func Fingerprint(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:16])
}

// Sign produces a detached signature with the portable key.
func (p *PortableKeypair) Sign(message []byte) string {
	return hex.EncodeToString(ed25519.Sign(p.private, message))
}

// SignWithPortableKey derives the keypair and signs in one step.
func SignWithPortableKey(mnemonic string, message []byte) (string, error) {
	kp, err := DerivePortableKeypair(mnemonic)
	if err != nil {
		return "", err
	}
	return kp.Sign(message), nil
}

// VerifyPortableSignature checks a hex signature against a hex public key.
func VerifyPortableSignature(publicKeyHex string, message []byte, signatureHex string) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}
