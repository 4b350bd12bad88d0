package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/mr-tron/base58"
)

// SignatureSize is the length of an ed25519 signature
const SignatureSize = ed25519.SignatureSize

// Signer manages an ed25519 key pair for signing transactions
type Signer struct {
	privateKey ed25519.PrivateKey
	pubkey     Pubkey
}

// GenerateKey creates a new random ed25519 key pair
func GenerateKey() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newSigner(priv, pub)
}

// FromSeed derives a deterministic key pair from a 32-byte seed
func FromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return newSigner(priv, priv.Public().(ed25519.PublicKey))
}

// FromPrivateKeyBase58 loads a key from its base58 form
// Accepts either the 32-byte seed or the 64-byte seed||pubkey keypair encoding
func FromPrivateKeyBase58(s string) (*Signer, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return FromSeed(raw)
	case ed25519.PrivateKeySize:
		signer, err := FromSeed(raw[:ed25519.SeedSize])
		if err != nil {
			return nil, err
		}
		if string(signer.pubkey[:]) != string(raw[ed25519.SeedSize:]) {
			return nil, fmt.Errorf("keypair public half does not match seed")
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("invalid private key length: %d", len(raw))
	}
}

func newSigner(priv ed25519.PrivateKey, pub ed25519.PublicKey) (*Signer, error) {
	pk, err := PubkeyFromBytes(pub)
	if err != nil {
		return nil, err
	}
	return &Signer{privateKey: priv, pubkey: pk}, nil
}

// Pubkey returns the identity this signer speaks for
func (s *Signer) Pubkey() Pubkey {
	return s.pubkey
}

// PrivateKeyBase58 returns the 64-byte keypair encoding
// WARNING: Keep this secret! Never expose to users or logs
func (s *Signer) PrivateKeyBase58() string {
	return base58.Encode(s.privateKey)
}

// Sign returns a 64-byte ed25519 signature over msg
func (s *Signer) Sign(msg []byte) []byte {
	return ed25519.Sign(s.privateKey, msg)
}

// Verify reports whether sig is a valid signature by pub over msg
func Verify(pub Pubkey, msg, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}
