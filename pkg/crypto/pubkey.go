package crypto

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeySize is the length of an identity or record handle in bytes
const PubkeySize = 32

// Pubkey is a 32-byte identifier used both for signing identities and for record handles
// Text form is base58, matching the wallet tooling users already hold keys in
type Pubkey [PubkeySize]byte

// PubkeyFromBytes copies a 32-byte slice into a Pubkey
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var p Pubkey
	if len(b) != PubkeySize {
		return p, fmt.Errorf("invalid pubkey length: %d", len(b))
	}
	copy(p[:], b)
	return p, nil
}

// ParsePubkey decodes a base58 pubkey string
func ParsePubkey(s string) (Pubkey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("failed to decode pubkey %q: %w", s, err)
	}
	return PubkeyFromBytes(raw)
}

func (p Pubkey) String() string { return base58.Encode(p[:]) }

func (p Pubkey) IsZero() bool { return p == Pubkey{} }

// Compare orders pubkeys bytewise
func (p Pubkey) Compare(other Pubkey) int { return bytes.Compare(p[:], other[:]) }

func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
