package crypto

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Domain separates signatures between deployments
// A transaction signed for one program or chain never verifies on another
type Domain struct {
	Name      string // Protocol name (e.g., "HyperSwap")
	Version   string // Protocol version (e.g., "1")
	ChainID   uint64 // 1337 for local
	ProgramID Pubkey // Program the records belong to
}

// DefaultProgramID is the program id used by local deployments
var DefaultProgramID = Pubkey(sha256.Sum256([]byte("hyperswap/marketplace")))

// DefaultDomain returns the domain used for local development
func DefaultDomain() Domain {
	return Domain{
		Name:      "HyperSwap",
		Version:   "1",
		ChainID:   1337,
		ProgramID: DefaultProgramID,
	}
}

// Separator is keccak256(keccak256(name) || keccak256(version) || chainID || programID)
func (d Domain) Separator() []byte {
	var chain [8]byte
	binary.BigEndian.PutUint64(chain[:], d.ChainID)
	return keccak256(
		keccak256([]byte(d.Name)),
		keccak256([]byte(d.Version)),
		chain[:],
		d.ProgramID[:],
	)
}

// Digest computes the bytes a signer actually signs
// Final digest: keccak256("\x19\x01" || separator || keccak256(payload))
func (d Domain) Digest(payload []byte) []byte {
	return keccak256([]byte("\x19\x01"), d.Separator(), keccak256(payload))
}

func keccak256(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
