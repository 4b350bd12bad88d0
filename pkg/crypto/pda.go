package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

var (
	ErrOnCurve      = errors.New("derived address lies on the ed25519 curve")
	ErrNoViableBump = errors.New("unable to find a viable program address bump seed")
)

// CreateProgramAddress hashes seeds with the program id into a handle no key can sign for
// sha256(seeds... || programID || "ProgramDerivedAddress"), rejected if on curve
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > maxSeeds {
		return Pubkey{}, fmt.Errorf("too many seeds: %d", len(seeds))
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return Pubkey{}, fmt.Errorf("seed exceeds %d bytes", maxSeedLength)
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	sum := h.Sum(nil)
	if IsOnCurve(sum) {
		return Pubkey{}, ErrOnCurve
	}
	return PubkeyFromBytes(sum)
}

// FindProgramAddress searches bump seeds from 255 down for an off-curve address
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return Pubkey{}, 0, err
		}
		return addr, uint8(bump), nil
	}
	return Pubkey{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether b decodes to a valid ed25519 point
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// FindOrderAddress derives the handle of a seller's n-th order for a mint
// Seeds: "order" || seller || mint || n (u64 little-endian)
func FindOrderAddress(seller, mint Pubkey, n uint64, programID Pubkey) (Pubkey, uint8, error) {
	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], n)
	return FindProgramAddress([][]byte{[]byte("order"), seller[:], mint[:], nonce[:]}, programID)
}
