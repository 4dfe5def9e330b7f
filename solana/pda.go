package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	// MaxSeedLength is the longest single seed accepted by the PDA hash.
	MaxSeedLength = 32
	// MaxSeeds is the largest number of seeds accepted by the PDA hash.
	MaxSeeds = 16
)

// pdaMarker is appended to the PDA preimage to domain-separate it from
// ordinary ed25519 key material.
var pdaMarker = []byte("ProgramDerivedAddress")

// ErrNoViableBump indicates that no bump seed in [0, 255] produced an
// off-curve address for the given seeds. This is astronomically unlikely for
// honest inputs.
var ErrNoViableBump = errors.New("no viable bump seed found for program address")

// CreateProgramAddress derives the program address for the given seeds, or
// fails if the result lands on the ed25519 curve. Callers normally want
// FindProgramAddress, which searches for a bump seed that avoids the curve.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return PublicKey{}, fmt.Errorf("too many seeds: got %d, max %d", len(seeds), MaxSeeds)
	}
	h := sha256.New()
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return PublicKey{}, fmt.Errorf("seed %d too long: got %d bytes, max %d", i, len(seed), MaxSeedLength)
		}
		_, _ = h.Write(seed)
	}
	_, _ = h.Write(programID[:])
	_, _ = h.Write(pdaMarker)

	var address PublicKey
	copy(address[:], h.Sum(nil))
	if IsOnCurve(address[:]) {
		return PublicKey{}, errors.New("invalid seeds: derived address falls on the ed25519 curve")
	}
	return address, nil
}

// FindProgramAddress searches bump seeds from 255 downward for the first one
// whose derived address falls off the ed25519 curve, and returns the address
// together with the winning bump.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	if len(seeds)+1 > MaxSeeds {
		return PublicKey{}, 0, fmt.Errorf("too many seeds: got %d, max %d before bump", len(seeds), MaxSeeds-1)
	}
	for bump := 255; bump >= 0; bump-- {
		bumped := make([][]byte, 0, len(seeds)+1)
		bumped = append(bumped, seeds...)
		bumped = append(bumped, []byte{byte(bump)})
		address, err := CreateProgramAddress(bumped, programID)
		if err == nil {
			return address, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether the 32 bytes decode to a valid ed25519 curve
// point. Program derived addresses must not be on the curve, which guarantees
// no private key exists for them.
func IsOnCurve(b []byte) bool {
	if len(b) != PublicKeySize {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
