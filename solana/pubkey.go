// Package solana provides the minimal Solana primitives the registry client
// depends on: 32-byte public keys with their base58 text form, and program
// derived address (PDA) computation.
package solana

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKeySize is the length of a Solana public key in bytes.
const PublicKeySize = 32

// PublicKey is an ed25519 public key identifying an account on the ledger.
// The zero value is the all-zero key, which never identifies a live account.
type PublicKey [PublicKeySize]byte

// AddressLookupTableProgramID is the well-known address of the on-chain
// address lookup table program that owns all lookup table accounts.
var AddressLookupTableProgramID = MustPublicKeyFromBase58("AddressLookupTab1e1111111111111111111111111")

// PublicKeyFromBytes converts a raw 32-byte slice into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var key PublicKey
	if len(b) != PublicKeySize {
		return key, fmt.Errorf("invalid public key length: got %d, want %d", len(b), PublicKeySize)
	}
	copy(key[:], b)
	return key, nil
}

// PublicKeyFromBase58 parses the canonical base58 text form of a public key.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var key PublicKey
	b, err := base58.Decode(s)
	if err != nil {
		return key, fmt.Errorf("invalid base58 public key %q: %w", s, err)
	}
	return PublicKeyFromBytes(b)
}

// MustPublicKeyFromBase58 parses a base58 public key and panics on failure.
// Intended for well-known constants only.
func MustPublicKeyFromBase58(s string) PublicKey {
	key, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return key
}

// Bytes returns the key as a freshly allocated byte slice.
func (k PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeySize)
	copy(b, k[:])
	return b
}

// IsZero reports whether the key is the all-zero key.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// String returns the base58 text form of the key.
func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// MarshalText implements encoding.TextMarshaler, so keys serialize as base58
// strings in JSON payloads.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	key, err := PublicKeyFromBase58(string(bytes.TrimSpace(text)))
	if err != nil {
		return err
	}
	*k = key
	return nil
}
