// Package unittest provides fixtures and helpers shared by tests across the
// module.
package unittest

import (
	"crypto/rand"
	"encoding/binary"
	"math"

	"github.com/jet-lab/lookup-table-registry-go/registry"
	"github.com/jet-lab/lookup-table-registry-go/solana"
)

// PublicKeyFixture returns a random public key.
func PublicKeyFixture() solana.PublicKey {
	var key solana.PublicKey
	_, _ = rand.Read(key[:])
	return key
}

// PublicKeyFixtures returns n random public keys.
func PublicKeyFixtures(n int) []solana.PublicKey {
	keys := make([]solana.PublicKey, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, PublicKeyFixture())
	}
	return keys
}

// RegistryAccountFixture returns a version 1 registry account referencing the
// given tables with live discriminators.
func RegistryAccountFixture(authority solana.PublicKey, tables ...solana.PublicKey) *registry.RegistryAccount {
	refs := make([]registry.TableRef, 0, len(tables))
	for i, table := range tables {
		refs = append(refs, registry.TableRef{
			Discriminator: uint64(i) + 2,
			Table:         table,
		})
	}
	return &registry.RegistryAccount{
		Authority: authority,
		Version:   1,
		Tables:    refs,
	}
}

// LookupTableFixture returns an active lookup table holding n random
// addresses.
func LookupTableFixture(n int, opts ...func(*registry.LookupTable)) *registry.LookupTable {
	table := &registry.LookupTable{
		DeactivationSlot: math.MaxUint64,
		LastExtendedSlot: 100,
		Authority:        PublicKeyFixture(),
		Addresses:        PublicKeyFixtures(n),
	}
	for _, opt := range opts {
		opt(table)
	}
	return table
}

// WithDeactivationSlot marks a lookup table fixture deactivated at the slot.
func WithDeactivationSlot(slot uint64) func(*registry.LookupTable) {
	return func(table *registry.LookupTable) {
		table.DeactivationSlot = slot
	}
}

// WithAddresses replaces a lookup table fixture's stored addresses.
func WithAddresses(addresses ...solana.PublicKey) func(*registry.LookupTable) {
	return func(table *registry.LookupTable) {
		table.Addresses = addresses
	}
}

// EntryFixture returns an active resolved registry entry with n random
// addresses.
func EntryFixture(discriminator uint64, n int) registry.Entry {
	return registry.Entry{
		Discriminator:    discriminator,
		Table:            PublicKeyFixture(),
		Authority:        PublicKeyFixture(),
		DeactivationSlot: math.MaxUint64,
		LastExtendedSlot: 100,
		Addresses:        PublicKeyFixtures(n),
	}
}

// RegistryFixture returns a resolved registry read at the given slot.
func RegistryFixture(authority solana.PublicKey, slot uint64, tables ...registry.Entry) *registry.Registry {
	return &registry.Registry{
		Authority: authority,
		Version:   1,
		Slot:      slot,
		Tables:    tables,
	}
}

// EncodeRegistryAccount serializes a registry account in the registry
// program's on-chain layout.
func EncodeRegistryAccount(account *registry.RegistryAccount) []byte {
	buf := make([]byte, 0, 45+len(account.Tables)*40)
	buf = append(buf, registry.RegistryAccountDiscriminator[:]...)
	buf = append(buf, account.Authority[:]...)
	buf = append(buf, account.Version)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(account.Tables)))
	for _, ref := range account.Tables {
		buf = binary.LittleEndian.AppendUint64(buf, ref.Discriminator)
		buf = append(buf, ref.Table[:]...)
	}
	return buf
}

// EncodeLookupTable serializes a lookup table account in the lookup table
// program's on-chain layout.
func EncodeLookupTable(table *registry.LookupTable) []byte {
	buf := make([]byte, 0, 56+len(table.Addresses)*solana.PublicKeySize)
	buf = binary.LittleEndian.AppendUint32(buf, 1)
	buf = binary.LittleEndian.AppendUint64(buf, table.DeactivationSlot)
	buf = binary.LittleEndian.AppendUint64(buf, table.LastExtendedSlot)
	buf = append(buf, table.LastExtendedSlotStartIndex)
	if table.Authority.IsZero() {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
	}
	buf = append(buf, table.Authority[:]...)
	buf = append(buf, 0, 0)
	for _, address := range table.Addresses {
		buf = append(buf, address[:]...)
	}
	return buf
}
