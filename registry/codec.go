package registry

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/jet-lab/lookup-table-registry-go/solana"
)

const (
	// registryAccountHeaderLength covers the account discriminator, the
	// authority, the layout version and the entry count.
	registryAccountHeaderLength = 8 + solana.PublicKeySize + 1 + 4
	// registryTableRefLength is the serialized size of one table reference.
	registryTableRefLength = 8 + solana.PublicKeySize
	// registryVersionMax is the newest registry layout this build decodes.
	registryVersionMax = 1

	// lookupTableMetaLength is the fixed-size prefix of a lookup table
	// account; stored addresses follow it back to back.
	lookupTableMetaLength = 56
	// lookupTableTypeIndex tags an initialized lookup table account.
	lookupTableTypeIndex = 1
)

// RegistryAccountDiscriminator is the 8-byte discriminator prefixed to every
// registry account, sha256("account:RegistryAccount")[0:8].
var RegistryAccountDiscriminator = [8]byte{0x71, 0x5d, 0x6a, 0xc9, 0x64, 0xa6, 0x92, 0x62}

// RegistryAccount is the decoded registry program account. It references
// lookup tables by address; resolving their contents requires reading the
// table accounts themselves.
type RegistryAccount struct {
	Authority solana.PublicKey
	Version   uint8
	Tables    []TableRef
}

// TableRef is one slot of the registry account's table list.
type TableRef struct {
	// Discriminator is the registry's creation counter value assigned when
	// the table was registered.
	Discriminator uint64
	// Table is the address of the lookup table account.
	Table solana.PublicKey
}

// IsLive reports whether the slot references a created table. Values 0 and 1
// mark slots that were never filled or whose table was removed.
func (t *TableRef) IsLive() bool {
	return t.Discriminator > 1
}

// LookupTable is the decoded state of an address lookup table account.
type LookupTable struct {
	// DeactivationSlot is the slot the table was deactivated at, or the u64
	// sentinel while the table is active.
	DeactivationSlot uint64
	// LastExtendedSlot is the slot the table was last extended at.
	LastExtendedSlot uint64
	// LastExtendedSlotStartIndex is the address count before that extension.
	LastExtendedSlotStartIndex uint8
	// Authority may close or extend the table; zero when the table is frozen.
	Authority solana.PublicKey
	// Addresses are the stored addresses in insertion order.
	Addresses []solana.PublicKey
}

// IsActive reports whether the table has not been deactivated.
func (lt *LookupTable) IsActive() bool {
	return lt.DeactivationSlot == math.MaxUint64
}

// DecodeRegistryAccount parses registry program account data.
//
// Layout, all integers little-endian:
//
//	[0:8]    account discriminator
//	[8:40]   authority public key
//	[40]     layout version
//	[41:45]  table count (u32)
//	[45:]    table references, each a u64 discriminator and a 32-byte address
//
// Bytes beyond the declared table references are ignored; registry accounts
// are preallocated larger than their current contents.
//
// Expected errors:
//   - MalformedAccountError if the data does not match the layout
//   - UnsupportedVersionError if the layout version is newer than this build
func DecodeRegistryAccount(data []byte) (*RegistryAccount, error) {
	if len(data) < registryAccountHeaderLength {
		return nil, NewMalformedAccountError("registry account too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[0:8], RegistryAccountDiscriminator[:]) {
		return nil, NewMalformedAccountError("unexpected account discriminator %x", data[0:8])
	}

	account := &RegistryAccount{
		Authority: readKey(data[8:40]),
		Version:   data[40],
	}
	if account.Version > registryVersionMax {
		return nil, NewUnsupportedVersionError(uint32(account.Version))
	}

	count := binary.LittleEndian.Uint32(data[41:45])
	if uint64(len(data)-registryAccountHeaderLength) < uint64(count)*registryTableRefLength {
		return nil, NewMalformedAccountError("registry account truncated: %d tables declared, %d bytes remain",
			count, len(data)-registryAccountHeaderLength)
	}

	account.Tables = make([]TableRef, 0, count)
	offset := registryAccountHeaderLength
	for i := uint32(0); i < count; i++ {
		account.Tables = append(account.Tables, TableRef{
			Discriminator: binary.LittleEndian.Uint64(data[offset : offset+8]),
			Table:         readKey(data[offset+8 : offset+registryTableRefLength]),
		})
		offset += registryTableRefLength
	}
	return account, nil
}

// DecodeLookupTable parses an address lookup table account owned by the
// lookup table program.
//
// Layout, all integers little-endian:
//
//	[0:4]    account type (1 for an initialized table)
//	[4:12]   deactivation slot
//	[12:20]  last extended slot
//	[20]     last extended slot start index
//	[21]     authority flag
//	[22:54]  authority public key, meaningful when the flag is 1
//	[54:56]  padding
//	[56:]    stored addresses, 32 bytes each
//
// Expected errors:
//   - MalformedAccountError if the data does not match the layout
//   - UnsupportedVersionError if the account type tag is newer than this build
func DecodeLookupTable(data []byte) (*LookupTable, error) {
	if len(data) < lookupTableMetaLength {
		return nil, NewMalformedAccountError("lookup table account too short: %d bytes", len(data))
	}

	typeIndex := binary.LittleEndian.Uint32(data[0:4])
	switch {
	case typeIndex == lookupTableTypeIndex:
	case typeIndex == 0:
		return nil, NewMalformedAccountError("lookup table account is uninitialized")
	default:
		return nil, NewUnsupportedVersionError(typeIndex)
	}

	if rem := (len(data) - lookupTableMetaLength) % solana.PublicKeySize; rem != 0 {
		return nil, NewMalformedAccountError("lookup table addresses truncated: %d trailing bytes", rem)
	}

	table := &LookupTable{
		DeactivationSlot:           binary.LittleEndian.Uint64(data[4:12]),
		LastExtendedSlot:           binary.LittleEndian.Uint64(data[12:20]),
		LastExtendedSlotStartIndex: data[20],
	}
	switch data[21] {
	case 0:
		// frozen table, no authority
	case 1:
		table.Authority = readKey(data[22:54])
	default:
		return nil, NewMalformedAccountError("invalid authority flag %d", data[21])
	}

	table.Addresses = make([]solana.PublicKey, 0, (len(data)-lookupTableMetaLength)/solana.PublicKeySize)
	for offset := lookupTableMetaLength; offset < len(data); offset += solana.PublicKeySize {
		table.Addresses = append(table.Addresses, readKey(data[offset:offset+solana.PublicKeySize]))
	}
	return table, nil
}

// readKey copies a pre-validated 32-byte window into a PublicKey.
func readKey(b []byte) (key solana.PublicKey) {
	copy(key[:], b)
	return
}
