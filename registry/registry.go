// Package registry defines the decoded representation of the lookup table
// registry program's on-chain state and the codec that produces it.
//
// A registry account is owned by the registry program and lists, per
// authority, the address lookup tables that authority manages. The resolved
// Registry joins that account with the current contents of each referenced
// table.
package registry

import (
	"math"

	"github.com/jet-lab/lookup-table-registry-go/solana"
)

// Registry is the fully resolved view of one authority's registry: the
// registry account joined with the contents of every live lookup table it
// references.
type Registry struct {
	// Authority manages the registry and all tables in it.
	Authority solana.PublicKey
	// Version is the registry account layout version.
	Version uint8
	// Slot is the ledger slot at which the registry account was read.
	Slot uint64
	// Tables holds the resolved lookup tables, in registry order.
	Tables []Entry
}

// Entry is one lookup table referenced by a registry, joined with its
// resolved on-chain state.
type Entry struct {
	// Discriminator is the registry's creation counter value for this table.
	Discriminator uint64
	// Table is the address of the lookup table account.
	Table solana.PublicKey
	// Authority is the table's own authority, zero if the table is frozen.
	Authority solana.PublicKey
	// DeactivationSlot is the slot the table was deactivated at, or the u64
	// sentinel while the table is active.
	DeactivationSlot uint64
	// LastExtendedSlot is the slot the table was last extended at.
	LastExtendedSlot uint64
	// Addresses are the table's stored addresses in insertion order.
	// Duplicates are possible and preserved.
	Addresses []solana.PublicKey
}

// IsActive reports whether the table has not been deactivated.
func (e *Entry) IsActive() bool {
	return e.DeactivationSlot == math.MaxUint64
}

// Table returns the resolved entry for the given lookup table address.
func (r *Registry) Table(address solana.PublicKey) (*Entry, bool) {
	for i := range r.Tables {
		if r.Tables[i].Table == address {
			return &r.Tables[i], true
		}
	}
	return nil, false
}

// AddressCount returns the total number of stored addresses across all
// resolved tables, duplicates included.
func (r *Registry) AddressCount() int {
	count := 0
	for i := range r.Tables {
		count += len(r.Tables[i].Addresses)
	}
	return count
}
