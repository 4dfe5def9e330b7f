package registry

import (
	"encoding/binary"
	"fmt"

	"github.com/jet-lab/lookup-table-registry-go/solana"
)

// DeriveRegistryAddress computes the program derived address of the registry
// account the program assigns to the given authority.
func DeriveRegistryAddress(programID, authority solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress([][]byte{authority[:]}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("could not derive registry address for authority %s: %w", authority, err)
	}
	return address, nil
}

// DeriveLookupTableAddress computes the address the lookup table program
// assigns to a table created by authority at the given slot.
func DeriveLookupTableAddress(authority solana.PublicKey, recentSlot uint64) (solana.PublicKey, error) {
	var slotSeed [8]byte
	binary.LittleEndian.PutUint64(slotSeed[:], recentSlot)
	address, _, err := solana.FindProgramAddress(
		[][]byte{authority[:], slotSeed[:]},
		solana.AddressLookupTableProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("could not derive lookup table address for authority %s at slot %d: %w",
			authority, recentSlot, err)
	}
	return address, nil
}
