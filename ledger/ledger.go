// Package ledger provides read access to accounts on the ledger. The
// AccountReader interface abstracts the node RPC surface; Fetcher wraps a
// reader with retries for transient failures and a circuit breaker that
// sheds load from an unhealthy node.
package ledger

import (
	"context"

	"github.com/jet-lab/lookup-table-registry-go/solana"
)

// Account is the subset of on-chain account state the client reads.
type Account struct {
	// Data is the account's raw data.
	Data []byte
	// Owner is the program that owns the account.
	Owner solana.PublicKey
	// Lamports is the account balance.
	Lamports uint64
}

// AccountReader reads accounts from the ledger at the node's current
// confirmed state. Implementations must be safe for concurrent use.
type AccountReader interface {
	// GetAccount returns the account at the given address together with the
	// ledger slot the read was served at.
	//
	// Expected errors:
	//   - ErrAccountNotFound (wrapped) if no account exists at the address
	//   - TransientError if the node could not serve the read right now
	//   - NodeRejectedError if the node rejected the request as invalid
	GetAccount(ctx context.Context, address solana.PublicKey) (*Account, uint64, error)

	// GetMultipleAccounts returns the accounts at the given addresses in
	// order, with nil entries for addresses that do not exist, together with
	// the ledger slot the read was served at.
	//
	// Expected errors:
	//   - TransientError if the node could not serve the read right now
	//   - NodeRejectedError if the node rejected the request as invalid
	GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*Account, uint64, error)
}
