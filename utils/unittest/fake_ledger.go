package unittest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/jet-lab/lookup-table-registry-go/ledger"
	"github.com/jet-lab/lookup-table-registry-go/solana"
)

// FakeLedger is an in-memory AccountReader for tests. It serves accounts from
// a map, counts reads, injects failures per address, and can hold reads
// behind a gate so tests can overlap concurrent fetches deterministically.
type FakeLedger struct {
	mu       sync.Mutex
	slot     uint64
	accounts map[solana.PublicKey]*ledger.Account
	errs     map[solana.PublicKey]error
	gate     chan struct{}

	// GetAccountCalls counts GetAccount invocations, including gated and
	// failed ones.
	GetAccountCalls *atomic.Uint64
	// GetMultipleAccountsCalls counts GetMultipleAccounts invocations.
	GetMultipleAccountsCalls *atomic.Uint64
}

var _ ledger.AccountReader = (*FakeLedger)(nil)

func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		slot:                     1,
		accounts:                 make(map[solana.PublicKey]*ledger.Account),
		errs:                     make(map[solana.PublicKey]error),
		GetAccountCalls:          atomic.NewUint64(0),
		GetMultipleAccountsCalls: atomic.NewUint64(0),
	}
}

// SetSlot sets the slot reported with subsequent reads.
func (f *FakeLedger) SetSlot(slot uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slot = slot
}

// SetAccount stores an account, replacing any previous state for the address.
func (f *FakeLedger) SetAccount(address solana.PublicKey, account *ledger.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[address] = account
}

// RemoveAccount deletes an account, so reads report it as not found.
func (f *FakeLedger) RemoveAccount(address solana.PublicKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accounts, address)
}

// FailWith makes reads touching the address fail with err until cleared.
func (f *FakeLedger) FailWith(address solana.PublicKey, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[address] = err
}

// ClearFailure removes an injected failure.
func (f *FakeLedger) ClearFailure(address solana.PublicKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.errs, address)
}

// Gate holds subsequent reads until Release is called.
func (f *FakeLedger) Gate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// Release unblocks reads held by Gate.
func (f *FakeLedger) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

func (f *FakeLedger) waitGate(ctx context.Context) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakeLedger) GetAccount(ctx context.Context, address solana.PublicKey) (*ledger.Account, uint64, error) {
	f.GetAccountCalls.Inc()
	if err := f.waitGate(ctx); err != nil {
		return nil, 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[address]; ok {
		return nil, 0, err
	}
	account, ok := f.accounts[address]
	if !ok {
		return nil, f.slot, fmt.Errorf("account %s: %w", address, ledger.ErrAccountNotFound)
	}
	return cloneAccount(account), f.slot, nil
}

func (f *FakeLedger) GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*ledger.Account, uint64, error) {
	f.GetMultipleAccountsCalls.Inc()
	if err := f.waitGate(ctx); err != nil {
		return nil, 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	accounts := make([]*ledger.Account, len(addresses))
	for i, address := range addresses {
		if err, ok := f.errs[address]; ok {
			return nil, 0, err
		}
		if account, ok := f.accounts[address]; ok {
			accounts[i] = cloneAccount(account)
		}
	}
	return accounts, f.slot, nil
}

// cloneAccount copies the account so callers cannot mutate stored state.
func cloneAccount(account *ledger.Account) *ledger.Account {
	clone := *account
	clone.Data = append([]byte(nil), account.Data...)
	return &clone
}
