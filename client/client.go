// Package client provides the lookup table registry client: cached,
// deduplicated resolution of on-chain registries, bulk refresh, and matching
// of instruction accounts against the resolved tables.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jet-lab/lookup-table-registry-go/cache"
	"github.com/jet-lab/lookup-table-registry-go/inflight"
	"github.com/jet-lab/lookup-table-registry-go/ledger"
	"github.com/jet-lab/lookup-table-registry-go/metrics"
	"github.com/jet-lab/lookup-table-registry-go/registry"
	"github.com/jet-lab/lookup-table-registry-go/solana"
)

// Client resolves lookup table registries from the ledger and caches the
// results. It is safe for concurrent use.
type Client struct {
	log     zerolog.Logger
	metrics metrics.Collector
	cfg     Config

	programID solana.PublicKey
	fetcher   *ledger.Fetcher
	cache     *cache.Cache
	group     *inflight.Group[solana.PublicKey, *registry.Registry]
}

// New creates a client resolving registries owned by programID through
// reader. The reader is wrapped with the configured retry and circuit
// breaker policies; pass an unwrapped rpc.Client or any AccountReader.
func New(log zerolog.Logger, collector metrics.Collector, reader ledger.AccountReader, programID solana.PublicKey, opts ...Option) (*Client, error) {
	if programID.IsZero() {
		return nil, errors.New("registry program id must be set")
	}

	cfg := DefaultConfig()
	for _, apply := range opts {
		apply(&cfg)
	}
	if cfg.RefreshConcurrency <= 0 {
		return nil, fmt.Errorf("refresh concurrency must be positive, got %d", cfg.RefreshConcurrency)
	}

	fetcher, err := ledger.NewFetcher(log, collector, reader, cfg.Fetcher)
	if err != nil {
		return nil, fmt.Errorf("could not create ledger fetcher: %w", err)
	}
	resolutionCache, err := cache.NewCache(log, collector, cfg.CacheCapacity, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("could not create resolution cache: %w", err)
	}

	return &Client{
		log:       log.With().Str("component", "registry_client").Logger(),
		metrics:   collector,
		cfg:       cfg,
		programID: programID,
		fetcher:   fetcher,
		cache:     resolutionCache,
		group:     inflight.NewGroup[solana.PublicKey, *registry.Registry](),
	}, nil
}

// Lookup returns the resolved registry for the authority, serving from the
// cache when a live entry exists and resolving from the ledger otherwise.
// Concurrent lookups of the same authority share a single ledger resolution
// and receive its result.
//
// Expected errors:
//   - AbsentError if the ledger holds no registry for the authority
//   - DecodeFailureError if the on-chain state could not be decoded
//   - RetryableError if the ledger could not be read right now
func (c *Client) Lookup(ctx context.Context, authority solana.PublicKey) (*registry.Registry, error) {
	if record, ok := c.cache.Get(authority); ok {
		return record, nil
	}
	return c.refresh(ctx, authority)
}

// UpdateRegistries refreshes the cached records of the given authorities
// from the ledger. It is best-effort: one authority failing does not stop
// the others. It returns the authorities whose refresh failed together with
// an error aggregating their failures, or nil when everything succeeded.
func (c *Client) UpdateRegistries(ctx context.Context, authorities []solana.PublicKey) ([]solana.PublicKey, error) {
	var (
		mu     sync.Mutex
		failed []solana.PublicKey
		merr   *multierror.Error
	)

	var g errgroup.Group
	g.SetLimit(c.cfg.RefreshConcurrency)
	for _, authority := range authorities {
		authority := authority
		g.Go(func() error {
			if _, err := c.refresh(ctx, authority); err != nil {
				c.log.Warn().Err(err).Str("authority", authority.String()).Msg("registry refresh failed")
				mu.Lock()
				failed = append(failed, authority)
				merr = multierror.Append(merr, fmt.Errorf("authority %s: %w", authority, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return failed, merr.ErrorOrNil()
}

// Instruction is the account footprint of one instruction: the program
// being called and the accounts passed to it.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.PublicKey
}

// FindAddressesResult reports which cached lookup tables cover the accounts
// a set of instructions touches.
type FindAddressesResult struct {
	// Addresses lists the lookup tables worth referencing.
	Addresses []solana.PublicKey
	// DistinctAccounts counts the distinct account keys in the input,
	// programs included.
	DistinctAccounts int
	// UnmatchedAccounts counts the distinct keys no selected table covers.
	UnmatchedAccounts int
}

// FindAddresses selects, among the cached registries of the given
// authorities, the lookup tables that cover the accounts the instructions
// touch. A table is selected when it stores more than one of the not yet
// covered accounts; deactivated tables are never selected. Only the cache
// is consulted; resolve authorities with Lookup or UpdateRegistries first.
func (c *Client) FindAddresses(instructions []Instruction, authorities []solana.PublicKey) FindAddressesResult {
	remaining := make(map[solana.PublicKey]struct{})
	for _, instruction := range instructions {
		remaining[instruction.ProgramID] = struct{}{}
		for _, account := range instruction.Accounts {
			remaining[account] = struct{}{}
		}
	}
	distinct := len(remaining)

	var selected []solana.PublicKey
	for _, authority := range authorities {
		record, ok := c.cache.Get(authority)
		if !ok {
			c.log.Debug().Str("authority", authority.String()).Msg("no cached registry for authority")
			continue
		}

		for i := range record.Tables {
			table := &record.Tables[i]
			if !table.IsActive() {
				continue
			}
			covered := coveredAccounts(remaining, table.Addresses)
			if len(covered) > 1 {
				selected = append(selected, table.Table)
				for _, account := range covered {
					delete(remaining, account)
				}
			}
		}
	}

	return FindAddressesResult{
		Addresses:         selected,
		DistinctAccounts:  distinct,
		UnmatchedAccounts: len(remaining),
	}
}

// Close drops the client's cached state. The client must not be used
// afterwards.
func (c *Client) Close() error {
	c.cache.Purge()
	return nil
}

// refresh resolves the authority's registry from the ledger, attaching to a
// resolution already in flight when one exists, and maps failures onto the
// public error taxonomy.
func (c *Client) refresh(ctx context.Context, authority solana.PublicKey) (*registry.Registry, error) {
	record, started, err := c.group.Do(ctx, authority, func(ctx context.Context) (*registry.Registry, error) {
		return c.resolve(ctx, authority)
	})
	if !started {
		c.metrics.LookupDeduplicated()
	}
	if err != nil {
		return nil, c.classify(authority, err)
	}
	return record, nil
}

// resolve reads the registry account and the lookup tables it references,
// composes the record and stores it. It runs inside the shared in-flight
// resolution, so its cache side effects happen exactly once no matter how
// many callers are attached.
func (c *Client) resolve(ctx context.Context, authority solana.PublicKey) (*registry.Registry, error) {
	lg := c.log.With().Str("authority", authority.String()).Logger()

	registryAddress, err := registry.DeriveRegistryAddress(c.programID, authority)
	if err != nil {
		return nil, err
	}

	account, slot, err := c.fetcher.GetAccount(ctx, registryAddress)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			// the ledger answered authoritatively: whatever we had cached no
			// longer reflects it
			c.cache.Invalidate(authority)
		}
		return nil, err
	}

	registryAccount, err := registry.DecodeRegistryAccount(account.Data)
	if err != nil {
		c.cache.Invalidate(authority)
		return nil, err
	}

	record := &registry.Registry{
		Authority: authority,
		Version:   registryAccount.Version,
		Slot:      slot,
	}

	var refs []registry.TableRef
	var tableAddresses []solana.PublicKey
	for _, ref := range registryAccount.Tables {
		if !ref.IsLive() {
			continue
		}
		refs = append(refs, ref)
		tableAddresses = append(tableAddresses, ref.Table)
	}

	if len(tableAddresses) > 0 {
		accounts, _, err := c.fetcher.GetMultipleAccounts(ctx, tableAddresses)
		if err != nil {
			return nil, err
		}

		record.Tables = make([]registry.Entry, 0, len(refs))
		for i, tableAccount := range accounts {
			ref := refs[i]
			if tableAccount == nil {
				lg.Debug().Str("table", ref.Table.String()).Msg("lookup table account missing, skipping")
				continue
			}
			table, err := registry.DecodeLookupTable(tableAccount.Data)
			if err != nil {
				lg.Warn().Err(err).Str("table", ref.Table.String()).Msg("could not decode lookup table, skipping")
				continue
			}
			record.Tables = append(record.Tables, registry.Entry{
				Discriminator:    ref.Discriminator,
				Table:            ref.Table,
				Authority:        table.Authority,
				DeactivationSlot: table.DeactivationSlot,
				LastExtendedSlot: table.LastExtendedSlot,
				Addresses:        table.Addresses,
			})
		}
	}

	if previous, ok := c.cache.Peek(authority); ok {
		c.mergePreserving(lg, previous, record)
	}

	if !c.cache.Put(authority, record) {
		// a racing refresh stored newer ledger state; serve that instead
		if current, ok := c.cache.Peek(authority); ok {
			return current, nil
		}
	}

	c.metrics.RegistryResolved(len(record.Tables), record.AddressCount())
	lg.Debug().
		Uint64("slot", record.Slot).
		Int("tables", len(record.Tables)).
		Int("addresses", record.AddressCount()).
		Msg("registry resolved")
	return record, nil
}

// mergePreserving carries previously observed addresses forward when a fresh
// read of a still active table comes back shorter. Active tables only ever
// grow, so a shrink means the read raced an extension or hit inconsistent
// state; dropping addresses would orphan references callers already hold.
func (c *Client) mergePreserving(lg zerolog.Logger, previous, next *registry.Registry) {
	for i := range next.Tables {
		table := &next.Tables[i]
		if !table.IsActive() {
			continue
		}
		prior, ok := previous.Table(table.Table)
		if !ok {
			continue
		}
		if len(table.Addresses) < len(prior.Addresses) {
			lg.Warn().
				Str("table", table.Table.String()).
				Int("previous", len(prior.Addresses)).
				Int("fresh", len(table.Addresses)).
				Msg("active lookup table shrank on refresh, keeping previously observed addresses")
			table.Addresses = prior.Addresses
		}
	}
}

// classify maps resolution failures onto the public error taxonomy. Caller
// cancellations, rejected requests and programming errors pass through
// unchanged.
func (c *Client) classify(authority solana.PublicKey, err error) error {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return NewAbsentError(authority, err)
	case registry.IsMalformedAccountError(err) || registry.IsUnsupportedVersionError(err):
		return NewDecodeFailureError(err)
	case ledger.IsTransientError(err):
		return NewRetryableError(err)
	default:
		return err
	}
}

// coveredAccounts returns the keys from remaining that the table stores.
// Duplicate table addresses count once.
func coveredAccounts(remaining map[solana.PublicKey]struct{}, addresses []solana.PublicKey) []solana.PublicKey {
	var covered []solana.PublicKey
	seen := make(map[solana.PublicKey]struct{}, len(addresses))
	for _, address := range addresses {
		if _, dup := seen[address]; dup {
			continue
		}
		seen[address] = struct{}{}
		if _, ok := remaining[address]; ok {
			covered = append(covered, address)
		}
	}
	return covered
}
