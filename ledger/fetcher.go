package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"

	"github.com/jet-lab/lookup-table-registry-go/metrics"
	"github.com/jet-lab/lookup-table-registry-go/solana"
)

// MaxBatchSize is the most addresses a node accepts in one batched read.
const MaxBatchSize = 100

// retryJitterPercent spreads retry delays to avoid synchronized retries.
const retryJitterPercent = 15

// FetcherConfig contains the retry and circuit breaker settings for ledger
// reads.
type FetcherConfig struct {
	// the initial delay used in the exponential backoff for failed read
	// retries.
	RetryDelay time.Duration
	// the max delay used in the exponential backoff for failed reads.
	MaxRetryDelay time.Duration
	// the maximum number of retries after the initial attempt. 0 disables
	// retrying.
	MaxRetries uint64
	// the number of consecutive failures after which the circuit breaker
	// opens. 0 disables the breaker.
	BreakerFailures uint32
	// how long the breaker stays open before admitting a probe request.
	BreakerCooldown time.Duration
	// the largest number of addresses sent in one batched read. Must not
	// exceed MaxBatchSize.
	BatchSize int
}

// DefaultFetcherConfig returns the fetcher settings used in production.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		RetryDelay:      100 * time.Millisecond,
		MaxRetryDelay:   2 * time.Second,
		MaxRetries:      2,
		BreakerFailures: 5,
		BreakerCooldown: 10 * time.Second,
		BatchSize:       MaxBatchSize,
	}
}

// Fetcher wraps an AccountReader with bounded retries for transient failures
// and a circuit breaker that stops hammering an unhealthy node. It implements
// AccountReader itself, so callers cannot tell it apart from a raw reader.
type Fetcher struct {
	log     zerolog.Logger
	metrics metrics.Collector
	reader  AccountReader
	cfg     FetcherConfig
	breaker *gobreaker.CircuitBreaker
}

var _ AccountReader = (*Fetcher)(nil)

// NewFetcher wraps reader with the retry and circuit breaker policies from
// cfg.
func NewFetcher(log zerolog.Logger, collector metrics.Collector, reader AccountReader, cfg FetcherConfig) (*Fetcher, error) {
	if cfg.RetryDelay <= 0 {
		return nil, fmt.Errorf("retry delay must be positive, got %s", cfg.RetryDelay)
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		return nil, fmt.Errorf("max retry delay %s must not be below retry delay %s", cfg.MaxRetryDelay, cfg.RetryDelay)
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		return nil, fmt.Errorf("batch size must be between 1 and %d, got %d", MaxBatchSize, cfg.BatchSize)
	}

	f := &Fetcher{
		log:     log.With().Str("component", "ledger_fetcher").Logger(),
		metrics: collector,
		reader:  reader,
		cfg:     cfg,
	}

	if cfg.BreakerFailures > 0 {
		f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "ledger_fetcher",
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailures
			},
			// an authoritative miss, a rejected request and a canceled caller
			// are all healthy answers from the node's point of view
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, ErrAccountNotFound) ||
					IsNodeRejectedError(err) ||
					errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				f.log.Warn().
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
		})
	}
	return f, nil
}

// GetAccount reads one account, retrying transient failures.
//
// Expected errors:
//   - ErrAccountNotFound (wrapped) if no account exists at the address
//   - TransientError if the read kept failing after all retries
//   - NodeRejectedError if the node rejected the request as invalid
func (f *Fetcher) GetAccount(ctx context.Context, address solana.PublicKey) (*Account, uint64, error) {
	lg := f.log.With().Str("address", address.String()).Logger()
	start := time.Now()
	f.metrics.FetchStarted()

	var account *Account
	var slot uint64
	err := f.withRetry(ctx, lg, func(ctx context.Context) error {
		return f.execute(ctx, func(ctx context.Context) error {
			var err error
			account, slot, err = f.reader.GetAccount(ctx, address)
			return err
		})
	})

	f.metrics.FetchFinished(time.Since(start), err == nil || errors.Is(err, ErrAccountNotFound))
	if err != nil {
		return nil, 0, err
	}
	return account, slot, nil
}

// GetMultipleAccounts reads the accounts at the given addresses, batching the
// request to the node's limit and retrying transient failures per batch.
// Missing accounts come back as nil entries in the same positions.
//
// The returned slot is the lowest slot any batch was served at, so the result
// never claims to be fresher than its oldest part.
//
// Expected errors:
//   - TransientError if a batch kept failing after all retries
//   - NodeRejectedError if the node rejected a batch as invalid
func (f *Fetcher) GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*Account, uint64, error) {
	if len(addresses) == 0 {
		return nil, 0, nil
	}

	start := time.Now()
	f.metrics.FetchStarted()

	accounts := make([]*Account, 0, len(addresses))
	var slot uint64
	for begin := 0; begin < len(addresses); begin += f.cfg.BatchSize {
		end := begin + f.cfg.BatchSize
		if end > len(addresses) {
			end = len(addresses)
		}
		chunk := addresses[begin:end]

		var chunkAccounts []*Account
		var chunkSlot uint64
		err := f.withRetry(ctx, f.log, func(ctx context.Context) error {
			return f.execute(ctx, func(ctx context.Context) error {
				var err error
				chunkAccounts, chunkSlot, err = f.reader.GetMultipleAccounts(ctx, chunk)
				return err
			})
		})
		if err != nil {
			f.metrics.FetchFinished(time.Since(start), false)
			return nil, 0, err
		}
		if len(chunkAccounts) != len(chunk) {
			f.metrics.FetchFinished(time.Since(start), false)
			return nil, 0, NewTransientError(fmt.Errorf("node returned %d accounts for %d addresses", len(chunkAccounts), len(chunk)))
		}

		accounts = append(accounts, chunkAccounts...)
		if slot == 0 || chunkSlot < slot {
			slot = chunkSlot
		}
	}

	f.metrics.FetchFinished(time.Since(start), true)
	return accounts, slot, nil
}

// withRetry runs fn, retrying transient failures with capped exponential
// backoff and jitter. Any other failure aborts immediately.
func (f *Fetcher) withRetry(ctx context.Context, lg zerolog.Logger, fn func(context.Context) error) error {
	backoff, err := retry.NewExponential(f.cfg.RetryDelay)
	if err != nil {
		return fmt.Errorf("could not create retry backoff: %w", err)
	}
	backoff = retry.WithCappedDuration(f.cfg.MaxRetryDelay, backoff)
	backoff = retry.WithJitterPercent(retryJitterPercent, backoff)
	backoff = retry.WithMaxRetries(f.cfg.MaxRetries, backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			lg.Debug().Int("attempt", attempt).Msg("retrying ledger read")
			f.metrics.FetchRetried()
		}
		attempt++

		err := fn(ctx)
		if IsTransientError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// execute runs fn through the circuit breaker when one is configured. A read
// refused by an open breaker comes back as a TransientError, so the retry
// policy backs off and callers can classify it like any other outage.
func (f *Fetcher) execute(ctx context.Context, fn func(context.Context) error) error {
	if f.breaker == nil {
		return fn(ctx)
	}
	_, err := f.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NewTransientError(err)
	}
	return err
}
