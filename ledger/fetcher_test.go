package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jet-lab/lookup-table-registry-go/ledger"
	"github.com/jet-lab/lookup-table-registry-go/metrics"
	"github.com/jet-lab/lookup-table-registry-go/solana"
	"github.com/jet-lab/lookup-table-registry-go/utils/unittest"
)

// flakyReader fails reads with the configured error until the failure budget
// is used up, then serves the stored account.
type flakyReader struct {
	mu       sync.Mutex
	failures int
	err      error
	account  *ledger.Account
	slot     uint64
	calls    int
}

var _ ledger.AccountReader = (*flakyReader)(nil)

func (r *flakyReader) GetAccount(_ context.Context, _ solana.PublicKey) (*ledger.Account, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failures > 0 {
		r.failures--
		return nil, 0, r.err
	}
	if r.account == nil {
		return nil, r.slot, fmt.Errorf("account: %w", ledger.ErrAccountNotFound)
	}
	return r.account, r.slot, nil
}

func (r *flakyReader) GetMultipleAccounts(_ context.Context, addresses []solana.PublicKey) ([]*ledger.Account, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failures > 0 {
		r.failures--
		return nil, 0, r.err
	}
	accounts := make([]*ledger.Account, len(addresses))
	for i := range addresses {
		accounts[i] = r.account
	}
	return accounts, r.slot, nil
}

func (r *flakyReader) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func testConfig() ledger.FetcherConfig {
	cfg := ledger.DefaultFetcherConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 5 * time.Millisecond
	cfg.BreakerFailures = 0
	return cfg
}

func TestFetcherGetAccount(t *testing.T) {
	address := unittest.PublicKeyFixture()
	account := &ledger.Account{Data: []byte{1, 2, 3}, Owner: unittest.PublicKeyFixture(), Lamports: 100}

	fake := unittest.NewFakeLedger()
	fake.SetSlot(42)
	fake.SetAccount(address, account)

	fetcher, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), fake, testConfig())
	require.NoError(t, err)

	got, slot, err := fetcher.GetAccount(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, account.Data, got.Data)
	assert.Equal(t, uint64(42), slot)
	assert.Equal(t, uint64(1), fake.GetAccountCalls.Load())
}

func TestFetcherRetriesTransientFailures(t *testing.T) {
	t.Run("succeeds once the failure clears", func(t *testing.T) {
		reader := &flakyReader{
			failures: 2,
			err:      ledger.NewTransientError(errors.New("connection reset")),
			account:  &ledger.Account{Data: []byte{9}},
			slot:     7,
		}

		cfg := testConfig()
		cfg.MaxRetries = 3
		fetcher, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), reader, cfg)
		require.NoError(t, err)

		account, slot, err := fetcher.GetAccount(context.Background(), unittest.PublicKeyFixture())
		require.NoError(t, err)
		assert.Equal(t, []byte{9}, account.Data)
		assert.Equal(t, uint64(7), slot)
		assert.Equal(t, 3, reader.callCount())
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		reader := &flakyReader{
			failures: 100,
			err:      ledger.NewTransientError(errors.New("connection reset")),
		}

		cfg := testConfig()
		cfg.MaxRetries = 2
		fetcher, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), reader, cfg)
		require.NoError(t, err)

		_, _, err = fetcher.GetAccount(context.Background(), unittest.PublicKeyFixture())
		require.Error(t, err)
		assert.True(t, ledger.IsTransientError(err))
		// one initial attempt plus two retries
		assert.Equal(t, 3, reader.callCount())
	})
}

func TestFetcherDoesNotRetryAuthoritativeAnswers(t *testing.T) {
	t.Run("account not found", func(t *testing.T) {
		reader := &flakyReader{}

		cfg := testConfig()
		cfg.MaxRetries = 5
		fetcher, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), reader, cfg)
		require.NoError(t, err)

		_, _, err = fetcher.GetAccount(context.Background(), unittest.PublicKeyFixture())
		require.ErrorIs(t, err, ledger.ErrAccountNotFound)
		assert.Equal(t, 1, reader.callCount())
	})

	t.Run("node rejected request", func(t *testing.T) {
		reader := &flakyReader{
			failures: 100,
			err:      ledger.NewNodeRejectedError(-32602, "invalid params"),
		}

		cfg := testConfig()
		cfg.MaxRetries = 5
		fetcher, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), reader, cfg)
		require.NoError(t, err)

		_, _, err = fetcher.GetAccount(context.Background(), unittest.PublicKeyFixture())
		require.Error(t, err)
		assert.True(t, ledger.IsNodeRejectedError(err))
		assert.False(t, ledger.IsTransientError(err))
		assert.Equal(t, 1, reader.callCount())
	})
}

func TestFetcherHonorsContextCancellation(t *testing.T) {
	fake := unittest.NewFakeLedger()
	fake.Gate()
	defer fake.Release()

	fetcher, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), fake, testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	var readErr error
	unittest.RequireReturnsBefore(t, func() {
		_, _, readErr = fetcher.GetAccount(ctx, unittest.PublicKeyFixture())
	}, time.Second)
	require.Error(t, readErr)
	assert.ErrorIs(t, readErr, context.Canceled)
}

func TestFetcherCircuitBreaker(t *testing.T) {
	t.Run("opens after consecutive failures", func(t *testing.T) {
		reader := &flakyReader{
			failures: 100,
			err:      ledger.NewTransientError(errors.New("node down")),
		}

		cfg := testConfig()
		cfg.MaxRetries = 0
		cfg.BreakerFailures = 2
		cfg.BreakerCooldown = time.Hour
		fetcher, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), reader, cfg)
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			_, _, err := fetcher.GetAccount(context.Background(), unittest.PublicKeyFixture())
			require.Error(t, err)
		}
		assert.Equal(t, 2, reader.callCount())

		// the breaker is open now, reads fail without reaching the node
		_, _, err = fetcher.GetAccount(context.Background(), unittest.PublicKeyFixture())
		require.Error(t, err)
		assert.True(t, ledger.IsTransientError(err))
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		assert.Equal(t, 2, reader.callCount())
	})

	t.Run("not found does not trip the breaker", func(t *testing.T) {
		reader := &flakyReader{}

		cfg := testConfig()
		cfg.MaxRetries = 0
		cfg.BreakerFailures = 2
		cfg.BreakerCooldown = time.Hour
		fetcher, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), reader, cfg)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			_, _, err := fetcher.GetAccount(context.Background(), unittest.PublicKeyFixture())
			require.ErrorIs(t, err, ledger.ErrAccountNotFound)
		}
		assert.Equal(t, 5, reader.callCount())
	})
}

func TestFetcherGetMultipleAccounts(t *testing.T) {
	t.Run("batches large reads", func(t *testing.T) {
		fake := unittest.NewFakeLedger()
		fake.SetSlot(10)
		addresses := unittest.PublicKeyFixtures(5)
		for i, address := range addresses {
			if i%2 == 0 {
				fake.SetAccount(address, &ledger.Account{Data: []byte{byte(i)}})
			}
		}

		cfg := testConfig()
		cfg.BatchSize = 2
		fetcher, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), fake, cfg)
		require.NoError(t, err)

		accounts, slot, err := fetcher.GetMultipleAccounts(context.Background(), addresses)
		require.NoError(t, err)
		require.Len(t, accounts, 5)
		assert.Equal(t, uint64(10), slot)
		assert.Equal(t, uint64(3), fake.GetMultipleAccountsCalls.Load())

		for i, account := range accounts {
			if i%2 == 0 {
				require.NotNil(t, account, "account %d", i)
				assert.Equal(t, []byte{byte(i)}, account.Data)
			} else {
				assert.Nil(t, account, "account %d", i)
			}
		}
	})

	t.Run("empty input needs no read", func(t *testing.T) {
		fake := unittest.NewFakeLedger()
		fetcher, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), fake, testConfig())
		require.NoError(t, err)

		accounts, _, err := fetcher.GetMultipleAccounts(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, accounts)
		assert.Zero(t, fake.GetMultipleAccountsCalls.Load())
	})

	t.Run("failures surface from any batch", func(t *testing.T) {
		fake := unittest.NewFakeLedger()
		addresses := unittest.PublicKeyFixtures(4)
		fake.FailWith(addresses[3], ledger.NewTransientError(errors.New("timeout")))

		cfg := testConfig()
		cfg.BatchSize = 2
		cfg.MaxRetries = 1
		fetcher, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), fake, cfg)
		require.NoError(t, err)

		_, _, err = fetcher.GetMultipleAccounts(context.Background(), addresses)
		require.Error(t, err)
		assert.True(t, ledger.IsTransientError(err))
	})
}

func TestNewFetcherValidatesConfig(t *testing.T) {
	fake := unittest.NewFakeLedger()

	t.Run("retry delay", func(t *testing.T) {
		cfg := testConfig()
		cfg.RetryDelay = 0
		_, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), fake, cfg)
		require.Error(t, err)
	})

	t.Run("max retry delay", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxRetryDelay = cfg.RetryDelay - 1
		_, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), fake, cfg)
		require.Error(t, err)
	})

	t.Run("batch size", func(t *testing.T) {
		cfg := testConfig()
		cfg.BatchSize = ledger.MaxBatchSize + 1
		_, err := ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), fake, cfg)
		require.Error(t, err)

		cfg.BatchSize = 0
		_, err = ledger.NewFetcher(unittest.Logger(), metrics.NewNoopCollector(), fake, cfg)
		require.Error(t, err)
	})
}
