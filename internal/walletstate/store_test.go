package walletstate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glidepay/wallet-bot/internal/gateway"
	"github.com/glidepay/wallet-bot/internal/logging"
)

type fakeFetcher struct {
	mu      sync.Mutex
	wallets []gateway.Wallet
	err     error
	calls   int
}

func (f *fakeFetcher) Wallets(ctx context.Context, userID int64) ([]gateway.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]gateway.Wallet, len(f.wallets))
	copy(out, f.wallets)
	return out, nil
}

func (f *fakeFetcher) set(wallets []gateway.Wallet, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wallets = wallets
	f.err = err
}

func usd(balance string) gateway.Wallet {
	return gateway.Wallet{ID: 1, Currency: "USD", Symbol: "$", Balance: decimal.RequireFromString(balance)}
}

func eur(balance string) gateway.Wallet {
	return gateway.Wallet{ID: 2, Currency: "EUR", Symbol: "€", Balance: decimal.RequireFromString(balance)}
}

func TestRefreshReplacesAll(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set([]gateway.Wallet{usd("1250.50"), eur("300")}, nil)

	store := NewStore(fetcher, 1, logging.Discard())
	require.NoError(t, store.Refresh(context.Background()))

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "USD", list[0].Currency)
	assert.Equal(t, "EUR", list[1].Currency)
}

func TestReconcileReplacesOnlyNamedWallets(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set([]gateway.Wallet{usd("1250.50"), eur("300")}, nil)

	store := NewStore(fetcher, 1, logging.Discard())
	require.NoError(t, store.Refresh(context.Background()))

	fetcher.set([]gateway.Wallet{usd("1150.50"), eur("392")}, nil)
	require.NoError(t, store.Reconcile(context.Background(), 1))

	w1, _ := store.Get(1)
	w2, _ := store.Get(2)
	assert.True(t, w1.Balance.Equal(decimal.RequireFromString("1150.50")))
	// Wallet 2 was not named, so its record is untouched.
	assert.True(t, w2.Balance.Equal(decimal.RequireFromString("300")))
}

func TestReconcileIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set([]gateway.Wallet{usd("1150.50")}, nil)

	store := NewStore(fetcher, 1, logging.Discard())
	require.NoError(t, store.Reconcile(context.Background(), 1))
	require.NoError(t, store.Reconcile(context.Background(), 1))

	w, ok := store.Get(1)
	require.True(t, ok)
	assert.True(t, w.Balance.Equal(decimal.RequireFromString("1150.50")))
	assert.Len(t, store.List(), 1)
}

func TestReconcileFailureMarksPending(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set([]gateway.Wallet{usd("1250.50")}, nil)

	store := NewStore(fetcher, 1, logging.Discard())
	require.NoError(t, store.Refresh(context.Background()))

	fetcher.set(nil, errors.New("gateway down"))
	err := store.Reconcile(context.Background(), 1)
	require.Error(t, err)

	// The stale value stays visible but is flagged, not presented as current.
	assert.True(t, store.Pending(1))
	w, _ := store.Get(1)
	assert.True(t, w.Balance.Equal(decimal.RequireFromString("1250.50")))
}

func TestSuccessfulReconcileClearsPending(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set([]gateway.Wallet{usd("1250.50")}, nil)

	store := NewStore(fetcher, 1, logging.Discard())
	require.NoError(t, store.Refresh(context.Background()))

	fetcher.set(nil, errors.New("gateway down"))
	_ = store.Reconcile(context.Background(), 1)
	require.True(t, store.Pending(1))

	fetcher.set([]gateway.Wallet{usd("1150.50")}, nil)
	require.NoError(t, store.Reconcile(context.Background(), 1))
	assert.False(t, store.Pending(1))
}

func TestMergeWalletAppliesAuthoritativeRecord(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set([]gateway.Wallet{usd("100")}, nil)

	store := NewStore(fetcher, 1, logging.Discard())
	require.NoError(t, store.Refresh(context.Background()))

	store.MergeWallet(usd("350"))
	w, _ := store.Get(1)
	assert.True(t, w.Balance.Equal(decimal.RequireFromString("350")))
}
