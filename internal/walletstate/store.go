// Package walletstate holds the client's view of the user's wallets. It is
// shared across flows; every mutation is a full-record replace from a
// Gateway response, never a locally computed delta.
package walletstate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glidepay/wallet-bot/internal/gateway"
)

// Fetcher is the Gateway read the reconciler depends on.
type Fetcher interface {
	Wallets(ctx context.Context, userID int64) ([]gateway.Wallet, error)
}

// Store caches the latest authoritative wallet records for one session.
type Store struct {
	fetcher Fetcher
	userID  int64
	log     *slog.Logger

	mu      sync.RWMutex
	wallets map[int64]gateway.Wallet
	order   []int64
	pending map[int64]bool
}

// NewStore creates an empty store for the session's user.
func NewStore(fetcher Fetcher, userID int64, log *slog.Logger) *Store {
	return &Store{
		fetcher: fetcher,
		userID:  userID,
		log:     log,
		wallets: make(map[int64]gateway.Wallet),
		pending: make(map[int64]bool),
	}
}

// Refresh fetches the full wallet list and replaces all local state.
func (s *Store) Refresh(ctx context.Context) error {
	wallets, err := s.fetcher.Wallets(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("fetch wallets: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = make(map[int64]gateway.Wallet, len(wallets))
	s.order = s.order[:0]
	for _, w := range wallets {
		s.wallets[w.ID] = w
		s.order = append(s.order, w.ID)
	}
	s.pending = make(map[int64]bool)
	return nil
}

// Reconcile re-fetches the wallets known to have changed and replaces their
// records. On failure the ids are marked pending-refresh so the UI shows
// them as such instead of showing stale numbers as current.
func (s *Store) Reconcile(ctx context.Context, ids ...int64) error {
	wallets, err := s.fetcher.Wallets(ctx, s.userID)
	if err != nil {
		s.mu.Lock()
		for _, id := range ids {
			s.pending[id] = true
		}
		s.mu.Unlock()
		s.log.Warn("wallet reconciliation failed, balances pending refresh", "error", err, "wallet_ids", ids)
		return fmt.Errorf("reconcile wallets: %w", err)
	}

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	// Last response to arrive wins; each Gateway response is self-consistent.
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range wallets {
		if !wanted[w.ID] {
			continue
		}
		if _, known := s.wallets[w.ID]; !known {
			s.order = append(s.order, w.ID)
		}
		s.wallets[w.ID] = w
		delete(s.pending, w.ID)
	}
	return nil
}

// MergeWallet applies one authoritative record, e.g. the updated wallet a
// funding confirmation returns.
func (s *Store) MergeWallet(w gateway.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, known := s.wallets[w.ID]; !known {
		s.order = append(s.order, w.ID)
	}
	s.wallets[w.ID] = w
	delete(s.pending, w.ID)
}

// Get returns the cached record for a wallet.
func (s *Store) Get(id int64) (gateway.Wallet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	return w, ok
}

// List returns the wallets in Gateway order.
func (s *Store) List() []gateway.Wallet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]gateway.Wallet, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.wallets[id])
	}
	return out
}

// Pending reports whether a wallet's displayed balance is awaiting a
// post-mutation refresh.
func (s *Store) Pending(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending[id]
}
