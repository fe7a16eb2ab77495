package recipient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glidepay/wallet-bot/internal/gateway"
	"github.com/glidepay/wallet-bot/internal/logging"
)

// fakeChecker answers per-email with an optional per-email delay so tests
// can interleave responses.
type fakeChecker struct {
	mu      sync.Mutex
	calls   int32
	delays  map[string]time.Duration
	answers map[string]*gateway.RecipientCheck
	errs    map[string]error
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{
		delays:  make(map[string]time.Duration),
		answers: make(map[string]*gateway.RecipientCheck),
		errs:    make(map[string]error),
	}
}

func (f *fakeChecker) CheckRecipient(ctx context.Context, email, senderCurrency string) (*gateway.RecipientCheck, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	delay := f.delays[email]
	answer := f.answers[email]
	err := f.errs[email]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if answer == nil {
		return &gateway.RecipientCheck{Exists: false, Message: "User not found with this email"}, nil
	}
	return answer, nil
}

func (f *fakeChecker) callCount() int32 {
	return atomic.LoadInt32(&f.calls)
}

type updateRecorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *updateRecorder) record(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *updateRecorder) last() Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return Update{}
	}
	return r.updates[len(r.updates)-1]
}

func waitForStatus(t *testing.T, res *Resolver, want Status) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		snap := res.Snapshot()
		if snap.Status == want {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("resolver never reached %v, stuck at %v", want, snap.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func aliceCheck() *gateway.RecipientCheck {
	return &gateway.RecipientCheck{
		Exists:            true,
		RecipientName:     "Alice",
		RecipientWalletID: 7,
		RecipientCurrency: "EUR",
		RecipientSymbol:   "€",
		ExchangeRate:      decimal.RequireFromString("0.92"),
	}
}

func TestResolveHappyPath(t *testing.T) {
	checker := newFakeChecker()
	checker.answers["alice@x.com"] = aliceCheck()

	res := New(context.Background(), checker, "me@x.com", 10*time.Millisecond, logging.Discard(), nil)
	defer res.Stop()

	res.SetCurrency("USD")
	res.SetEmail("alice@x.com")

	snap := waitForStatus(t, res, StatusResolved)
	require.NotNil(t, snap.Quote)
	assert.Equal(t, "Alice", snap.Quote.RecipientName)
	assert.Equal(t, "EUR", snap.Quote.RecipientCurrency)
	assert.True(t, snap.Quote.Rate.Equal(decimal.RequireFromString("0.92")))
}

func TestIdleUntilInputComplete(t *testing.T) {
	checker := newFakeChecker()

	res := New(context.Background(), checker, "me@x.com", 5*time.Millisecond, logging.Discard(), nil)
	defer res.Stop()

	res.SetCurrency("USD")
	res.SetEmail("alice")

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StatusIdle, res.Snapshot().Status)
	assert.EqualValues(t, 0, checker.callCount())
}

func TestSelfTransferRejectedWithoutNetworkCall(t *testing.T) {
	checker := newFakeChecker()

	res := New(context.Background(), checker, "Me@X.com", 5*time.Millisecond, logging.Discard(), nil)
	defer res.Stop()

	res.SetCurrency("USD")
	res.SetEmail("me@x.com")

	time.Sleep(40 * time.Millisecond)
	snap := res.Snapshot()
	assert.Equal(t, StatusRejected, snap.Status)
	assert.Equal(t, selfTransferReason, snap.Reason)
	assert.EqualValues(t, 0, checker.callCount())
}

func TestRecipientNotFound(t *testing.T) {
	checker := newFakeChecker()

	res := New(context.Background(), checker, "me@x.com", 5*time.Millisecond, logging.Discard(), nil)
	defer res.Stop()

	res.SetCurrency("USD")
	res.SetEmail("ghost@x.com")

	snap := waitForStatus(t, res, StatusRejected)
	assert.Equal(t, "User not found with this email", snap.Reason)
}

func TestDebounceCoalescesTyping(t *testing.T) {
	checker := newFakeChecker()
	checker.answers["alice@x.com"] = aliceCheck()

	res := New(context.Background(), checker, "me@x.com", 50*time.Millisecond, logging.Discard(), nil)
	defer res.Stop()

	res.SetCurrency("USD")
	// Typing within the quiet period must produce a single lookup for the
	// final stable input.
	res.SetEmail("a@x.com")
	time.Sleep(10 * time.Millisecond)
	res.SetEmail("ali@x.com")
	time.Sleep(10 * time.Millisecond)
	res.SetEmail("alice@x.com")

	waitForStatus(t, res, StatusResolved)
	assert.EqualValues(t, 1, checker.callCount())
}

func TestStaleResponseDiscarded(t *testing.T) {
	checker := newFakeChecker()
	// The lookup for the first input is slow; a quote for it must never be
	// applied once the input changed.
	checker.answers["a@x.com"] = &gateway.RecipientCheck{
		Exists:            true,
		RecipientName:     "Aaron",
		RecipientCurrency: "GBP",
		RecipientSymbol:   "£",
		ExchangeRate:      decimal.RequireFromString("0.79"),
	}
	checker.delays["a@x.com"] = 150 * time.Millisecond
	checker.answers["alice@x.com"] = aliceCheck()

	rec := &updateRecorder{}
	res := New(context.Background(), checker, "me@x.com", 10*time.Millisecond, logging.Discard(), rec.record)
	defer res.Stop()

	res.SetCurrency("USD")
	res.SetEmail("a@x.com")
	// Let the first lookup start, then supersede it.
	time.Sleep(30 * time.Millisecond)
	res.SetEmail("alice@x.com")

	snap := waitForStatus(t, res, StatusResolved)
	require.NotNil(t, snap.Quote)
	assert.Equal(t, "Alice", snap.Quote.RecipientName)

	// Wait past the slow response and confirm it never flickered in.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "Alice", res.Snapshot().Quote.RecipientName)
	assert.Equal(t, "Alice", rec.last().Quote.RecipientName)
}

func TestUpdatesCarryGeneration(t *testing.T) {
	checker := newFakeChecker()
	checker.answers["alice@x.com"] = aliceCheck()
	checker.answers["bob@x.com"] = &gateway.RecipientCheck{
		Exists:            true,
		RecipientName:     "Bob",
		RecipientCurrency: "USD",
		RecipientSymbol:   "$",
	}

	rec := &updateRecorder{}
	res := New(context.Background(), checker, "me@x.com", 10*time.Millisecond, logging.Discard(), rec.record)
	defer res.Stop()

	res.SetCurrency("USD")
	res.SetEmail("alice@x.com")
	first := waitForStatus(t, res, StatusResolved)

	res.SetEmail("bob@x.com")
	second := waitForStatus(t, res, StatusResolved)

	// Updates delivered outside the lock are matched against the snapshot;
	// one for superseded input no longer carries the current generation.
	assert.NotEqual(t, first.Gen, second.Gen)
	assert.Equal(t, second.Gen, res.Snapshot().Gen)
	assert.Equal(t, second.Gen, rec.last().Gen)
	assert.NotEqual(t, first.Gen, res.Snapshot().Gen)
}

func TestCurrencyChangeInvalidatesQuote(t *testing.T) {
	checker := newFakeChecker()
	checker.answers["alice@x.com"] = aliceCheck()

	res := New(context.Background(), checker, "me@x.com", 10*time.Millisecond, logging.Discard(), nil)
	defer res.Stop()

	res.SetCurrency("USD")
	res.SetEmail("alice@x.com")
	waitForStatus(t, res, StatusResolved)

	// Switching the source wallet drops the quote and re-resolves.
	res.SetCurrency("GBP")
	assert.Equal(t, StatusPending, res.Snapshot().Status)
	assert.Nil(t, res.Snapshot().Quote)

	waitForStatus(t, res, StatusResolved)
	assert.EqualValues(t, 2, checker.callCount())
}

func TestStopPreventsPendingLookup(t *testing.T) {
	checker := newFakeChecker()
	checker.answers["alice@x.com"] = aliceCheck()

	res := New(context.Background(), checker, "me@x.com", 50*time.Millisecond, logging.Discard(), nil)

	res.SetCurrency("USD")
	res.SetEmail("alice@x.com")
	res.Stop()

	time.Sleep(120 * time.Millisecond)
	assert.EqualValues(t, 0, checker.callCount())
}
