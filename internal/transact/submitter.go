// Package transact drives a single money-movement attempt from draft to a
// confirmed, reconciled outcome. One Submitter instance backs one flow.
package transact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/glidepay/wallet-bot/internal/gateway"
	"github.com/glidepay/wallet-bot/internal/money"
	"github.com/glidepay/wallet-bot/internal/recipient"
)

// State of a submission attempt.
type State int

const (
	StateEditing State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEditing:
		return "editing"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrInFlight means a mutation for this draft is already on the wire;
	// the caller must treat the second attempt as a no-op.
	ErrInFlight = errors.New("submission already in flight")

	// ErrDraftInvalid means the local gate rejected the draft before any
	// network call. Unwrap the reason for display.
	ErrDraftInvalid = errors.New("draft failed validation")

	// ErrDone means the attempt already reached a terminal state. A failed
	// attempt must be acknowledged before the draft can go out again; a
	// succeeded one never can.
	ErrDone = errors.New("submission already completed")
)

// Gateway is the mutating surface the submitter drives. Exactly one call is
// issued per attempt; nothing is ever retried automatically.
type Gateway interface {
	SendMoney(ctx context.Context, req gateway.SendMoneyRequest) (*gateway.TransferResult, error)
	ConvertCurrency(ctx context.Context, req gateway.ConvertRequest) (*gateway.ConversionResult, error)
	CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string) (*gateway.PaymentIntent, error)
	ConfirmPayment(ctx context.Context, paymentIntentID string, walletID int64) (*gateway.Wallet, error)
}

// WalletState is the shared wallet store the submitter reads balances from
// and reconciles after a successful mutation.
type WalletState interface {
	Get(id int64) (gateway.Wallet, bool)
	Reconcile(ctx context.Context, ids ...int64) error
	MergeWallet(w gateway.Wallet)
}

// TransferDraft is the user's in-progress transfer input. Amount stays a raw
// string until validation; it is discarded on success.
type TransferDraft struct {
	SourceWalletID int64
	RecipientEmail string
	Amount         string
	Note           string
}

// ConversionDraft moves funds between two of the user's own wallets.
type ConversionDraft struct {
	FromWalletID int64
	ToWalletID   int64
	Amount       string
}

// FundingDraft finalizes a card funding after the processor confirmed it.
type FundingDraft struct {
	WalletID        int64
	PaymentIntentID string
}

// Result is the authoritative outcome of the attempt. Exactly one field is
// set; success views read amounts from here, never from the draft.
type Result struct {
	AttemptID    uuid.UUID
	Transfer     *gateway.TransferResult
	Conversion   *gateway.ConversionResult
	FundedWallet *gateway.Wallet
}

// Submitter runs the Editing -> Submitting -> {Succeeded|Failed} machine for
// one draft, guarding against double submission.
type Submitter struct {
	gw      Gateway
	wallets WalletState
	log     *slog.Logger

	mu      sync.Mutex
	state   State
	failure string
	result  *Result
}

// NewSubmitter creates a submitter in the editing state.
func NewSubmitter(gw Gateway, wallets WalletState, log *slog.Logger) *Submitter {
	return &Submitter{gw: gw, wallets: wallets, log: log}
}

// State returns the current attempt state.
func (s *Submitter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failure returns the user-facing message of the last failed attempt.
func (s *Submitter) Failure() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Result returns the stored outcome after a successful attempt.
func (s *Submitter) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Acknowledge moves Failed back to Editing, keeping the draft with the
// caller so the user can correct and resubmit.
func (s *Submitter) Acknowledge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFailed {
		s.state = StateEditing
		s.failure = ""
	}
}

// SubmitTransfer validates the draft against the live source balance and the
// resolved recipient quote, then issues the single transfer call. The raw
// user amount goes over the wire; the Gateway converts authoritatively.
func (s *Submitter) SubmitTransfer(ctx context.Context, draft TransferDraft, quote *recipient.Quote) (*gateway.TransferResult, error) {
	wallet, ok := s.wallets.Get(draft.SourceWalletID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown source wallet", ErrDraftInvalid)
	}
	if quote == nil {
		return nil, fmt.Errorf("%w: recipient not resolved", ErrDraftInvalid)
	}

	verdict := money.Check(draft.Amount, wallet.Balance, wallet.Currency, &money.Quote{
		Rate:     quote.Rate,
		Currency: quote.RecipientCurrency,
		Symbol:   quote.RecipientSymbol,
	})
	if !verdict.OK {
		return nil, fmt.Errorf("%w: %s", ErrDraftInvalid, verdict.Reason)
	}

	attemptID, err := s.begin()
	if err != nil {
		return nil, err
	}
	s.log.Info("submitting transfer",
		"attempt_id", attemptID,
		"source_wallet", draft.SourceWalletID,
		"recipient", draft.RecipientEmail,
	)

	result, err := s.gw.SendMoney(ctx, gateway.SendMoneyRequest{
		SenderWalletID: draft.SourceWalletID,
		RecipientEmail: draft.RecipientEmail,
		Amount:         verdict.Amount,
		Note:           draft.Note,
	})
	if err != nil {
		s.fail(attemptID, err)
		return nil, err
	}

	// Balances must be reconciled before any success view reads them. The
	// recipient's wallet is not ours to fetch; only the source is.
	s.reconcile(ctx, attemptID, draft.SourceWalletID)
	s.succeed(attemptID, &Result{AttemptID: attemptID, Transfer: result})
	return result, nil
}

// SubmitConversion validates against the source wallet and issues the single
// conversion call, then reconciles both wallets.
func (s *Submitter) SubmitConversion(ctx context.Context, draft ConversionDraft) (*gateway.ConversionResult, error) {
	from, ok := s.wallets.Get(draft.FromWalletID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown source wallet", ErrDraftInvalid)
	}
	if _, ok := s.wallets.Get(draft.ToWalletID); !ok {
		return nil, fmt.Errorf("%w: unknown destination wallet", ErrDraftInvalid)
	}
	if draft.FromWalletID == draft.ToWalletID {
		return nil, fmt.Errorf("%w: source and destination are the same wallet", ErrDraftInvalid)
	}

	verdict := money.Check(draft.Amount, from.Balance, from.Currency, nil)
	if !verdict.OK {
		return nil, fmt.Errorf("%w: %s", ErrDraftInvalid, verdict.Reason)
	}

	attemptID, err := s.begin()
	if err != nil {
		return nil, err
	}
	s.log.Info("submitting conversion",
		"attempt_id", attemptID,
		"from_wallet", draft.FromWalletID,
		"to_wallet", draft.ToWalletID,
	)

	result, err := s.gw.ConvertCurrency(ctx, gateway.ConvertRequest{
		FromWalletID: draft.FromWalletID,
		ToWalletID:   draft.ToWalletID,
		Amount:       verdict.Amount,
	})
	if err != nil {
		s.fail(attemptID, err)
		return nil, err
	}

	s.reconcile(ctx, attemptID, draft.FromWalletID, draft.ToWalletID)
	s.succeed(attemptID, &Result{AttemptID: attemptID, Conversion: result})
	return result, nil
}

// StartFunding opens a payment intent with the processor. This happens while
// still editing; the ledger mutation only occurs on SubmitFunding.
func (s *Submitter) StartFunding(ctx context.Context, amount decimal.Decimal, currency string) (*gateway.PaymentIntent, error) {
	return s.gw.CreatePaymentIntent(ctx, amount, currency)
}

// SubmitFunding finalizes a confirmed card payment. The Gateway's updated
// wallet record is merged immediately and the wallet reconciled under the
// same discipline as the other flows.
func (s *Submitter) SubmitFunding(ctx context.Context, draft FundingDraft) (*gateway.Wallet, error) {
	if _, ok := s.wallets.Get(draft.WalletID); !ok {
		return nil, fmt.Errorf("%w: unknown wallet", ErrDraftInvalid)
	}
	if draft.PaymentIntentID == "" {
		return nil, fmt.Errorf("%w: missing payment intent", ErrDraftInvalid)
	}

	attemptID, err := s.begin()
	if err != nil {
		return nil, err
	}
	s.log.Info("confirming funding",
		"attempt_id", attemptID,
		"wallet", draft.WalletID,
	)

	wallet, err := s.gw.ConfirmPayment(ctx, draft.PaymentIntentID, draft.WalletID)
	if err != nil {
		s.fail(attemptID, err)
		return nil, err
	}

	s.wallets.MergeWallet(*wallet)
	s.reconcile(ctx, attemptID, draft.WalletID)
	s.succeed(attemptID, &Result{AttemptID: attemptID, FundedWallet: wallet})
	return wallet, nil
}

// begin flips Editing to Submitting. Every other state rejects entry, so a
// mutation on the wire, a finished attempt, or an unacknowledged failure can
// never issue a second call.
func (s *Submitter) begin() (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateSubmitting:
		return uuid.Nil, ErrInFlight
	case StateSucceeded, StateFailed:
		return uuid.Nil, ErrDone
	}
	s.state = StateSubmitting
	s.failure = ""
	s.result = nil
	return uuid.New(), nil
}

func (s *Submitter) fail(attemptID uuid.UUID, err error) {
	msg := FailureMessage(err)
	s.mu.Lock()
	s.state = StateFailed
	s.failure = msg
	s.mu.Unlock()
	s.log.Warn("submission failed", "attempt_id", attemptID, "error", err)
}

func (s *Submitter) succeed(attemptID uuid.UUID, result *Result) {
	s.mu.Lock()
	s.state = StateSucceeded
	s.result = result
	s.mu.Unlock()
	s.log.Info("submission succeeded", "attempt_id", attemptID)
}

// reconcile refreshes the named wallets after a successful mutation. A
// refresh failure does not undo the success; the store marks the balances
// pending instead.
func (s *Submitter) reconcile(ctx context.Context, attemptID uuid.UUID, ids ...int64) {
	if err := s.wallets.Reconcile(ctx, ids...); err != nil {
		s.log.Warn("post-success reconcile failed", "attempt_id", attemptID, "error", err)
	}
}

// FailureMessage maps an error to the text shown to the user: the Gateway's
// own words when it spoke, a generic transport note otherwise.
func FailureMessage(err error) string {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	return "network error, please try again"
}
