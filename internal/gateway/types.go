package gateway

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The Gateway expects plain JSON numbers for monetary fields.
	decimal.MarshalJSONWithoutQuotes = true
}

// User is the authenticated account as the Gateway reports it.
type User struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Country string `json:"country,omitempty"`
}

// AuthResponse is the login/signup response.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Wallet is a per-currency balance record. The balance is authoritative
// only at the moment the Gateway returned it.
type Wallet struct {
	ID          int64           `json:"id"`
	Currency    string          `json:"currency"`
	Symbol      string          `json:"symbol"`
	Flag        string          `json:"flag,omitempty"`
	Name        string          `json:"name,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
	DailyChange decimal.Decimal `json:"dailyChange"`
}

// DisplayName returns the wallet label used across the UI.
func (w Wallet) DisplayName() string {
	if w.Name != "" {
		return w.Name
	}
	return w.Currency + " Wallet"
}

// RecipientCheck is the response to check-recipient. When Exists is false,
// Message carries the human-readable reason.
type RecipientCheck struct {
	Exists            bool            `json:"exists"`
	Message           string          `json:"message,omitempty"`
	RecipientName     string          `json:"recipientName,omitempty"`
	RecipientWalletID int64           `json:"recipientWalletId,omitempty"`
	RecipientCurrency string          `json:"recipientCurrency,omitempty"`
	RecipientSymbol   string          `json:"recipientSymbol,omitempty"`
	ExchangeRate      decimal.Decimal `json:"exchangeRate,omitempty"`
}

// SendMoneyRequest carries the raw user amount; the Gateway converts
// authoritatively on its side.
type SendMoneyRequest struct {
	SenderWalletID int64           `json:"senderWalletId"`
	RecipientEmail string          `json:"recipientEmail"`
	Amount         decimal.Decimal `json:"amount"`
	Note           string          `json:"note,omitempty"`
}

// TransferResult is the authoritative outcome of a transfer.
type TransferResult struct {
	TransactionID    int64           `json:"transactionId"`
	RecipientName    string          `json:"recipientName"`
	AmountSent       decimal.Decimal `json:"amountSent"`
	AmountReceived   decimal.Decimal `json:"amountReceived"`
	SenderNewBalance decimal.Decimal `json:"senderNewBalance"`
}

// ConvertRequest moves funds between two wallets of the same user.
type ConvertRequest struct {
	FromWalletID int64           `json:"fromWalletId"`
	ToWalletID   int64           `json:"toWalletId"`
	Amount       decimal.Decimal `json:"amount"`
}

// ConversionResult is the authoritative outcome of a conversion, including
// the rate actually applied and both post-transaction balances.
type ConversionResult struct {
	AmountDebited     decimal.Decimal `json:"amountDebited"`
	AmountCredited    decimal.Decimal `json:"amountCredited"`
	ExchangeRate      decimal.Decimal `json:"exchangeRate"`
	FromCurrency      string          `json:"fromCurrency"`
	ToCurrency        string          `json:"toCurrency"`
	FromWalletBalance decimal.Decimal `json:"fromWalletBalance"`
	ToWalletBalance   decimal.Decimal `json:"toWalletBalance"`
}

// PaymentIntent is the card-processor hand-off for a funding flow.
type PaymentIntent struct {
	ClientSecret string `json:"clientSecret"`
}

// Notification is one entry of the user's notification feed.
type Notification struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"` // TRANSFER_RECEIVED, TRANSFER_SENT, CONVERSION, DEPOSIT
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt Time            `json:"createdAt"`
}

// Transaction is a history record for a wallet.
type Transaction struct {
	ID              int64           `json:"id"`
	WalletID        int64           `json:"walletId"`
	Type            string          `json:"type"` // DEPOSIT, TRANSFER, CONVERSION, WITHDRAWAL
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	Status          string          `json:"status"` // SUCCESS, PENDING, FAILED
	PaymentIntentID string          `json:"paymentIntentId,omitempty"`
	Timestamp       Time            `json:"timestamp"`
}

type unreadCountResponse struct {
	Count int `json:"count"`
}

type exchangeRateResponse struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Rate decimal.Decimal `json:"rate"`
}

// Time accepts both RFC 3339 and the Gateway's zone-less timestamps.
type Time struct {
	time.Time
}

const localDateTime = "2006-01-02T15:04:05"

func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		t.Time = parsed
		return nil
	}
	// LocalDateTime has no zone and a variable fraction length.
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	parsed, err := time.Parse(localDateTime, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(time.RFC3339) + `"`), nil
}
