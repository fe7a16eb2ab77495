package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Error is an application-level rejection from the Gateway. Message is the
// server-supplied text and is shown to the user verbatim.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Client is the remote banking Gateway HTTP client. The zero token form is
// used for login/signup only; WithToken binds a copy to a session.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an unauthenticated Gateway client.
func NewClient(baseURL string, rps float64) *Client {
	if rps <= 0 {
		rps = 8
	}
	// A fractional rate truncates to burst 0, which would starve every Wait.
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// WithToken returns a copy of the client that authenticates as the session
// owner. The underlying transport and limiter are shared.
func (c *Client) WithToken(token string) *Client {
	bound := *c
	bound.token = token
	return &bound
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &Error{Status: resp.StatusCode, Message: errorMessage(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
	}

	return nil
}

// errorMessage extracts the server's error text from a failure body. The
// Gateway answers either {"error": "..."} or plain text.
func errorMessage(data []byte) string {
	var wrapped struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil {
		if wrapped.Error != "" {
			return wrapped.Error
		}
		if wrapped.Message != "" {
			return wrapped.Message
		}
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return "request failed"
}

// --- Auth ---

// Login authenticates and returns the session token with the user record.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var resp AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and returns the initial session.
func (c *Client) Register(ctx context.Context, name, email, password, phone, country string) (*AuthResponse, error) {
	body := map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
		"phone":    phone,
		"country":  country,
	}
	var resp AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/signup", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Wallets ---

// Wallets fetches the user's wallet list with current balances.
func (c *Client) Wallets(ctx context.Context, userID int64) ([]Wallet, error) {
	var wallets []Wallet
	path := fmt.Sprintf("/wallets/user/%d", userID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

// CreateWallet opens a new per-currency wallet.
func (c *Client) CreateWallet(ctx context.Context, userID int64, currency string, initialDeposit decimal.Decimal) (*Wallet, error) {
	body := map[string]any{
		"userId":         userID,
		"currency":       currency,
		"initialDeposit": initialDeposit,
	}
	var wallet Wallet
	if err := c.doRequest(ctx, http.MethodPost, "/wallets/create", body, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// --- Transfers and conversions ---

// CheckRecipient resolves a recipient email into identity plus a live quote
// against the sender's currency. Read-only and safe to re-invoke.
func (c *Client) CheckRecipient(ctx context.Context, email, senderCurrency string) (*RecipientCheck, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("senderCurrency", senderCurrency)
	var check RecipientCheck
	if err := c.doRequest(ctx, http.MethodGet, "/transfer/check-recipient?"+q.Encode(), nil, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

// SendMoney executes a transfer. Exactly one call per submission attempt.
func (c *Client) SendMoney(ctx context.Context, req SendMoneyRequest) (*TransferResult, error) {
	var result TransferResult
	if err := c.doRequest(ctx, http.MethodPost, "/transfer/send", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ConvertCurrency executes a conversion between the user's own wallets.
func (c *Client) ConvertCurrency(ctx context.Context, req ConvertRequest) (*ConversionResult, error) {
	var result ConversionResult
	if err := c.doRequest(ctx, http.MethodPost, "/transfer/convert", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExchangeRate fetches a preview rate. Advisory only; the Gateway recomputes
// the rate it actually applies at submission time.
func (c *Client) ExchangeRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	var resp exchangeRateResponse
	if err := c.doRequest(ctx, http.MethodGet, "/transfer/exchange-rate?"+q.Encode(), nil, &resp); err != nil {
		return decimal.Decimal{}, err
	}
	return resp.Rate, nil
}

// --- Funding ---

// CreatePaymentIntent starts an external card funding and returns the
// processor hand-off secret.
func (c *Client) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string) (*PaymentIntent, error) {
	body := map[string]any{"amount": amount, "currency": currency}
	var intent PaymentIntent
	if err := c.doRequest(ctx, http.MethodPost, "/payments/create-intent", body, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// ConfirmPayment finalizes a funding after the processor confirmed it and
// returns the credited wallet record.
func (c *Client) ConfirmPayment(ctx context.Context, paymentIntentID string, walletID int64) (*Wallet, error) {
	body := map[string]any{"paymentIntentId": paymentIntentID, "walletId": walletID}
	var wallet Wallet
	if err := c.doRequest(ctx, http.MethodPost, "/payments/confirm", body, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// --- Notifications ---

// Notifications fetches the latest notification page, newest first.
func (c *Client) Notifications(ctx context.Context, userID int64) ([]Notification, error) {
	var feed []Notification
	path := fmt.Sprintf("/user/%d/notifications", userID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &feed); err != nil {
		return nil, err
	}
	return feed, nil
}

// UnreadCount fetches the unread notification counter.
func (c *Client) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var resp unreadCountResponse
	path := fmt.Sprintf("/user/%d/notifications/count", userID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// MarkRead acknowledges a single notification.
func (c *Client) MarkRead(ctx context.Context, notificationID int64) error {
	path := fmt.Sprintf("/user/notifications/%d/read", notificationID)
	return c.doRequest(ctx, http.MethodPost, path, nil, nil)
}

// MarkAllRead acknowledges every unread notification in one call.
func (c *Client) MarkAllRead(ctx context.Context, userID int64) error {
	path := fmt.Sprintf("/user/%d/notifications/read-all", userID)
	return c.doRequest(ctx, http.MethodPost, path, nil, nil)
}

// --- History ---

// Transactions fetches the user's transaction history across wallets.
func (c *Client) Transactions(ctx context.Context, userID int64) ([]Transaction, error) {
	var txs []Transaction
	path := fmt.Sprintf("/transactions/user/%d", userID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// WalletTransactions fetches history for a single wallet.
func (c *Client) WalletTransactions(ctx context.Context, walletID int64) ([]Transaction, error) {
	var txs []Transaction
	path := fmt.Sprintf("/transactions/wallet/%d", walletID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}
