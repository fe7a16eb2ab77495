package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRecipient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transfer/check-recipient", r.URL.Path)
		require.Equal(t, "alice@example.com", r.URL.Query().Get("email"))
		require.Equal(t, "USD", r.URL.Query().Get("senderCurrency"))
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"exists": true,
			"recipientName": "Alice",
			"recipientWalletId": 7,
			"recipientCurrency": "EUR",
			"recipientSymbol": "€",
			"exchangeRate": 0.92
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 100).WithToken("tok-1")
	check, err := client.CheckRecipient(context.Background(), "alice@example.com", "USD")
	require.NoError(t, err)

	assert.True(t, check.Exists)
	assert.Equal(t, "Alice", check.RecipientName)
	assert.Equal(t, "EUR", check.RecipientCurrency)
	assert.True(t, check.ExchangeRate.Equal(decimal.RequireFromString("0.92")))
}

func TestFractionalRateStillAdmitsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"exists": false, "message": "User not found with this email"}`))
	}))
	defer srv.Close()

	// A rate under one request per second must still leave burst room for
	// the first call instead of blocking every Wait forever.
	client := NewClient(srv.URL, 0.5)
	check, err := client.CheckRecipient(context.Background(), "ghost@example.com", "USD")
	require.NoError(t, err)
	assert.False(t, check.Exists)
}

func TestSendMoneyCarriesRawAmount(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transfer/send", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"transactionId": 42,
			"recipientName": "Alice",
			"amountSent": 100,
			"amountReceived": 91.97,
			"senderNewBalance": 1150.5
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 100).WithToken("tok-1")
	result, err := client.SendMoney(context.Background(), SendMoneyRequest{
		SenderWalletID: 3,
		RecipientEmail: "alice@example.com",
		Amount:         decimal.RequireFromString("100"),
		Note:           "rent",
	})
	require.NoError(t, err)

	// The raw amount goes over the wire as a number, never a converted value.
	assert.Equal(t, float64(100), got["amount"])
	assert.Equal(t, "rent", got["note"])
	assert.Equal(t, int64(42), result.TransactionID)
	assert.True(t, result.AmountReceived.Equal(decimal.RequireFromString("91.97")))
}

func TestServerErrorSurfacedVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "Insufficient balance"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 100)
	_, err := client.ConvertCurrency(context.Background(), ConvertRequest{
		FromWalletID: 1,
		ToWalletID:   2,
		Amount:       decimal.NewFromInt(5000),
	})
	require.Error(t, err)

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusBadRequest, gwErr.Status)
	assert.Equal(t, "Insufficient balance", gwErr.Message)
}

func TestPlainTextErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Payment not succeeded"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 100)
	_, err := client.ConfirmPayment(context.Background(), "pi_123", 1)

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "Payment not succeeded", gwErr.Message)
}

func TestNotificationTimeFormats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 1, "type": "DEPOSIT", "title": "Deposit Received", "message": "m", "amount": 10, "currency": "USD", "read": false, "createdAt": "2026-08-29T10:15:30.123456"},
			{"id": 2, "type": "TRANSFER_SENT", "title": "Money Sent", "message": "m", "amount": 5, "currency": "USD", "read": true, "createdAt": "2026-08-29T10:15:30Z"}
		]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 100)
	feed, err := client.Notifications(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, feed, 2)

	assert.Equal(t, 2026, feed[0].CreatedAt.Year())
	assert.False(t, feed[0].Read)
	assert.True(t, feed[1].Read)
}

func TestUnreadCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user/9/notifications/count", r.URL.Path)
		w.Write([]byte(`{"count": 3}`))
	}))
	defer srv.Close()

	count, err := NewClient(srv.URL, 100).UnreadCount(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
