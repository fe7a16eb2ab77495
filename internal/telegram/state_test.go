package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStateManagerSetGetClear(t *testing.T) {
	sm := NewStateManager()

	assert.Nil(t, sm.Get(1))

	flow := &Flow{LoginEmail: "alice@example.com"}
	sm.Set(1, StateWaitLoginPassword, flow)

	st := sm.Get(1)
	assert.NotNil(t, st)
	assert.Equal(t, StateWaitLoginPassword, st.State)
	assert.Same(t, flow, st.Flow)

	sm.Clear(1)
	assert.Nil(t, sm.Get(1))
}

func TestStateManagerKeepsFlowAcrossTransitions(t *testing.T) {
	sm := NewStateManager()

	flow := &Flow{}
	flow.Transfer.SourceWalletID = 7
	sm.Set(1, StateWaitRecipient, flow)
	sm.Set(1, StateWaitSendAmount, flow)

	st := sm.Get(1)
	assert.Equal(t, StateWaitSendAmount, st.State)
	assert.EqualValues(t, 7, st.Flow.Transfer.SourceWalletID)
}

func TestStateManagerNilFlow(t *testing.T) {
	sm := NewStateManager()
	sm.Set(1, StateWaitLoginEmail, nil)

	st := sm.Get(1)
	assert.NotNil(t, st.Flow)
}

func TestParseID(t *testing.T) {
	assert.EqualValues(t, 42, parseID("src:42", "src:"))
	assert.EqualValues(t, 0, parseID("src:abc", "src:"))
}

func TestPaymentIntentID(t *testing.T) {
	assert.Equal(t, "pi_3OaQ2x", paymentIntentID("pi_3OaQ2x_secret_k9Yz"))
	assert.Equal(t, "pi_plain", paymentIntentID("pi_plain"))
}

func TestDraftReason(t *testing.T) {
	err := errWithPrefix{}
	assert.Equal(t, "insufficient funds", draftReason(err))
}

type errWithPrefix struct{}

func (errWithPrefix) Error() string { return "draft failed validation: insufficient funds" }

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 30))
	assert.Equal(t, "aaaa…", truncate("aaaaaaaaaa", 5))
}

func TestTimeAgo(t *testing.T) {
	assert.Equal(t, "just now", timeAgo(time.Now()))
	assert.Equal(t, "2h ago", timeAgo(time.Now().Add(-2*time.Hour)))
	assert.Equal(t, "3d ago", timeAgo(time.Now().Add(-72*time.Hour)))
	assert.Equal(t, "", timeAgo(time.Time{}))
}
