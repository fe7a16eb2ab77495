package telegram

import (
	"sync"

	"github.com/glidepay/wallet-bot/internal/recipient"
	"github.com/glidepay/wallet-bot/internal/transact"
	"github.com/shopspring/decimal"
)

// Flow carries the in-progress conversation data for one chat. A flow is
// created when the user enters a money-movement flow and dropped when it
// finishes or is cancelled.
type Flow struct {
	LoginEmail string
	RegName    string

	Transfer   transact.TransferDraft
	Conversion transact.ConversionDraft
	Funding    FundingFlow

	// Advisory rate shown while drafting a conversion; zero when the
	// Gateway rate lookup failed. Never submitted.
	ConvertRate decimal.Decimal

	Resolver  *recipient.Resolver
	Submitter *transact.Submitter
}

// FundingFlow tracks a card top-up between intent creation and confirmation.
type FundingFlow struct {
	WalletID int64
	Amount   decimal.Decimal
	IntentID string
}

// UserState represents the current state of a chat's conversation
type UserState struct {
	State string
	Flow  *Flow
}

// StateManager manages per-chat states for FSM
type StateManager struct {
	mu     sync.RWMutex
	states map[int64]*UserState
}

// NewStateManager creates a new state manager
func NewStateManager() *StateManager {
	return &StateManager{
		states: make(map[int64]*UserState),
	}
}

// Set sets a chat's state
func (sm *StateManager) Set(chatID int64, state string, flow *Flow) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if flow == nil {
		flow = &Flow{}
	}
	sm.states[chatID] = &UserState{
		State: state,
		Flow:  flow,
	}
}

// Get returns a chat's current state
func (sm *StateManager) Get(chatID int64) *UserState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.states[chatID]
}

// Clear removes a chat's state
func (sm *StateManager) Clear(chatID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.states, chatID)
}

// State constants
const (
	StatePickWallet         = "pick_wallet"
	StateWaitLoginEmail     = "wait_login_email"
	StateWaitLoginPassword  = "wait_login_password"
	StateWaitRegName        = "wait_reg_name"
	StateWaitRegEmail       = "wait_reg_email"
	StateWaitRegPassword    = "wait_reg_password"
	StateWaitRecipient      = "wait_recipient"
	StateWaitSendAmount     = "wait_send_amount"
	StateWaitSendNote       = "wait_send_note"
	StateWaitSendConfirm    = "wait_send_confirm"
	StateWaitConvertAmount  = "wait_convert_amount"
	StateWaitConvertConfirm = "wait_convert_confirm"
	StateWaitFundAmount     = "wait_fund_amount"
	StateWaitFundConfirm    = "wait_fund_confirm"
)
