package events

import (
	"strings"

	"lendsettle/core/types"
)

const (
	// TypeSettlementDeposit is emitted after collateral is recorded for an
	// account, either when it is opened or topped up.
	TypeSettlementDeposit = "settlement.deposit"
	// TypeSettlementBorrow is emitted after a borrow is paid out.
	TypeSettlementBorrow = "settlement.borrow"
	// TypeSettlementRejected is emitted whenever an operation fails.
	TypeSettlementRejected = "settlement.rejected"
)

// Operation names carried by settlement events.
const (
	OperationOpenAccount   = "open_account"
	OperationAddCollateral = "add_collateral"
	OperationBorrow        = "borrow"
)

type SettlementDeposit struct {
	AccountID string
	Operation string
	Amount    types.Amount
	Receipt   types.Amount
}

func (SettlementDeposit) EventType() string { return TypeSettlementDeposit }

func (e SettlementDeposit) Event() *types.Event {
	return &types.Event{
		Type: TypeSettlementDeposit,
		Attributes: map[string]string{
			"accountId":       strings.TrimSpace(e.AccountID),
			"operation":       strings.TrimSpace(e.Operation),
			"keyword":         e.Amount.Keyword().String(),
			"quantity":        e.Amount.Dec(),
			"receiptKeyword":  e.Receipt.Keyword().String(),
			"receiptQuantity": e.Receipt.Dec(),
		},
	}
}

type SettlementBorrow struct {
	AccountID     string
	Amount        types.Amount
	MaxBorrowable types.Amount
}

func (SettlementBorrow) EventType() string { return TypeSettlementBorrow }

func (e SettlementBorrow) Event() *types.Event {
	return &types.Event{
		Type: TypeSettlementBorrow,
		Attributes: map[string]string{
			"accountId":     strings.TrimSpace(e.AccountID),
			"operation":     OperationBorrow,
			"keyword":       e.Amount.Keyword().String(),
			"quantity":      e.Amount.Dec(),
			"maxBorrowable": e.MaxBorrowable.Dec(),
		},
	}
}

// SettlementRejected carries the failure and the message shown to the user.
// Amount is empty when the offer could not be read.
type SettlementRejected struct {
	AccountID string
	Operation string
	Amount    types.Amount
	Reason    string
	UIMessage string
}

func (SettlementRejected) EventType() string { return TypeSettlementRejected }

func (e SettlementRejected) Event() *types.Event {
	quantity := ""
	if e.Amount.Keyword() != "" {
		quantity = e.Amount.Dec()
	}
	return &types.Event{
		Type: TypeSettlementRejected,
		Attributes: map[string]string{
			"accountId": strings.TrimSpace(e.AccountID),
			"operation": strings.TrimSpace(e.Operation),
			"keyword":   e.Amount.Keyword().String(),
			"quantity":  quantity,
			"error":     strings.TrimSpace(e.Reason),
			"uiMessage": strings.TrimSpace(e.UIMessage),
		},
	}
}
