package events

import (
	"testing"

	"lendsettle/core/types"
)

func TestSettlementDepositEvent(t *testing.T) {
	evt := SettlementDeposit{
		AccountID: " acct-1 ",
		Operation: OperationOpenAccount,
		Amount:    types.AmountOf("Osmos", 100),
		Receipt:   types.AmountOf("LiOsmos", 100),
	}.Event()
	if evt.Type != TypeSettlementDeposit {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attribute("accountId") != "acct-1" {
		t.Fatalf("account id not trimmed: %q", evt.Attribute("accountId"))
	}
	if evt.Attribute("keyword") != "Osmos" || evt.Attribute("quantity") != "100" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attribute("receiptKeyword") != "LiOsmos" {
		t.Fatalf("unexpected receipt: %+v", evt.Attributes)
	}
}

func TestSettlementRejectedEventWithoutAmount(t *testing.T) {
	evt := SettlementRejected{
		Operation: OperationBorrow,
		Reason:    "settlement: malformed offer",
		UIMessage: "error handling borrow offer",
	}.Event()
	if evt.Attribute("quantity") != "" || evt.Attribute("keyword") != "" {
		t.Fatalf("expected empty amount attrs, got %+v", evt.Attributes)
	}
	if evt.Attribute("uiMessage") != "error handling borrow offer" {
		t.Fatalf("unexpected ui message: %q", evt.Attribute("uiMessage"))
	}
}

type recordingEmitter struct{ types []string }

func (r *recordingEmitter) Emit(evt Event) { r.types = append(r.types, evt.EventType()) }

func TestMultiEmitter(t *testing.T) {
	first, second := &recordingEmitter{}, &recordingEmitter{}
	MultiEmitter{first, nil, second}.Emit(SettlementBorrow{Amount: types.AmountOf("USD", 39)})
	if len(first.types) != 1 || len(second.types) != 1 || second.types[0] != TypeSettlementBorrow {
		t.Fatalf("fan-out mismatch: %v %v", first.types, second.types)
	}
	NoopEmitter{}.Emit(SettlementBorrow{})
}
