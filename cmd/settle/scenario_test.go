package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"lendsettle/config"
	"lendsettle/core/types"
	"lendsettle/native/lending"
	"lendsettle/services/settlement"
	"lendsettle/storage"
)

const osmosScenario = `steps:
  - op: open
    account: alice
    give: 100 Osmos
    want: 100 LiOsmos
  - op: borrow
    account: alice
    want: 40 USD
  - op: add
    account: alice
    give: 50 Osmos
    want: 50 LiOsmos
  - op: borrow
    account: alice
    want: 40 USD
`

func newTestService(t *testing.T) *settlement.Service {
	t.Helper()
	cfg := config.Default()
	v, err := newVault(cfg.Assets)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	engine, err := lending.NewEngine(v, v.MakeEmptySeat(), storage.NewMemDB(), cfg.Lending)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	svc, err := settlement.New(v, engine, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func TestRunScenario(t *testing.T) {
	sc, err := DecodeScenario(strings.NewReader(osmosScenario))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var out bytes.Buffer
	if err := Run(context.Background(), newTestService(t), sc, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	var results []StepResult
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var result StepResult
		if err := json.Unmarshal(scanner.Bytes(), &result); err != nil {
			t.Fatalf("decode result %q: %v", scanner.Text(), err)
		}
		results = append(results, result)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	opened := results[0]
	if opened.Message != lending.OfferCompletedMessage || opened.Payout["LiOsmos"] != "100" || opened.MaxBorrowable != "40 USD" {
		t.Fatalf("unexpected open result %+v", opened)
	}
	// 40 USD equals the limit and is refused.
	if results[1].Message != lending.DefaultBorrowMessage || results[1].Error == "" {
		t.Fatalf("expected rejected borrow, got %+v", results[1])
	}
	if results[2].MaxBorrowable != "60 USD" {
		t.Fatalf("expected 60 USD limit after top-up, got %+v", results[2])
	}
	if results[3].Payout["USD"] != "40" || results[3].AccountID != opened.AccountID {
		t.Fatalf("unexpected borrow result %+v", results[3])
	}
}

func TestRunScenarioUnknownAlias(t *testing.T) {
	sc := Scenario{Steps: []ScenarioStep{{Op: OpBorrow, Account: "bob", Want: "1 USD"}}}
	if err := Run(context.Background(), newTestService(t), sc, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected unknown alias error")
	}
}

func TestDecodeScenarioValidation(t *testing.T) {
	cases := map[string]string{
		"empty":         "steps: []\n",
		"unknown op":    "steps:\n  - op: repay\n    account: a\n    want: 1 USD\n",
		"missing alias": "steps:\n  - op: borrow\n    want: 1 USD\n",
		"borrow give":   "steps:\n  - op: borrow\n    account: a\n    give: 1 Osmos\n    want: 1 USD\n",
		"open no want":  "steps:\n  - op: open\n    account: a\n    give: 1 Osmos\n",
		"unknown field": "steps:\n  - op: open\n    account: a\n    give: 1 Osmos\n    want: 1 LiOsmos\n    memo: hi\n",
	}
	for name, raw := range cases {
		if _, err := DecodeScenario(strings.NewReader(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	sc, err := DecodeScenario(strings.NewReader("steps:\n  - op: ' Borrow '\n    account: ' a '\n    want: 1 USD\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sc.Steps[0].Op != OpBorrow || sc.Steps[0].Account != "a" {
		t.Fatalf("step not normalised: %+v", sc.Steps[0])
	}
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount(" 150  Osmos ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if amount != types.AmountOf("Osmos", 150) {
		t.Fatalf("unexpected amount %s", amount)
	}
	for _, raw := range []string{"Osmos", "1.5 Osmos", "1 Osmos extra", ""} {
		if _, err := ParseAmount(raw); err == nil {
			t.Fatalf("%q: expected error", raw)
		}
	}
}

func TestLoadScenarioFile(t *testing.T) {
	sc, err := LoadScenario("testdata/two_markets.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sc.Steps) != 4 || sc.Steps[1].Op != OpAdd || sc.Steps[3].Want != "109 USD" {
		t.Fatalf("unexpected scenario %+v", sc)
	}
	if _, err := LoadScenario("testdata/missing.yaml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
