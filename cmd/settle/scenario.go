package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"lendsettle/core/types"
	"lendsettle/services/settlement"
)

// Scenario operations.
const (
	OpOpen   = "open"
	OpAdd    = "add"
	OpBorrow = "borrow"
)

// Scenario is a scripted sequence of offers replayed against the service.
// Accounts are referred to by alias; the alias of an open step binds to the
// account it creates.
type Scenario struct {
	Steps []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one offer. Amounts are written "<quantity> <keyword>".
type ScenarioStep struct {
	Op      string `yaml:"op"`
	Account string `yaml:"account"`
	Give    string `yaml:"give"`
	Want    string `yaml:"want"`
}

// StepResult is printed as one JSON line per step.
type StepResult struct {
	Step          int               `json:"step"`
	Op            string            `json:"op"`
	Account       string            `json:"account"`
	AccountID     string            `json:"accountId,omitempty"`
	Message       string            `json:"message"`
	Payout        map[string]string `json:"payout,omitempty"`
	MaxBorrowable string            `json:"maxBorrowable,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (Scenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("open scenario: %w", err)
	}
	defer file.Close()
	return DecodeScenario(file)
}

// DecodeScenario parses a scenario. Unknown fields are rejected.
func DecodeScenario(r io.Reader) (Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

func (sc Scenario) validate() error {
	if len(sc.Steps) == 0 {
		return errors.New("scenario: no steps")
	}
	for i := range sc.Steps {
		step := &sc.Steps[i]
		step.Op = strings.ToLower(strings.TrimSpace(step.Op))
		step.Account = strings.TrimSpace(step.Account)
		if step.Account == "" {
			return fmt.Errorf("scenario step %d: account alias required", i+1)
		}
		switch step.Op {
		case OpOpen, OpAdd:
			if step.Give == "" || step.Want == "" {
				return fmt.Errorf("scenario step %d: %s needs give and want", i+1, step.Op)
			}
		case OpBorrow:
			if step.Want == "" {
				return fmt.Errorf("scenario step %d: borrow needs want", i+1)
			}
			if step.Give != "" {
				return fmt.Errorf("scenario step %d: borrow gives nothing", i+1)
			}
		default:
			return fmt.Errorf("scenario step %d: unknown op %q", i+1, step.Op)
		}
	}
	return nil
}

// ParseAmount reads "<quantity> <keyword>".
func ParseAmount(raw string) (types.Amount, error) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return types.Amount{}, fmt.Errorf("amount %q: want \"<quantity> <keyword>\"", raw)
	}
	return types.ParseAmount(types.Keyword(fields[1]), fields[0])
}

// Run replays the scenario and writes a result line per step. A rejected
// offer is reported and the run continues; malformed steps and unknown
// aliases stop it.
func Run(ctx context.Context, svc *settlement.Service, sc Scenario, out io.Writer) error {
	encoder := json.NewEncoder(out)
	aliases := make(map[string]string)
	for i, step := range sc.Steps {
		give, want, err := resolveAmounts(step)
		if err != nil {
			return fmt.Errorf("scenario step %d: %w", i+1, err)
		}
		var receipt settlement.Receipt
		var opErr error
		switch step.Op {
		case OpOpen:
			if _, taken := aliases[step.Account]; taken {
				return fmt.Errorf("scenario step %d: alias %s already opened", i+1, step.Account)
			}
			receipt, opErr = svc.OpenAccount(ctx, give, want)
			if opErr == nil {
				aliases[step.Account] = receipt.AccountID
			}
		default:
			accountID, ok := aliases[step.Account]
			if !ok {
				return fmt.Errorf("scenario step %d: unknown account alias %s", i+1, step.Account)
			}
			if step.Op == OpAdd {
				receipt, opErr = svc.AddCollateral(ctx, accountID, give, want)
			} else {
				receipt, opErr = svc.Borrow(ctx, accountID, want)
			}
		}
		result := StepResult{
			Step:      i + 1,
			Op:        step.Op,
			Account:   step.Account,
			AccountID: receipt.AccountID,
			Message:   receipt.Message,
			Payout:    payoutStrings(receipt.Payout),
		}
		if opErr != nil {
			result.Error = opErr.Error()
		}
		if receipt.AccountID != "" {
			if account, err := svc.Account(receipt.AccountID); err == nil {
				if limit, err := account.MaxBorrowable(); err == nil {
					result.MaxBorrowable = limit.String()
				}
			}
		}
		if err := encoder.Encode(result); err != nil {
			return err
		}
	}
	return nil
}

func resolveAmounts(step ScenarioStep) (give, want types.Amount, err error) {
	if want, err = ParseAmount(step.Want); err != nil {
		return give, want, err
	}
	if step.Op != OpBorrow {
		give, err = ParseAmount(step.Give)
	}
	return give, want, err
}

func payoutStrings(payout types.Allocation) map[string]string {
	if len(payout) == 0 {
		return nil
	}
	out := make(map[string]string, len(payout))
	for keyword, amount := range payout {
		out[keyword.String()] = amount.Dec()
	}
	return out
}
