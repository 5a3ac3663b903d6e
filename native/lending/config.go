package lending

import (
	"errors"
	"fmt"
	"strings"

	"lendsettle/core/types"
)

const (
	// OfferCompletedMessage is returned to users once an offer settles.
	OfferCompletedMessage = "Offer completed. You should receive a payment"

	DefaultDepositMessage = "error handling mint payment offer"
	DefaultBorrowMessage  = "error handling borrow offer"
)

var (
	errReferenceKeyword = errors.New("lending config: reference keyword required")
	errNoMarkets        = errors.New("lending config: at least one market required")
)

// Config captures the runtime configuration for the lending engine.
type Config struct {
	ReferenceKeyword types.Keyword `toml:"ReferenceKeyword"`
	Markets          []Market      `toml:"markets"`
	Messages         Messages      `toml:"messages"`
}

// Market describes one collateral asset. CollateralUnits of Collateral are
// worth at most ReferenceUnits of the reference asset for borrowing purposes.
// Receipt is the keyword minted back to depositors.
type Market struct {
	Collateral      types.Keyword `toml:"Collateral"`
	Receipt         types.Keyword `toml:"Receipt"`
	CollateralUnits string        `toml:"CollateralUnits"`
	ReferenceUnits  string        `toml:"ReferenceUnits"`
}

// Messages are the user-facing texts attached to failed offers.
type Messages struct {
	Deposit string `toml:"Deposit"`
	Borrow  string `toml:"Borrow"`
}

// DefaultConfig returns a single Osmos market priced 10:4 against USD.
func DefaultConfig() Config {
	return Config{
		ReferenceKeyword: "USD",
		Markets: []Market{{
			Collateral:      "Osmos",
			Receipt:         "LiOsmos",
			CollateralUnits: "10",
			ReferenceUnits:  "4",
		}},
		Messages: Messages{Deposit: DefaultDepositMessage, Borrow: DefaultBorrowMessage},
	}
}

// Normalize trims keywords and fills blank messages with the defaults.
func (c Config) Normalize() Config {
	out := c
	out.ReferenceKeyword = types.Keyword(strings.TrimSpace(string(c.ReferenceKeyword)))
	out.Markets = make([]Market, len(c.Markets))
	for i, market := range c.Markets {
		market.Collateral = types.Keyword(strings.TrimSpace(string(market.Collateral)))
		market.Receipt = types.Keyword(strings.TrimSpace(string(market.Receipt)))
		out.Markets[i] = market
	}
	if strings.TrimSpace(out.Messages.Deposit) == "" {
		out.Messages.Deposit = DefaultDepositMessage
	}
	if strings.TrimSpace(out.Messages.Borrow) == "" {
		out.Messages.Borrow = DefaultBorrowMessage
	}
	return out
}

// Validate checks keywords and ratios.
func (c Config) Validate() error {
	if c.ReferenceKeyword == "" {
		return errReferenceKeyword
	}
	if err := c.ReferenceKeyword.Validate(); err != nil {
		return fmt.Errorf("lending config: reference: %w", err)
	}
	if len(c.Markets) == 0 {
		return errNoMarkets
	}
	_, err := c.Ratios()
	return err
}

// Ratios builds the MaxLtvRatio for every market keyed by collateral.
func (c Config) Ratios() (map[types.Keyword]types.Ratio, error) {
	ratios := make(map[types.Keyword]types.Ratio, len(c.Markets))
	for i, market := range c.Markets {
		if err := market.Collateral.Validate(); err != nil {
			return nil, fmt.Errorf("lending config: market %d collateral: %w", i, err)
		}
		if market.Collateral == c.ReferenceKeyword {
			return nil, fmt.Errorf("lending config: market %s cannot be the reference asset", market.Collateral)
		}
		if market.Receipt != "" && (market.Receipt == market.Collateral || market.Receipt == c.ReferenceKeyword) {
			return nil, fmt.Errorf("lending config: market %s receipt %s collides with another keyword", market.Collateral, market.Receipt)
		}
		if _, dup := ratios[market.Collateral]; dup {
			return nil, fmt.Errorf("lending config: duplicate market %s", market.Collateral)
		}
		units, err := types.ParseAmount(market.Collateral, market.CollateralUnits)
		if err != nil {
			return nil, fmt.Errorf("lending config: market %s collateral units: %w", market.Collateral, err)
		}
		value, err := types.ParseAmount(c.ReferenceKeyword, market.ReferenceUnits)
		if err != nil {
			return nil, fmt.Errorf("lending config: market %s reference units: %w", market.Collateral, err)
		}
		ratio, err := types.MakeRatio(units, value)
		if err != nil {
			return nil, fmt.Errorf("lending config: market %s: %w", market.Collateral, err)
		}
		ratios[market.Collateral] = ratio
	}
	return ratios, nil
}
