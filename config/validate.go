package config

import (
	"fmt"
	"strings"
)

// ValidateConfig checks that the configuration is internally consistent.
func ValidateConfig(c Config) error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	switch c.JournalDriver {
	case JournalDriverSQLite:
	case JournalDriverPostgres:
		if strings.TrimSpace(c.JournalDSN) == "" {
			return fmt.Errorf("journal: postgres driver requires JournalDSN")
		}
	default:
		return fmt.Errorf("journal: unsupported driver %q", c.JournalDriver)
	}
	if err := c.Lending.Validate(); err != nil {
		return err
	}

	kinds := make(map[string]string)
	for _, kw := range c.Assets.Escrowable {
		kinds[kw] = "escrowable"
	}
	for _, kw := range c.Assets.Mintable {
		if kind, ok := kinds[kw]; ok {
			return fmt.Errorf("assets: %s registered as both %s and mintable", kw, kind)
		}
		kinds[kw] = "mintable"
	}
	if kinds[string(c.Lending.ReferenceKeyword)] != "mintable" {
		return fmt.Errorf("assets: reference keyword %s must be mintable", c.Lending.ReferenceKeyword)
	}
	for _, market := range c.Lending.Markets {
		if kinds[string(market.Collateral)] != "escrowable" {
			return fmt.Errorf("assets: collateral %s must be escrowable", market.Collateral)
		}
		if market.Receipt != "" && kinds[string(market.Receipt)] != "mintable" {
			return fmt.Errorf("assets: receipt %s must be mintable", market.Receipt)
		}
	}
	return nil
}
