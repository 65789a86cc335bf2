package econ

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the economy.yaml document.
type Config struct {
	Currencies []CurrencyConfig `yaml:"currencies"`
	HistoryCap int              `yaml:"history_cap"`

	Market MarketConfig `yaml:"market"`
}

type CurrencyConfig struct {
	ID              string  `yaml:"id"`
	Symbol          string  `yaml:"symbol"`
	Name            string  `yaml:"name"`
	Primary         bool    `yaml:"primary"`
	StartingBalance float64 `yaml:"starting_balance"`
}

type MarketConfig struct {
	ListingFeePermille int    `yaml:"listing_fee_permille"`
	DurationTicks      uint64 `yaml:"duration_ticks"`
}

func LoadConfig(path string) (Config, error) {
	var c Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("economy.yaml: %w", err)
	}
	c.applyDefaults()
	return c, nil
}

func Defaults() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if len(c.Currencies) == 0 {
		c.Currencies = []CurrencyConfig{
			{ID: "COIN", Symbol: "g", Name: "Gold Coins", Primary: true, StartingBalance: 250},
			{ID: "SHARD", Symbol: "s", Name: "Soul Shards"},
		}
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = 100
	}
	if c.Market.ListingFeePermille <= 0 {
		c.Market.ListingFeePermille = 50
	}
	if c.Market.DurationTicks == 0 {
		c.Market.DurationTicks = 18000
	}
}

// Catalog builds the closed currency catalog from the config.
func (c Config) Catalog() (*Catalog, error) {
	defs := make([]CurrencyDef, 0, len(c.Currencies))
	for _, cc := range c.Currencies {
		defs = append(defs, CurrencyDef{
			ID:      Currency(cc.ID),
			Symbol:  cc.Symbol,
			Name:    cc.Name,
			Primary: cc.Primary,
			Start:   decimal.NewFromFloat(cc.StartingBalance),
		})
	}
	return NewCatalog(defs)
}
