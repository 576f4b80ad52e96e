// Package scenario replays YAML-described sequences of engine operations against
// simulated venues.
package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pmrouter/internal/venue/sim"
)

// Scenario is a full simulation: world setup followed by steps.
type Scenario struct {
	Name      string              `yaml:"name"`
	Start     time.Time           `yaml:"start"`
	Engine    EngineConfig        `yaml:"engine"`
	Bootstrap sim.BootstrapConfig `yaml:"bootstrap"`
	Fees      sim.FeeConfig       `yaml:"fees"`
	Markets   []Market            `yaml:"markets"`
	Accounts  []Account           `yaml:"accounts"`
	Steps     []Step              `yaml:"steps"`
}

type EngineConfig struct {
	Self           string `yaml:"self"`
	MaxSweepLevels int    `yaml:"max_sweep_levels"`
}

// Pair is a YES/NO amount pair in whole base units.
type Pair struct {
	Yes uint64 `yaml:"yes"`
	No  uint64 `yaml:"no"`
}

type Market struct {
	ID string `yaml:"id"`
	// Collateral is an asset address or "native".
	Collateral string        `yaml:"collateral"`
	ClosesIn   time.Duration `yaml:"closes_in"`
	Resolved   bool          `yaml:"resolved"`
	AMM        *Pair         `yaml:"amm"`
	Inventory  *Pair         `yaml:"inventory"`
}

type Holding struct {
	Market string `yaml:"market"`
	Yes    string `yaml:"yes"`
	No     string `yaml:"no"`
}

type Account struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	// Collateral maps an asset address (or "native") to a starting balance.
	Collateral map[string]string `yaml:"collateral"`
	Shares     []Holding         `yaml:"shares"`
}

// Step is one operation. Which fields matter depends on Op.
type Step struct {
	Op        string        `yaml:"op"`
	Actor     string        `yaml:"actor"`
	Market    string        `yaml:"market"`
	Side      string        `yaml:"side"`
	Price     uint16        `yaml:"price"`
	ToPrice   uint16        `yaml:"to_price"`
	MaxPrice  uint16        `yaml:"max_price"`
	MinPrice  uint16        `yaml:"min_price"`
	Amount    string        `yaml:"amount"`
	Min       string        `yaml:"min"`
	Max       string        `yaml:"max"`
	Value     string        `yaml:"value"`
	Bootstrap bool          `yaml:"bootstrap"`
	To        string        `yaml:"to"`
	Deadline  time.Duration `yaml:"deadline"`
	Duration  time.Duration `yaml:"duration"`
	Calls     []Step        `yaml:"calls"`

	// Expect names the error the step must fail with: a sentinel such as
	// "slippage" or an error kind such as "liquidity".
	Expect    string `yaml:"expect"`
	ExpectOut string `yaml:"expect_out"`
}

func defaults() Scenario {
	return Scenario{
		Start:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Engine:    EngineConfig{Self: "0x00000000000000000000000000000000000000e0"},
		Bootstrap: sim.DefaultBootstrapConfig(),
		Fees:      sim.DefaultFeeConfig(),
	}
}

// Parse decodes a scenario. Unset bootstrap and fee fields keep their defaults.
func Parse(data []byte) (Scenario, error) {
	sc := defaults()
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	if len(sc.Markets) == 0 {
		return Scenario{}, fmt.Errorf("parse scenario: no markets")
	}
	return sc, nil
}

// Load reads and parses a scenario file.
func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}
