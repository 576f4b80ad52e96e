package sim

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pmrouter/internal/journal"
)

var (
	VaultAddress     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	BootstrapAddress = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// World bundles the simulated collaborators over one journal.
type World struct {
	Journal   *journal.Journal
	Balances  *Balances
	Vault     *Vault
	Bootstrap *Bootstrap
	Fees      *FeeCurve
}

// NewWorld wires balances, vault, bootstrap router and fee curve together.
func NewWorld(j *journal.Journal, now func() time.Time, boot BootstrapConfig, fees FeeConfig) *World {
	bal := NewBalances(j)
	vault := NewVault(j, bal, VaultAddress)
	b := NewBootstrap(boot, j, bal, vault, now, BootstrapAddress)
	curve := NewFeeCurve(fees, now, b)
	b.SetFeeOracle(curve)
	return &World{Journal: j, Balances: bal, Vault: vault, Bootstrap: b, Fees: curve}
}
