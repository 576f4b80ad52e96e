package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"pmrouter/internal/venue"
)

const vaultABIJSON = `[
  {"type":"function","name":"markets","stateMutability":"view",
   "inputs":[{"name":"marketId","type":"bytes32"}],
   "outputs":[
     {"name":"exists","type":"bool"},
     {"name":"resolved","type":"bool"},
     {"name":"closeTime","type":"uint64"},
     {"name":"collateral","type":"address"}]}
]`

var (
	vaultABIOnce sync.Once
	vaultABI     abi.ABI
	vaultABIErr  error
)

// VaultABI returns the parsed market vault ABI.
func VaultABI() (abi.ABI, error) {
	vaultABIOnce.Do(func() {
		vaultABI, vaultABIErr = abi.JSON(strings.NewReader(vaultABIJSON))
	})
	return vaultABI, vaultABIErr
}

// VaultReader reads market metadata from a deployed vault contract.
type VaultReader struct {
	client  *Client
	address common.Address
	abi     abi.ABI
}

func NewVaultReader(client *Client, address common.Address) (*VaultReader, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	parsed, err := VaultABI()
	if err != nil {
		return nil, err
	}
	return &VaultReader{client: client, address: address, abi: parsed}, nil
}

// MarketInfo calls markets(marketId).
func (r *VaultReader) MarketInfo(ctx context.Context, market common.Hash) (venue.MarketInfo, error) {
	input, err := r.abi.Pack("markets", market)
	if err != nil {
		return venue.MarketInfo{}, fmt.Errorf("pack markets: %w", err)
	}
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: input})
	if err != nil {
		return venue.MarketInfo{}, fmt.Errorf("call markets %s: %w", market.Hex(), err)
	}
	values, err := r.abi.Unpack("markets", out)
	if err != nil {
		return venue.MarketInfo{}, fmt.Errorf("unpack markets: %w", err)
	}
	if len(values) != 4 {
		return venue.MarketInfo{}, fmt.Errorf("unpack markets: got %d values", len(values))
	}
	exists, ok1 := values[0].(bool)
	resolved, ok2 := values[1].(bool)
	closeTime, ok3 := values[2].(uint64)
	collateral, ok4 := values[3].(common.Address)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return venue.MarketInfo{}, fmt.Errorf("unpack markets: unexpected types")
	}
	return venue.MarketInfo{
		Exists:     exists,
		Resolved:   resolved,
		CloseTime:  time.Unix(int64(closeTime), 0).UTC(),
		Collateral: collateral,
	}, nil
}
