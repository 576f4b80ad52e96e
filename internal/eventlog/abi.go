// Package eventlog renders engine events as EVM-style logs and decodes them back.
// Every event type shares one field layout; only the event name, and therefore
// topic0, differs.
package eventlog

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"pmrouter/internal/model"
)

const eventInputsJSON = `[
      {"indexed": true, "internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "actor", "type": "address"},
      {"indexed": false, "internalType": "bytes32", "name": "marketId", "type": "bytes32"},
      {"indexed": false, "internalType": "bool", "name": "isYes", "type": "bool"},
      {"indexed": false, "internalType": "uint8", "name": "kind", "type": "uint8"},
      {"indexed": false, "internalType": "uint16", "name": "price", "type": "uint16"},
      {"indexed": false, "internalType": "uint16", "name": "toPrice", "type": "uint16"},
      {"indexed": false, "internalType": "address", "name": "recipient", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "shares", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "collateral", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "units", "type": "uint256"},
      {"indexed": false, "internalType": "string", "name": "source", "type": "string"},
      {"indexed": false, "internalType": "uint16", "name": "levels", "type": "uint16"}
    ]`

// eventNames maps engine event types to their log event names.
var eventNames = map[model.EventType]string{
	model.EventDeposit:     "PoolDeposit",
	model.EventFill:        "PoolFill",
	model.EventClaim:       "ProceedsClaimed",
	model.EventWithdraw:    "PoolWithdraw",
	model.EventExit:        "DepletedExit",
	model.EventMove:        "PositionMoved",
	model.EventExternal:    "ExternalTrade",
	model.EventTrade:       "Trade",
	model.EventMintAndPool: "MintAndPool",
}

func engineABIJSON() string {
	entries := make([]string, 0, len(model.EventTypes))
	for _, t := range model.EventTypes {
		entries = append(entries, fmt.Sprintf(`  {
    "anonymous": false,
    "inputs": %s,
    "name": %q,
    "type": "event"
  }`, eventInputsJSON, eventNames[t]))
	}
	return "[\n" + strings.Join(entries, ",\n") + "\n]"
}

var (
	engineABI     abi.ABI
	engineABIOnce sync.Once
	engineABIErr  error
)

// EngineABI returns the parsed event ABI.
func EngineABI() (abi.ABI, error) {
	engineABIOnce.Do(func() {
		engineABI, engineABIErr = abi.JSON(strings.NewReader(engineABIJSON()))
	})
	return engineABI, engineABIErr
}
