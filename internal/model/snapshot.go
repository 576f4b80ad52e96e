package model

import "github.com/ethereum/go-ethereum/common"

// PoolRecord is a pool's persisted state. Amounts are decimal strings.
type PoolRecord struct {
	Key                PoolKey
	TotalCapital       string
	TotalUnits         string
	AccProceedsPerUnit string
	ProceedsCollected  string
	ProceedsClaimed    string
}

// PositionRecord is a holder's persisted position.
type PositionRecord struct {
	Key          PoolKey
	Owner        common.Address
	Units        string
	ProceedsDebt string
}

// Snapshot is the full ledger state of an engine.
type Snapshot struct {
	Pools     []PoolRecord
	Positions []PositionRecord
}
