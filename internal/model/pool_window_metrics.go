package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PoolWindowMetrics is the fill activity of one price-level pool over one time window.
type PoolWindowMetrics struct {
	PoolID           common.Hash
	Market           common.Hash
	Yes              bool
	Kind             PoolKind
	Price            uint16
	WindowSizeSecs   int64
	WindowStart      time.Time
	WindowEnd        time.Time
	FillCount        uint64
	UniqueTakers     uint64
	SharesVolume     string
	CollateralVolume string
	// VWAPBps is nil when the window traded no shares.
	VWAPBps *string
	LastSeq uint64
}
