package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names an engine event.
type EventType string

const (
	EventDeposit     EventType = "deposit"
	EventFill        EventType = "fill"
	EventClaim       EventType = "claim"
	EventWithdraw    EventType = "withdraw"
	EventExit        EventType = "exit"
	EventMove        EventType = "move"
	EventExternal    EventType = "external"
	EventTrade       EventType = "trade"
	EventMintAndPool EventType = "mint_and_pool"
)

// EventTypes lists every event type in a stable order.
var EventTypes = []EventType{
	EventDeposit, EventFill, EventClaim, EventWithdraw, EventExit,
	EventMove, EventExternal, EventTrade, EventMintAndPool,
}

// Event is the structured record emitted for every committed engine mutation.
// Amounts are decimal strings; empty means not applicable.
//
// Capital and Proceeds follow the pool kind: for ask pools capital is shares and
// proceeds are collateral, for bid pools the roles are swapped. Shares and
// Collateral carry the same figures in asset terms so consumers need not care.
type Event struct {
	ID         string         `json:"id"`
	Seq        uint64         `json:"seq"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	PoolID     common.Hash    `json:"pool_id"`
	Market     common.Hash    `json:"market"`
	Yes        bool           `json:"yes"`
	Kind       PoolKind       `json:"kind"`
	Price      uint16         `json:"price,omitempty"`
	ToPrice    uint16         `json:"to_price,omitempty"`
	Actor      common.Address `json:"actor"`
	Recipient  common.Address `json:"recipient,omitempty"`
	Shares     string         `json:"shares,omitempty"`
	Collateral string         `json:"collateral,omitempty"`
	Units      string         `json:"units,omitempty"`
	Source     Source         `json:"source,omitempty"`
	Levels     int            `json:"levels,omitempty"`
}

// Key returns the pool key the event refers to.
func (e Event) Key() PoolKey {
	return PoolKey{Market: e.Market, Yes: e.Yes, Kind: e.Kind, Price: e.Price}
}
