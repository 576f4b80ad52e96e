// Package engine is the limit-order liquidity engine: price-level ask and bid pools
// on top of the accumulator ledger, a bitmap price index, position migration, the
// sweep/waterfall router and its read-only quoter.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pmrouter/internal/journal"
	"pmrouter/internal/model"
	"pmrouter/internal/pricebook"
	"pmrouter/internal/venue"
)

const defaultMaxSweepLevels = 50

// Config controls engine behavior.
type Config struct {
	// Self is the custody account holding pooled shares, collateral and proceeds.
	Self           common.Address
	MaxSweepLevels int
	Now            func() time.Time
}

// Collaborators are the external venues the engine trades through.
type Collaborators struct {
	Vault      venue.Vault
	Collateral venue.Collateral
	Bootstrap  venue.Bootstrap
	Fees       venue.FeeOracle
}

// EventSink receives events of committed operations.
type EventSink interface {
	PutEvents(ctx context.Context, events []model.Event) error
}

type posKey struct {
	pool  model.PoolKey
	owner common.Address
}

// Engine owns every pool, position and the price index. It is not safe for
// concurrent use; wrap it in Serialized when several goroutines share it.
type Engine struct {
	cfg    Config
	venues Collaborators
	j      *journal.Journal
	sink   EventSink
	logger *zap.Logger

	pools     map[model.PoolKey]*model.Pool
	positions map[posKey]*model.Position
	index     *pricebook.Index

	locked  bool
	pending []model.Event
	seq     uint64
}

// New builds an engine. j must be the journal the in-process collaborators write
// through; sink may be nil.
func New(cfg Config, venues Collaborators, j *journal.Journal, sink EventSink, logger *zap.Logger) (*Engine, error) {
	if cfg.Self == (common.Address{}) {
		return nil, fmt.Errorf("engine self address is required")
	}
	if venues.Vault == nil || venues.Collateral == nil {
		return nil, fmt.Errorf("vault and collateral collaborators are required")
	}
	if cfg.MaxSweepLevels <= 0 {
		cfg.MaxSweepLevels = defaultMaxSweepLevels
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if j == nil {
		j = journal.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		venues:    venues,
		j:         j,
		sink:      sink,
		logger:    logger,
		pools:     make(map[model.PoolKey]*model.Pool),
		positions: make(map[posKey]*model.Position),
		index:     pricebook.New(),
	}, nil
}

// Self returns the engine's custody address.
func (e *Engine) Self() common.Address { return e.cfg.Self }

func (e *Engine) now() time.Time { return e.cfg.Now() }

// enter takes the reentrancy lock. The returned func releases it.
func (e *Engine) enter() (func(), error) {
	if e.locked {
		return nil, model.ErrReentrancy
	}
	e.locked = true
	return func() { e.locked = false }, nil
}
