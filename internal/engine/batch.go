package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pmrouter/internal/fixed"
	"pmrouter/internal/model"
	"pmrouter/internal/venue"
)

// Batch is the context of one atomic unit of work. Every operation runs on a
// Batch; a failure anywhere rolls back everything the batch did.
type Batch struct {
	e      *Engine
	ctx    context.Context
	caller common.Address

	// native budget: value sent with the batch and how much of it calls consumed.
	nativeIn *uint256.Int
	spent    *uint256.Int
}

// Call is one operation inside a Multicall.
type Call func(b *Batch) error

// Caller returns the account the batch acts for.
func (b *Batch) Caller() common.Address { return b.caller }

// NativeSpent returns the native value consumed so far.
func (b *Batch) NativeSpent() *uint256.Int { return b.spent.Clone() }

// Multicall runs calls in one atomic scope. nativeValue (may be nil) is moved from
// caller into custody up front; calls paying native collateral draw it down and
// whatever is left is refunded once when the batch finishes.
func (e *Engine) Multicall(ctx context.Context, caller common.Address, nativeValue *uint256.Int, calls ...Call) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	if nativeValue == nil {
		nativeValue = new(uint256.Int)
	}
	b := &Batch{e: e, ctx: ctx, caller: caller, nativeIn: nativeValue.Clone(), spent: new(uint256.Int)}

	snap := e.j.Snapshot()
	e.pending = e.pending[:0]
	started := time.Now()

	err = b.run(calls)
	if err != nil {
		e.j.RevertToSnapshot(snap)
		e.pending = e.pending[:0]
		e.logger.Warn("batch reverted",
			zap.String("caller", caller.Hex()),
			zap.Int("calls", len(calls)),
			zap.String("kind", string(model.KindOf(err))),
			zap.Error(err),
		)
		return err
	}
	e.j.Commit()

	events := e.publish(ctx)
	e.logger.Debug("batch committed",
		zap.String("caller", caller.Hex()),
		zap.Int("calls", len(calls)),
		zap.Int("events", len(events)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (b *Batch) run(calls []Call) error {
	if !b.nativeIn.IsZero() {
		if err := b.e.venues.Collateral.Transfer(b.ctx, venue.NativeAsset, b.caller, b.e.cfg.Self, b.nativeIn); err != nil {
			return fmt.Errorf("receive native value: %w", wrapTransfer(err))
		}
	}
	for i, call := range calls {
		if err := call(b); err != nil {
			if len(calls) == 1 {
				return err
			}
			return fmt.Errorf("call %d: %w", i, err)
		}
	}
	refund := new(uint256.Int).Sub(b.nativeIn, b.spent)
	if !refund.IsZero() {
		if err := b.e.venues.Collateral.Transfer(b.ctx, venue.NativeAsset, b.e.cfg.Self, b.caller, refund); err != nil {
			return fmt.Errorf("refund native value: %w", wrapTransfer(err))
		}
	}
	return nil
}

// publish stamps buffered events and hands them to the sink.
func (e *Engine) publish(ctx context.Context) []model.Event {
	if len(e.pending) == 0 {
		return nil
	}
	events := make([]model.Event, len(e.pending))
	copy(events, e.pending)
	e.pending = e.pending[:0]

	ts := e.now()
	for i := range events {
		e.seq++
		events[i].Seq = e.seq
		events[i].ID = uuid.NewString()
		events[i].Timestamp = ts
	}
	if e.sink != nil {
		if err := e.sink.PutEvents(ctx, events); err != nil {
			e.logger.Warn("publish events", zap.Int("count", len(events)), zap.Error(err))
		}
	}
	return events
}

func (b *Batch) emit(ev model.Event) {
	if ev.Actor == (common.Address{}) {
		ev.Actor = b.caller
	}
	b.e.pending = append(b.e.pending, ev)
}

func wrapTransfer(err error) error {
	if model.KindOf(err) == model.KindUnknown {
		return fmt.Errorf("%w: %v", model.ErrTransfer, err)
	}
	return err
}

// pullCollateral moves amount of asset from the caller into custody. Native
// collateral is drawn from the batch budget instead.
func (b *Batch) pullCollateral(asset common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if asset == venue.NativeAsset {
		spent, err := fixed.Add(b.spent, amount)
		if err != nil {
			return err
		}
		if spent.Gt(b.nativeIn) {
			return fmt.Errorf("native spend %s > %s: %w", spent.Dec(), b.nativeIn.Dec(), model.ErrBudgetExceeded)
		}
		b.spent = spent
		return nil
	}
	if err := b.e.venues.Collateral.Transfer(b.ctx, asset, b.caller, b.e.cfg.Self, amount); err != nil {
		return fmt.Errorf("pull collateral: %w", wrapTransfer(err))
	}
	return nil
}

// returnCollateral gives back collateral pulled earlier in the batch.
func (b *Batch) returnCollateral(asset common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if asset == venue.NativeAsset {
		b.spent = fixed.SatSub(b.spent, amount)
		return nil
	}
	return b.sendCollateral(asset, b.caller, amount)
}

func (b *Batch) sendCollateral(asset, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := b.e.venues.Collateral.Transfer(b.ctx, asset, b.e.cfg.Self, to, amount); err != nil {
		return fmt.Errorf("send collateral: %w", wrapTransfer(err))
	}
	return nil
}

func (b *Batch) pullShares(token common.Hash, amount *uint256.Int) error {
	if err := b.e.venues.Vault.TransferShares(b.ctx, token, b.caller, b.e.cfg.Self, amount); err != nil {
		return fmt.Errorf("pull shares: %w", wrapTransfer(err))
	}
	return nil
}

func (b *Batch) sendShares(token common.Hash, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := b.e.venues.Vault.TransferShares(b.ctx, token, b.e.cfg.Self, to, amount); err != nil {
		return fmt.Errorf("send shares: %w", wrapTransfer(err))
	}
	return nil
}

// market returns the market's info, requiring it to be open when open is set.
func (b *Batch) market(id common.Hash, open bool) (venue.MarketInfo, error) {
	info, err := b.e.venues.Vault.MarketInfo(b.ctx, id)
	if err != nil {
		return info, fmt.Errorf("market info: %w", err)
	}
	if !info.Exists || (open && !info.OpenAt(b.e.now())) {
		return info, fmt.Errorf("market %s: %w", id.Hex(), model.ErrMarketClosed)
	}
	return info, nil
}

func (b *Batch) checkDeadline(deadline time.Time) error {
	if !deadline.IsZero() && b.e.now().After(deadline) {
		return model.ErrDeadlineExpired
	}
	return nil
}
