package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pmrouter/internal/config"
	"pmrouter/internal/engine"
	"pmrouter/internal/journal"
	"pmrouter/internal/model"
	"pmrouter/internal/venue"
	"pmrouter/internal/venue/sim"
)

// StepResult is the outcome of one top-level step.
type StepResult struct {
	Index  int
	Op     string
	Actor  string
	Out    *uint256.Int
	Detail string
	Err    error
}

// Runner owns a simulated world and the engine trading against it.
type Runner struct {
	sc      Scenario
	clock   *sim.Clock
	world   *sim.World
	engine  *engine.Engine
	names   map[string]common.Address
	markets map[string]common.Hash
	logger  *zap.Logger
}

// New builds the world described by sc. sink may be nil.
func New(sc Scenario, sink engine.EventSink, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := sim.NewClock(sc.Start)
	j := journal.New()
	w := sim.NewWorld(j, clock.Now, sc.Bootstrap, sc.Fees)

	r := &Runner{
		sc:      sc,
		clock:   clock,
		world:   w,
		names:   make(map[string]common.Address),
		markets: make(map[string]common.Hash),
		logger:  logger.With(zap.String("scenario", sc.Name)),
	}
	if err := r.setup(); err != nil {
		return nil, err
	}
	j.Commit()

	self, err := config.ParseAddress(sc.Engine.Self)
	if err != nil {
		return nil, fmt.Errorf("engine self: %w", err)
	}
	e, err := engine.New(engine.Config{
		Self:           self,
		MaxSweepLevels: sc.Engine.MaxSweepLevels,
		Now:            clock.Now,
	}, engine.Collaborators{
		Vault:      w.Vault,
		Collateral: w.Balances,
		Bootstrap:  w.Bootstrap,
		Fees:       w.Fees,
	}, j, sink, logger)
	if err != nil {
		return nil, err
	}
	r.engine = e
	return r, nil
}

func (r *Runner) Engine() *engine.Engine { return r.engine }
func (r *Runner) World() *sim.World      { return r.world }
func (r *Runner) Clock() *sim.Clock      { return r.clock }

func (r *Runner) setup() error {
	for i, m := range r.sc.Markets {
		id, err := config.ParseHash(m.ID)
		if err != nil {
			return fmt.Errorf("market %d: %w", i, err)
		}
		asset, err := parseAsset(m.Collateral)
		if err != nil {
			return fmt.Errorf("market %s: %w", m.ID, err)
		}
		r.markets[m.ID] = id
		r.world.Vault.CreateMarket(id, sim.Market{
			Collateral: asset,
			CloseTime:  r.sc.Start.Add(m.ClosesIn),
			Resolved:   m.Resolved,
		})
		if m.AMM != nil {
			if err := r.world.Bootstrap.SeedPool(id, m.AMM.Yes, m.AMM.No); err != nil {
				return fmt.Errorf("seed amm %s: %w", m.ID, err)
			}
		}
		if m.Inventory != nil {
			if err := r.world.Bootstrap.SeedInventory(id, m.Inventory.Yes, m.Inventory.No); err != nil {
				return fmt.Errorf("seed inventory %s: %w", m.ID, err)
			}
		}
	}

	for _, a := range r.sc.Accounts {
		addr, err := config.ParseAddress(a.Address)
		if err != nil {
			return fmt.Errorf("account %s: %w", a.Name, err)
		}
		if a.Name != "" {
			r.names[a.Name] = addr
		}
		for asset, raw := range a.Collateral {
			token, err := parseAsset(asset)
			if err != nil {
				return fmt.Errorf("account %s: %w", a.Name, err)
			}
			amount, err := parseAmount(raw)
			if err != nil {
				return fmt.Errorf("account %s: %w", a.Name, err)
			}
			if err := r.world.Balances.MintCollateral(token, addr, amount); err != nil {
				return err
			}
		}
		for _, h := range a.Shares {
			market, err := r.market(h.Market)
			if err != nil {
				return fmt.Errorf("account %s: %w", a.Name, err)
			}
			yes, err := parseAmount(h.Yes)
			if err != nil {
				return err
			}
			no, err := parseAmount(h.No)
			if err != nil {
				return err
			}
			if err := r.world.Vault.Seed(market, addr, yes, no); err != nil {
				return err
			}
		}
	}
	return nil
}

// Address resolves an account name or hex address.
func (r *Runner) Address(ref string) (common.Address, error) {
	if addr, ok := r.names[ref]; ok {
		return addr, nil
	}
	return config.ParseAddress(ref)
}

// Market resolves a market id as written in the scenario or as hex.
func (r *Runner) market(ref string) (common.Hash, error) {
	if id, ok := r.markets[ref]; ok {
		return id, nil
	}
	return config.ParseHash(ref)
}

// Run executes every step in order. It stops at the first step whose outcome
// differs from its expectation.
func (r *Runner) Run(ctx context.Context) ([]StepResult, error) {
	results := make([]StepResult, 0, len(r.sc.Steps))
	for i, step := range r.sc.Steps {
		res, err := r.Step(ctx, step)
		res.Index = i
		results = append(results, res)
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}
	return results, nil
}

// Step executes one step and checks its expectations.
func (r *Runner) Step(ctx context.Context, step Step) (StepResult, error) {
	res := StepResult{Op: step.Op, Actor: step.Actor}
	res.Out, res.Detail, res.Err = r.exec(ctx, step)

	log := r.logger.With(zap.String("op", step.Op), zap.String("actor", step.Actor))
	switch {
	case step.Expect != "" && res.Err == nil:
		return res, fmt.Errorf("expected %s error, got success", step.Expect)
	case step.Expect != "" && !matches(step.Expect, res.Err):
		return res, fmt.Errorf("expected %s error, got: %w", step.Expect, res.Err)
	case step.Expect == "" && res.Err != nil:
		return res, res.Err
	}
	if res.Err != nil {
		log.Debug("step failed as expected", zap.Error(res.Err))
		return res, nil
	}
	if step.ExpectOut != "" {
		want, err := parseAmount(step.ExpectOut)
		if err != nil {
			return res, err
		}
		if res.Out == nil || !res.Out.Eq(want) {
			return res, fmt.Errorf("expected output %s, got %s", want.Dec(), decOrNil(res.Out))
		}
	}
	log.Debug("step done", zap.String("detail", res.Detail))
	return res, nil
}

func (r *Runner) exec(ctx context.Context, step Step) (*uint256.Int, string, error) {
	switch step.Op {
	case "advance":
		if step.Duration <= 0 {
			return nil, "", fmt.Errorf("advance needs a positive duration: %w", model.ErrInvalidArgument)
		}
		r.clock.Advance(step.Duration)
		return nil, "now=" + r.clock.Now().Format(time.RFC3339), nil
	case "resolve":
		market, err := r.market(step.Market)
		if err != nil {
			return nil, "", err
		}
		if err := r.world.Vault.Resolve(market); err != nil {
			return nil, "", err
		}
		r.world.Journal.Commit()
		return nil, "resolved", nil
	case "quote_buy", "quote_sell":
		return r.quote(ctx, step)
	}

	actor, err := r.Address(step.Actor)
	if err != nil {
		return nil, "", fmt.Errorf("actor: %w", err)
	}
	value, err := parseAmount(step.Value)
	if err != nil {
		return nil, "", err
	}

	steps := []Step{step}
	if step.Op == "multicall" {
		if len(step.Calls) == 0 {
			return nil, "", fmt.Errorf("empty multicall: %w", model.ErrInvalidArgument)
		}
		steps = step.Calls
	}

	var (
		out     *uint256.Int
		details []string
	)
	calls := make([]engine.Call, 0, len(steps))
	for _, s := range steps {
		calls = append(calls, func(b *engine.Batch) error {
			o, detail, err := r.call(b, s)
			if err != nil {
				return err
			}
			out = o
			details = append(details, detail)
			return nil
		})
	}
	if err := r.engine.Multicall(ctx, actor, value, calls...); err != nil {
		return nil, "", err
	}
	return out, strings.Join(details, "; "), nil
}

// call runs one operation on an open batch.
func (r *Runner) call(b *engine.Batch, s Step) (*uint256.Int, string, error) {
	market, err := r.market(s.Market)
	if err != nil {
		return nil, "", err
	}
	yes, err := parseSide(s.Side)
	if err != nil {
		return nil, "", err
	}
	amount, err := parseAmount(s.Amount)
	if err != nil {
		return nil, "", err
	}
	to := b.Caller()
	if s.To != "" {
		if to, err = r.Address(s.To); err != nil {
			return nil, "", fmt.Errorf("to: %w", err)
		}
	}
	ask := model.PoolKey{Market: market, Yes: yes, Kind: model.Ask, Price: s.Price}
	bid := model.PoolKey{Market: market, Yes: yes, Kind: model.Bid, Price: s.Price}

	switch s.Op {
	case "deposit_ask", "deposit_bid":
		key := pick(s.Op, ask, bid)
		units, err := b.Deposit(key, amount)
		if err != nil {
			return nil, "", err
		}
		return units, "units=" + units.Dec(), nil
	case "claim_ask", "claim_bid":
		claimed, err := b.Claim(pick(s.Op, ask, bid))
		if err != nil {
			return nil, "", err
		}
		return claimed, "claimed=" + claimed.Dec(), nil
	case "withdraw_ask", "withdraw_bid":
		w, err := b.Withdraw(pick(s.Op, ask, bid), amount, to)
		if err != nil {
			return nil, "", err
		}
		return w.Capital, fmt.Sprintf("capital=%s proceeds=%s burned=%s", w.Capital.Dec(), w.Proceeds.Dec(), w.Burned.Dec()), nil
	case "exit_ask", "exit_bid":
		proceeds, err := b.ExitDepleted(pick(s.Op, ask, bid), to)
		if err != nil {
			return nil, "", err
		}
		return proceeds, "proceeds=" + proceeds.Dec(), nil
	case "move_ask", "move_bid":
		m, err := b.Move(pick(s.Op, ask, bid), s.ToPrice, amount)
		if err != nil {
			return nil, "", err
		}
		return m.NewUnits, fmt.Sprintf("claimed=%s moved=%s burned=%s units=%s", m.Claimed.Dec(), m.Moved.Dec(), m.Burned.Dec(), m.NewUnits.Dec()), nil
	case "mint_and_pool":
		m, err := b.MintAndPool(market, yes, s.Price, amount, to)
		if err != nil {
			return nil, "", err
		}
		return m.Units, fmt.Sprintf("kept=%s units=%s", m.Kept.Dec(), m.Units.Dec()), nil
	case "buy", "sell":
		minOut, err := parseAmount(s.Min)
		if err != nil {
			return nil, "", err
		}
		var res engine.TradeResult
		if s.Op == "buy" {
			res, err = b.Buy(engine.BuyParams{
				Market: market, Yes: yes, CollateralIn: amount, MinSharesOut: minOut,
				PoolPrice: s.Price, MaxPrice: s.MaxPrice, UseBootstrap: s.Bootstrap,
				Recipient: to, Deadline: r.deadline(s),
			})
		} else {
			res, err = b.Sell(engine.SellParams{
				Market: market, Yes: yes, SharesIn: amount, MinCollateralOut: minOut,
				PoolPrice: s.Price, MinPrice: s.MinPrice, UseBootstrap: s.Bootstrap,
				Recipient: to, Deadline: r.deadline(s),
			})
		}
		if err != nil {
			return nil, "", err
		}
		return res.AmountOut, describeTrade(res), nil
	case "fill_ask", "fill_bid":
		if s.Op == "fill_ask" {
			limit, err := parseLimit(s.Max)
			if err != nil {
				return nil, "", err
			}
			cost, err := b.FillAskPool(market, yes, s.Price, amount, limit, to, r.deadline(s))
			if err != nil {
				return nil, "", err
			}
			return cost, "cost=" + cost.Dec(), nil
		}
		minPay, err := parseAmount(s.Min)
		if err != nil {
			return nil, "", err
		}
		pay, err := b.FillBidPool(market, yes, s.Price, amount, minPay, to, r.deadline(s))
		if err != nil {
			return nil, "", err
		}
		return pay, "paid=" + pay.Dec(), nil
	default:
		return nil, "", fmt.Errorf("unknown op %q: %w", s.Op, model.ErrInvalidArgument)
	}
}

func (r *Runner) quote(ctx context.Context, s Step) (*uint256.Int, string, error) {
	market, err := r.market(s.Market)
	if err != nil {
		return nil, "", err
	}
	yes, err := parseSide(s.Side)
	if err != nil {
		return nil, "", err
	}
	amount, err := parseAmount(s.Amount)
	if err != nil {
		return nil, "", err
	}
	// quotes never move funds; any address that is not zero will do
	recipient := r.engine.Self()
	var res engine.TradeResult
	if s.Op == "quote_buy" {
		res = r.engine.QuoteBuy(ctx, engine.BuyParams{
			Market: market, Yes: yes, CollateralIn: amount, PoolPrice: s.Price,
			MaxPrice: s.MaxPrice, UseBootstrap: s.Bootstrap, Recipient: recipient,
		})
	} else {
		res = r.engine.QuoteSell(ctx, engine.SellParams{
			Market: market, Yes: yes, SharesIn: amount, PoolPrice: s.Price,
			MinPrice: s.MinPrice, UseBootstrap: s.Bootstrap, Recipient: recipient,
		})
	}
	return res.AmountOut, describeTrade(res), nil
}

func (r *Runner) deadline(s Step) time.Time {
	if s.Deadline == 0 {
		return time.Time{}
	}
	return r.clock.Now().Add(s.Deadline)
}

func pick(op string, ask, bid model.PoolKey) model.PoolKey {
	if strings.HasSuffix(op, "_bid") {
		return bid
	}
	return ask
}

func describeTrade(res engine.TradeResult) string {
	return fmt.Sprintf("out=%s pool=%s external=%s unspent=%s levels=%d source=%s",
		decOrNil(res.AmountOut), decOrNil(res.PoolOut), decOrNil(res.ExternalOut), decOrNil(res.Unspent), res.Levels, res.Source)
}

func decOrNil(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func parseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(strings.ReplaceAll(s, "_", ""))
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, errors.Join(model.ErrInvalidArgument, err))
	}
	return v, nil
}

// parseLimit treats an empty cap as unlimited.
func parseLimit(s string) (*uint256.Int, error) {
	if strings.TrimSpace(s) == "" {
		return new(uint256.Int).SetAllOne(), nil
	}
	return parseAmount(s)
}

func parseSide(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "":
		return true, nil
	case "no":
		return false, nil
	default:
		return false, fmt.Errorf("side %q: %w", s, model.ErrInvalidArgument)
	}
}

func parseAsset(s string) (common.Address, error) {
	if strings.EqualFold(strings.TrimSpace(s), "native") {
		return venue.NativeAsset, nil
	}
	return config.ParseAddress(s)
}
