package sim

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pmrouter/internal/fixed"
	"pmrouter/internal/venue/amm"
)

// FeeConfig parameterizes the dynamic AMM fee.
type FeeConfig struct {
	MinFeeBps         uint64        `yaml:"min_fee_bps"`
	MaxFeeBps         uint64        `yaml:"max_fee_bps"`
	BootstrapWindow   time.Duration `yaml:"bootstrap_window"`
	MaxPriceImpactBps uint64        `yaml:"max_price_impact_bps"`
	MaxSkewFeeBps     uint64        `yaml:"max_skew_fee_bps"`
	SkewRefBps        uint64        `yaml:"skew_ref_bps"`
	AsymmetricFeeBps  uint64        `yaml:"asymmetric_fee_bps"`
	FeeCapBps         uint64        `yaml:"fee_cap_bps"`
}

func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		MinFeeBps:         10,
		MaxFeeBps:         75,
		BootstrapWindow:   48 * time.Hour,
		MaxPriceImpactBps: 1200,
		MaxSkewFeeBps:     80,
		SkewRefBps:        4000,
		AsymmetricFeeBps:  20,
		FeeCapBps:         300,
	}
}

// ReserveSource exposes AMM reserves and the pool's creation time.
type ReserveSource interface {
	Reserves(market common.Hash) (amm.Reserves, time.Time, bool)
}

// FeeCurve implements venue.FeeOracle: a bootstrap fee decaying linearly from max
// to min, plus a quadratic skew fee and a linear asymmetric fee, capped.
type FeeCurve struct {
	cfg   FeeConfig
	now   func() time.Time
	pools ReserveSource
}

func NewFeeCurve(cfg FeeConfig, now func() time.Time, pools ReserveSource) *FeeCurve {
	return &FeeCurve{cfg: cfg, now: now, pools: pools}
}

func (f *FeeCurve) CurrentFeeBps(_ context.Context, market common.Hash) (uint64, error) {
	r, created, ok := f.pools.Reserves(market)
	if !ok {
		return f.cfg.MinFeeBps, nil
	}
	return f.feeAt(r, f.now().Sub(created)), nil
}

func (f *FeeCurve) MaxPriceImpactBps(context.Context, common.Hash) (uint64, error) {
	return f.cfg.MaxPriceImpactBps, nil
}

func (f *FeeCurve) feeAt(r amm.Reserves, elapsed time.Duration) uint64 {
	base := f.cfg.MinFeeBps
	if elapsed < 0 {
		elapsed = 0
	}
	window := uint64(f.cfg.BootstrapWindow / time.Second)
	if elapsed < f.cfg.BootstrapWindow && window > 0 && f.cfg.MaxFeeBps > f.cfg.MinFeeBps {
		span := f.cfg.MaxFeeBps - f.cfg.MinFeeBps
		base = f.cfg.MaxFeeBps - span*uint64(elapsed/time.Second)/window
	}

	p := r.PriceYesBps()
	var skew uint64
	if p > fixed.BPS/2 {
		skew = p - fixed.BPS/2
	} else {
		skew = fixed.BPS/2 - p
	}

	skewFee := f.cfg.MaxSkewFeeBps
	if f.cfg.SkewRefBps > 0 && skew < f.cfg.SkewRefBps {
		skewFee = f.cfg.MaxSkewFeeBps * skew * skew / (f.cfg.SkewRefBps * f.cfg.SkewRefBps)
	}
	asym := f.cfg.AsymmetricFeeBps * skew / (fixed.BPS / 2)

	return min(base+skewFee+asym, f.cfg.FeeCapBps)
}
