package model

import "errors"

// Validation errors.
var (
	ErrZeroAmount      = errors.New("zero amount")
	ErrPriceOutOfRange = errors.New("price out of range")
	ErrZeroRecipient   = errors.New("zero recipient")
	ErrInvalidArgument = errors.New("invalid argument")
)

// State errors.
var (
	ErrMarketClosed   = errors.New("market not open")
	ErrDepletedPool   = errors.New("pool depleted, no exchange rate")
	ErrDustDeposit    = errors.New("deposit too small to mint units")
	ErrNoUnits        = errors.New("no units")
	ErrNotDepleted    = errors.New("pool still holds capital")
	ErrNothingToClaim = errors.New("nothing to claim")
	ErrSamePool       = errors.New("source and destination pool are the same")
)

// Liquidity errors.
var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrSlippage              = errors.New("output below minimum")
	ErrExceedsPosition       = errors.New("amount exceeds position")
)

// Timing, transfer, reentrancy and computation errors.
var (
	ErrDeadlineExpired = errors.New("deadline expired")
	ErrTransfer        = errors.New("transfer failed")
	ErrBudgetExceeded  = errors.New("native budget exceeded")
	ErrReentrancy      = errors.New("reentrant call")
	ErrOverflow        = errors.New("arithmetic overflow")
)

// Kind is the coarse failure class of an error.
type Kind string

const (
	KindNone        Kind = ""
	KindValidation  Kind = "validation"
	KindState       Kind = "state"
	KindLiquidity   Kind = "liquidity"
	KindTiming      Kind = "timing"
	KindTransfer    Kind = "transfer"
	KindReentrancy  Kind = "reentrancy"
	KindComputation Kind = "computation"
	KindUnknown     Kind = "unknown"
)

var kindTable = []struct {
	err  error
	kind Kind
}{
	{ErrZeroAmount, KindValidation},
	{ErrPriceOutOfRange, KindValidation},
	{ErrZeroRecipient, KindValidation},
	{ErrInvalidArgument, KindValidation},
	{ErrMarketClosed, KindState},
	{ErrDepletedPool, KindState},
	{ErrDustDeposit, KindState},
	{ErrNoUnits, KindState},
	{ErrNotDepleted, KindState},
	{ErrNothingToClaim, KindState},
	{ErrSamePool, KindState},
	{ErrInsufficientLiquidity, KindLiquidity},
	{ErrSlippage, KindLiquidity},
	{ErrExceedsPosition, KindLiquidity},
	{ErrDeadlineExpired, KindTiming},
	{ErrTransfer, KindTransfer},
	{ErrBudgetExceeded, KindTransfer},
	{ErrReentrancy, KindReentrancy},
	{ErrOverflow, KindComputation},
}

// KindOf classifies err. Reentrancy wins over anything it wraps.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrReentrancy) {
		return KindReentrancy
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindUnknown
}
