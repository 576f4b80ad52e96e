package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PoolKind distinguishes resting sell liquidity from resting buy liquidity.
type PoolKind uint8

const (
	// Ask pools hold outcome shares offered for collateral.
	Ask PoolKind = iota
	// Bid pools hold collateral offered for outcome shares.
	Bid
)

func (k PoolKind) String() string {
	switch k {
	case Ask:
		return "ask"
	case Bid:
		return "bid"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParsePoolKind converts "ask"/"bid" into a PoolKind.
func ParsePoolKind(s string) (PoolKind, error) {
	switch s {
	case "ask", "Ask", "ASK":
		return Ask, nil
	case "bid", "Bid", "BID":
		return Bid, nil
	default:
		return 0, fmt.Errorf("unknown pool kind %q", s)
	}
}

// BookKey identifies one side of one market's book: every price level under it shares
// a single price-level bitmap.
type BookKey struct {
	Market common.Hash
	Yes    bool
	Kind   PoolKind
}

// At returns the pool key for price under this book.
func (b BookKey) At(price uint16) PoolKey {
	return PoolKey{Market: b.Market, Yes: b.Yes, Kind: b.Kind, Price: price}
}

// PoolKey identifies a single price-level pool.
type PoolKey struct {
	Market common.Hash
	Yes    bool
	Kind   PoolKind
	Price  uint16
}

// Book returns the book the pool belongs to.
func (k PoolKey) Book() BookKey {
	return BookKey{Market: k.Market, Yes: k.Yes, Kind: k.Kind}
}

// ID is keccak256(abi.encode(market, isYes, price, kind)).
func (k PoolKey) ID() common.Hash {
	buf := make([]byte, 0, 128)
	buf = append(buf, k.Market.Bytes()...)
	yes := byte(0)
	if k.Yes {
		yes = 1
	}
	buf = append(buf, common.LeftPadBytes([]byte{yes}, 32)...)
	buf = append(buf, common.LeftPadBytes([]byte{byte(k.Price >> 8), byte(k.Price)}, 32)...)
	buf = append(buf, common.LeftPadBytes([]byte{byte(k.Kind)}, 32)...)
	return crypto.Keccak256Hash(buf)
}

func (k PoolKey) String() string {
	side := "no"
	if k.Yes {
		side = "yes"
	}
	return fmt.Sprintf("%s/%s/%s@%d", k.Market.Hex(), side, k.Kind, k.Price)
}

// SideName renders the outcome side.
func SideName(yes bool) string {
	if yes {
		return "YES"
	}
	return "NO"
}

// NoTokenID derives the NO token id of a market.
func NoTokenID(market common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte("PMARKET:NO"), market.Bytes())
}

// TokenID returns the outcome token id for the given side.
func TokenID(market common.Hash, yes bool) common.Hash {
	if yes {
		return market
	}
	return NoTokenID(market)
}

func (k PoolKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PoolKind) UnmarshalText(b []byte) error {
	v, err := ParsePoolKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
