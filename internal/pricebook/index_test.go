package pricebook

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmrouter/internal/model"
)

func TestBitmapBoundaries(t *testing.T) {
	var b Bitmap
	assert.Equal(t, None, b.Lowest())
	assert.Equal(t, None, b.Highest())

	for _, p := range []uint16{1, 63, 64, 127, 128, 9999} {
		b.Set(p)
		assert.True(t, b.Has(p))
	}
	assert.Equal(t, uint16(1), b.Lowest())
	assert.Equal(t, uint16(9999), b.Highest())
	assert.Equal(t, 6, b.Count())

	assert.Equal(t, uint16(63), b.NextAbove(2))
	assert.Equal(t, uint16(64), b.NextAbove(64))
	assert.Equal(t, uint16(9999), b.NextAbove(129))
	assert.Equal(t, uint16(128), b.NextBelow(9998))
	assert.Equal(t, uint16(63), b.NextBelow(63))
	assert.Equal(t, uint16(1), b.NextBelow(62))
	assert.Equal(t, None, b.NextBelow(0))

	b.Clear(1)
	b.Clear(9999)
	assert.Equal(t, uint16(63), b.Lowest())
	assert.Equal(t, uint16(128), b.Highest())
}

func TestIndexLevelsMatchSortedSet(t *testing.T) {
	ix := New()
	key := model.BookKey{Market: common.HexToHash("0x1"), Yes: true, Kind: model.Ask}
	rng := rand.New(rand.NewSource(7))

	active := map[uint16]bool{}
	for i := 0; i < 2000; i++ {
		p := uint16(rng.Intn(9999) + 1)
		if rng.Intn(3) == 0 {
			ix.Clear(key, p)
			delete(active, p)
		} else {
			ix.Set(key, p)
			active[p] = true
		}
	}

	want := make([]int, 0, len(active))
	for p := range active {
		want = append(want, int(p))
	}
	sort.Ints(want)

	asc := ix.Levels(key, true, 0)
	require.Len(t, asc, len(want))
	for i, p := range asc {
		assert.Equal(t, want[i], int(p))
	}
	desc := ix.Levels(key, false, 5)
	require.Len(t, desc, 5)
	assert.Equal(t, want[len(want)-1], int(desc[0]))
	assert.Equal(t, uint16(want[0]), ix.Lowest(key))
	assert.Equal(t, uint16(want[len(want)-1]), ix.Highest(key))
}

func TestIndexIgnoresInvalidPricesAndDropsEmptyBooks(t *testing.T) {
	ix := New()
	key := model.BookKey{Market: common.HexToHash("0x2"), Kind: model.Bid}

	ix.Set(key, 0)
	ix.Set(key, 10000)
	assert.Empty(t, ix.Books())

	ix.Set(key, 4200)
	assert.True(t, ix.Has(key, 4200))
	assert.Len(t, ix.Books(), 1)

	scratch := ix.Scratch(key)
	scratch.Clear(4200)
	assert.True(t, ix.Has(key, 4200), "scratch copy must not alias the index")

	ix.Clear(key, 4200)
	assert.Empty(t, ix.Books())
	assert.Equal(t, None, ix.Highest(key))
}
