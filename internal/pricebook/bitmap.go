// Package pricebook tracks which price levels of a book currently hold capital.
package pricebook

import (
	"math/bits"

	"pmrouter/internal/fixed"
)

// Words is the number of 64-bit words needed to cover prices 0..MaxPrice.
const Words = fixed.MaxPrice/64 + 1

// None is returned by scans that find no active level.
const None uint16 = 0

// Bitmap is a fixed-size bitset over the price domain. Bit p is price p; bit 0 is
// never set.
type Bitmap [Words]uint64

// Set marks price as active.
func (b *Bitmap) Set(price uint16) {
	b[price>>6] |= 1 << (price & 63)
}

// Clear marks price as inactive.
func (b *Bitmap) Clear(price uint16) {
	b[price>>6] &^= 1 << (price & 63)
}

// Has reports whether price is active.
func (b *Bitmap) Has(price uint16) bool {
	return b[price>>6]&(1<<(price&63)) != 0
}

// Empty reports whether no level is active.
func (b *Bitmap) Empty() bool {
	for _, w := range b {
		if w != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of active levels.
func (b *Bitmap) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

// Lowest returns the lowest active price, or None.
func (b *Bitmap) Lowest() uint16 {
	for i, w := range b {
		if w != 0 {
			return uint16(i<<6 + bits.TrailingZeros64(w))
		}
	}
	return None
}

// Highest returns the highest active price, or None.
func (b *Bitmap) Highest() uint16 {
	for i := Words - 1; i >= 0; i-- {
		if w := b[i]; w != 0 {
			return uint16(i<<6 + 63 - bits.LeadingZeros64(w))
		}
	}
	return None
}

// NextAbove returns the lowest active price >= from, or None.
func (b *Bitmap) NextAbove(from uint16) uint16 {
	if from > fixed.MaxPrice {
		return None
	}
	i := int(from >> 6)
	w := b[i] &^ (1<<(from&63) - 1)
	for {
		if w != 0 {
			return uint16(i<<6 + bits.TrailingZeros64(w))
		}
		i++
		if i == Words {
			return None
		}
		w = b[i]
	}
}

// NextBelow returns the highest active price <= from, or None.
func (b *Bitmap) NextBelow(from uint16) uint16 {
	if from > fixed.MaxPrice {
		from = fixed.MaxPrice
	}
	i := int(from >> 6)
	shift := from & 63
	w := b[i]
	if shift != 63 {
		w &= 1<<(shift+1) - 1
	}
	for {
		if w != 0 {
			return uint16(i<<6 + 63 - bits.LeadingZeros64(w))
		}
		i--
		if i < 0 {
			return None
		}
		w = b[i]
	}
}
