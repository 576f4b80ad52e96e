package pricebook

import (
	"pmrouter/internal/fixed"
	"pmrouter/internal/model"
)

// Index holds one bitmap per book. The zero value is not usable; call New.
type Index struct {
	books map[model.BookKey]*Bitmap
}

func New() *Index {
	return &Index{books: make(map[model.BookKey]*Bitmap)}
}

// Set marks price active under key.
func (ix *Index) Set(key model.BookKey, price uint16) {
	if !fixed.ValidPrice(price) {
		return
	}
	b, ok := ix.books[key]
	if !ok {
		b = new(Bitmap)
		ix.books[key] = b
	}
	b.Set(price)
}

// Clear marks price inactive under key. Books that become empty are dropped.
func (ix *Index) Clear(key model.BookKey, price uint16) {
	b, ok := ix.books[key]
	if !ok || !fixed.ValidPrice(price) {
		return
	}
	b.Clear(price)
	if b.Empty() {
		delete(ix.books, key)
	}
}

// Has reports whether price is active under key.
func (ix *Index) Has(key model.BookKey, price uint16) bool {
	b, ok := ix.books[key]
	return ok && fixed.ValidPrice(price) && b.Has(price)
}

// Lowest returns the lowest active price of the book, or None.
func (ix *Index) Lowest(key model.BookKey) uint16 {
	if b, ok := ix.books[key]; ok {
		return b.Lowest()
	}
	return None
}

// Highest returns the highest active price of the book, or None.
func (ix *Index) Highest(key model.BookKey) uint16 {
	if b, ok := ix.books[key]; ok {
		return b.Highest()
	}
	return None
}

// Scratch returns a copy of the book's bitmap that callers may mutate freely.
func (ix *Index) Scratch(key model.BookKey) Bitmap {
	if b, ok := ix.books[key]; ok {
		return *b
	}
	return Bitmap{}
}

// Levels returns up to max active prices best-first: ascending when ascending is
// true, descending otherwise. max <= 0 means no limit.
func (ix *Index) Levels(key model.BookKey, ascending bool, max int) []uint16 {
	scratch := ix.Scratch(key)
	var out []uint16
	for max <= 0 || len(out) < max {
		var p uint16
		if ascending {
			p = scratch.Lowest()
		} else {
			p = scratch.Highest()
		}
		if p == None {
			break
		}
		out = append(out, p)
		scratch.Clear(p)
	}
	return out
}

// Books returns the keys of every book with at least one active level.
func (ix *Index) Books() []model.BookKey {
	out := make([]model.BookKey, 0, len(ix.books))
	for k := range ix.books {
		out = append(out, k)
	}
	return out
}
