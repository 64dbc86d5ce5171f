// Copyright 2025 The locksmith Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bitset implements the growable bitfields that back lock-order
// tracking: the per-lock "before" sets and the registry's used-id bitmap.
//
// A BitSet is a set of small non-negative integers with O(1) membership
// and set, and O(n/64) iteration. Capacity grows monotonically by
// power-of-two reallocation that preserves existing bits and zero-fills
// new ones; it never shrinks while the owner is live.
//
// BitSets are NOT internally synchronized. Each owner (a lock record's
// before-set, the registry's bitmap) serializes mutation under its own
// guard.
package bitset

import "math/bits"

const wordBits = 64

// BitSet is a set of small non-negative integers stored as a word array.
// The zero value is an empty set with zero capacity.
type BitSet struct {
	words []uint64
	nbits int
}

// New returns a BitSet with capacity for at least nbits bits, all clear.
func New(nbits int) *BitSet {
	if nbits < 0 {
		nbits = 0
	}
	b := &BitSet{}
	b.Grow(nbits)
	return b
}

// Len returns the current capacity in bits.
func (b *BitSet) Len() int {
	return b.nbits
}

// Grow extends capacity to at least nbits bits, rounding the word count up
// to the next power of two so repeated growth is amortized O(1) per bit.
// Existing bits are preserved; new bits are zero. Grow never shrinks.
func (b *BitSet) Grow(nbits int) {
	if nbits <= b.nbits {
		return
	}
	nwords := (nbits + wordBits - 1) / wordBits
	if nwords > cap(b.words) {
		newCap := 1
		for newCap < nwords {
			newCap <<= 1
		}
		words := make([]uint64, nwords, newCap)
		copy(words, b.words)
		b.words = words
	} else {
		b.words = b.words[:nwords]
	}
	b.nbits = nwords * wordBits
}

// Set adds i to the set, growing capacity if i is beyond it.
func (b *BitSet) Set(i int) {
	if i < 0 {
		return
	}
	if i >= b.nbits {
		b.Grow(i + 1)
	}
	b.words[i/wordBits] |= 1 << (uint(i) % wordBits)
}

// Clear removes i from the set. Clearing beyond capacity is a no-op.
func (b *BitSet) Clear(i int) {
	if i < 0 || i >= b.nbits {
		return
	}
	b.words[i/wordBits] &^= 1 << (uint(i) % wordBits)
}

// Test reports whether i is in the set. Bits beyond capacity read as clear.
func (b *BitSet) Test(i int) bool {
	if i < 0 || i >= b.nbits {
		return false
	}
	return b.words[i/wordBits]&(1<<(uint(i)%wordBits)) != 0
}

// NextClear returns the lowest index >= from whose bit is clear, or Len()
// if every bit within capacity from that index on is set. This is the
// allocator's lowest-free-id scan.
func (b *BitSet) NextClear(from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i < b.nbits; {
		w := ^b.words[i/wordBits] >> (uint(i) % wordBits)
		if w != 0 {
			i += bits.TrailingZeros64(w)
			if i >= b.nbits {
				break
			}
			return i
		}
		// Skip to the next word boundary.
		i += wordBits - i%wordBits
	}
	return b.nbits
}

// Range calls fn for each set bit in ascending order until fn returns false.
func (b *BitSet) Range(fn func(i int) bool) {
	for wi, w := range b.words {
		for w != 0 {
			i := wi*wordBits + bits.TrailingZeros64(w)
			if !fn(i) {
				return
			}
			w &= w - 1
		}
	}
}

// Count returns the number of set bits.
func (b *BitSet) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Reset clears every bit without releasing capacity.
func (b *BitSet) Reset() {
	for i := range b.words {
		b.words[i] = 0
	}
}
