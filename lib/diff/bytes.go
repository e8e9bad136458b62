// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package diff

import (
	"bytes"
	"errors"
	"fmt"
)

// DefaultMaxCost bounds the edit distance Bytes will search for. The
// search keeps one diagonal snapshot per step, so its memory grows
// with the square of the cost.
const DefaultMaxCost = 2048

// RegionKind classifies a region.
type RegionKind int

const (
	// Changed regions replace bytes of a with bytes of b.
	Changed RegionKind = iota
	// Inserted regions exist only in b.
	Inserted
	// Deleted regions exist only in a.
	Deleted
)

func (k RegionKind) String() string {
	switch k {
	case Changed:
		return "changed"
	case Inserted:
		return "inserted"
	case Deleted:
		return "deleted"
	}
	return fmt.Sprintf("RegionKind(%d)", int(k))
}

// Region is one contiguous difference: ALength bytes at AOffset in a
// correspond to BLength bytes at BOffset in b. Bytes between regions
// are equal in both buffers.
type Region struct {
	Kind    RegionKind
	AOffset int
	ALength int
	BOffset int
	BLength int
}

func (r Region) String() string {
	return fmt.Sprintf("%s a[%d:%d] b[%d:%d]", r.Kind,
		r.AOffset, r.AOffset+r.ALength, r.BOffset, r.BOffset+r.BLength)
}

// ErrRegionMismatch is returned by Apply and Revert when regions do
// not describe the buffers they are applied to.
var ErrRegionMismatch = errors.New("regions do not match buffers")

// Bytes returns the regions where a and b differ, ordered by offset.
// The result is empty exactly when a and b are equal.
func Bytes(a, b []byte) []Region {
	return BytesWithCost(a, b, DefaultMaxCost)
}

// BytesWithCost is Bytes with an explicit cap on the edit distance
// searched. A cap of zero or less always takes the prefix and suffix
// fallback.
func BytesWithCost(a, b []byte, maxCost int) []Region {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix &&
		a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}
	middleA := a[prefix : len(a)-suffix]
	middleB := b[prefix : len(b)-suffix]
	if len(middleA) == 0 && len(middleB) == 0 {
		return nil
	}

	script, ok := myers(middleA, middleB, maxCost)
	if !ok {
		return []Region{newRegion(prefix, len(middleA), prefix, len(middleB))}
	}
	return regions(script, prefix)
}

func newRegion(aOffset, aLength, bOffset, bLength int) Region {
	kind := Changed
	switch {
	case aLength == 0:
		kind = Inserted
	case bLength == 0:
		kind = Deleted
	}
	return Region{Kind: kind, AOffset: aOffset, ALength: aLength, BOffset: bOffset, BLength: bLength}
}

type operation byte

const (
	keep operation = iota
	remove
	insert
)

// myers returns the edit script turning a into b, or false when it
// needs more than maxCost insertions and deletions.
func myers(a, b []byte, maxCost int) ([]operation, bool) {
	n, m := len(a), len(b)
	limit := min(n+m, maxCost)
	if limit <= 0 && n+m > 0 {
		return nil, false
	}

	offset := limit + 1
	// v[k] is the furthest x reached on diagonal k, or -1 when no
	// path inside the edit grid reaches it.
	v := make([]int32, 2*limit+3)
	for i := range v {
		v[i] = -1
	}
	v[offset+1] = 0
	// trace[d] holds v[-d..d] as it was before step d.
	var trace [][]int32

	for d := 0; d <= limit; d++ {
		trace = append(trace, append([]int32(nil), v[offset-d:offset+d+1]...))
		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = int(v[offset+k+1])
			} else {
				x = int(v[offset+k-1])
				if x >= 0 {
					x++
				}
			}
			y := x - k
			if x < 0 || x > n || y < 0 || y > m {
				v[offset+k] = -1
				continue
			}
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[offset+k] = int32(x)
			if x == n && y == m {
				return backtrack(trace, n, m), true
			}
		}
	}
	return nil, false
}

func backtrack(trace [][]int32, n, m int) []operation {
	script := make([]operation, 0, n+m)
	x, y := n, m
	for d := len(trace) - 1; d >= 0; d-- {
		snapshot := trace[d]
		at := func(k int) int { return int(snapshot[k+d]) }
		k := x - y
		var previousK int
		if k == -d || (k != d && at(k-1) < at(k+1)) {
			previousK = k + 1
		} else {
			previousK = k - 1
		}
		previousX := 0
		if d > 0 {
			previousX = at(previousK)
		}
		previousY := previousX - previousK
		for x > previousX && y > previousY {
			script = append(script, keep)
			x--
			y--
		}
		if d > 0 {
			if x == previousX {
				script = append(script, insert)
			} else {
				script = append(script, remove)
			}
		}
		x, y = previousX, previousY
	}
	for left, right := 0, len(script)-1; left < right; left, right = left+1, right-1 {
		script[left], script[right] = script[right], script[left]
	}
	return script
}

// regions merges runs of non-keep operations into regions.
func regions(script []operation, base int) []Region {
	var out []Region
	x, y := base, base
	for i := 0; i < len(script); {
		if script[i] == keep {
			x++
			y++
			i++
			continue
		}
		startX, startY := x, y
		for i < len(script) && script[i] != keep {
			if script[i] == remove {
				x++
			} else {
				y++
			}
			i++
		}
		out = append(out, newRegion(startX, x-startX, startY, y-startY))
	}
	return out
}

// Apply rebuilds b from a, taking unchanged bytes from a and region
// bytes from b. It fails when the regions are out of order, out of
// bounds, or leave bytes outside them that differ between a and b.
func Apply(a, b []byte, regions []Region) ([]byte, error) {
	return rebuild(a, b, regions, false)
}

// Revert rebuilds a from b, taking unchanged bytes from b and region
// bytes from a.
func Revert(a, b []byte, regions []Region) ([]byte, error) {
	return rebuild(a, b, regions, true)
}

func rebuild(a, b []byte, regions []Region, reverse bool) ([]byte, error) {
	out := make([]byte, 0, max(len(a), len(b)))
	x, y := 0, 0
	for i, region := range regions {
		if region.AOffset < x || region.BOffset < y ||
			region.AOffset-x != region.BOffset-y ||
			region.ALength < 0 || region.BLength < 0 ||
			region.AOffset+region.ALength > len(a) || region.BOffset+region.BLength > len(b) {
			return nil, fmt.Errorf("%w: region %d (%s)", ErrRegionMismatch, i, region)
		}
		if !bytes.Equal(a[x:region.AOffset], b[y:region.BOffset]) {
			return nil, fmt.Errorf("%w: bytes before region %d differ", ErrRegionMismatch, i)
		}
		if reverse {
			out = append(out, b[y:region.BOffset]...)
			out = append(out, a[region.AOffset:region.AOffset+region.ALength]...)
		} else {
			out = append(out, a[x:region.AOffset]...)
			out = append(out, b[region.BOffset:region.BOffset+region.BLength]...)
		}
		x = region.AOffset + region.ALength
		y = region.BOffset + region.BLength
	}
	if !bytes.Equal(a[x:], b[y:]) {
		return nil, fmt.Errorf("%w: bytes after the last region differ", ErrRegionMismatch)
	}
	if reverse {
		return append(out, b[y:]...), nil
	}
	return append(out, a[x:]...), nil
}
