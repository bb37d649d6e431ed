// Package arith provides the multi-cycle integer arithmetic units of the
// execute stage: a staged partial-product multiplier and a cascaded
// restoring divider.
package arith

import "math/bits"

// uint128 is an unsigned 128-bit value.
type uint128 struct {
	hi, lo uint64
}

func u128(lo uint64) uint128 {
	return uint128{lo: lo}
}

func (a uint128) add(b uint128) uint128 {
	lo, carry := bits.Add64(a.lo, b.lo, 0)
	hi, _ := bits.Add64(a.hi, b.hi, carry)
	return uint128{hi: hi, lo: lo}
}

func (a uint128) neg() uint128 {
	return uint128{hi: ^a.hi, lo: ^a.lo}.add(u128(1))
}

// mul64 multiplies by a small factor. The caller guarantees the product
// fits in 128 bits.
func (a uint128) mul64(k uint64) uint128 {
	hi, lo := bits.Mul64(a.lo, k)
	return uint128{hi: hi + a.hi*k, lo: lo}
}

func (a uint128) lsh(n uint) uint128 {
	switch {
	case n == 0:
		return a
	case n >= 128:
		return uint128{}
	case n >= 64:
		return uint128{hi: a.lo << (n - 64)}
	default:
		return uint128{hi: a.hi<<n | a.lo>>(64-n), lo: a.lo << n}
	}
}

func (a uint128) rsh(n uint) uint128 {
	switch {
	case n == 0:
		return a
	case n >= 128:
		return uint128{}
	case n >= 64:
		return uint128{lo: a.hi >> (n - 64)}
	default:
		return uint128{hi: a.hi >> n, lo: a.lo>>n | a.hi<<(64-n)}
	}
}

// cmp returns -1, 0 or +1.
func (a uint128) cmp(b uint128) int {
	switch {
	case a.hi < b.hi:
		return -1
	case a.hi > b.hi:
		return 1
	case a.lo < b.lo:
		return -1
	case a.lo > b.lo:
		return 1
	}
	return 0
}

func sext32(v uint64) uint64 {
	return uint64(int64(int32(uint32(v))))
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
