package arith

// divStage resolves four quotient bits in one step. It compares the dividend
// against the fifteen multiples 1x..15x of the (pre-shifted) divisor and keeps
// the largest multiple that does not exceed it.
func divStage(dividend uint64, divisor uint128) (bits uint64, residual uint64) {
	var multiples [16]uint128
	for k := 1; k < len(multiples); k++ {
		multiples[k] = divisor.mul64(uint64(k))
	}

	d := u128(dividend)
	for k := len(multiples) - 1; k > 0; k-- {
		if multiples[k].cmp(d) <= 0 {
			return uint64(k), dividend - multiples[k].lo
		}
	}
	return 0, dividend
}
