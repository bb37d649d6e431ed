package arith

// DividerLatency is the number of cycles from the enable cycle to the cycle
// the result is valid.
const DividerLatency = 10

const (
	dividerEnaBits  = DividerLatency
	dividerEnaMask  = 1<<dividerEnaBits - 1
	dividerLastPass = 1 << (DividerLatency - 2)
	dividerValidBit = 1 << (DividerLatency - 1)

	// divisorAlign places the divisor under the top quotient digit pair.
	divisorAlign = 56
)

// DividerInputs are the signals sampled by the divider in one cycle.
type DividerInputs struct {
	// Enable starts a new division. It is ignored while the unit is busy.
	Enable bool
	// Unsigned treats both operands as unsigned.
	Unsigned bool
	// RV32 divides the low 32 bits and sign-extends the 32-bit result.
	RV32 bool
	// Residual selects the remainder instead of the quotient.
	Residual bool
	A1, A2   uint64
}

// DividerOutputs are the registered outputs of the divider.
type DividerOutputs struct {
	Result uint64
	Valid  bool
	Busy   bool
}

// DividerStatistics counts divider activity.
type DividerStatistics struct {
	Issued    uint64
	Completed uint64
	DivByZero uint64
	Overflows uint64
}

type dividerState struct {
	ena      uint64
	busy     bool
	rv32     bool
	resid    bool
	invert   bool
	zero     bool
	overflow bool
	dividend uint64
	divisor  uint128
	bits     uint64
	result   uint64
}

// Divider is a radix-256 restoring divider built from two cascaded divide
// stages. Each pass resolves eight quotient bits; eight passes cover the full
// 64-bit range. Only one division is in flight at a time.
type Divider struct {
	r, v dividerState

	asyncReset   bool
	resetPending bool

	stats DividerStatistics
}

// NewDivider creates a divider in its reset state.
func NewDivider(asyncReset bool) *Divider {
	d := &Divider{}
	d.Init(asyncReset)
	return d
}

// Init puts a zero-value Divider into its reset state. It allows the unit to
// be embedded by value.
func (d *Divider) Init(asyncReset bool) {
	d.asyncReset = asyncReset
	d.r = dividerState{}
	d.v = dividerState{}
	d.resetPending = false
	d.stats = DividerStatistics{}
}

// Outputs returns the registered outputs.
func (d *Divider) Outputs() DividerOutputs {
	return DividerOutputs{
		Result: d.r.result,
		Valid:  d.r.ena&dividerValidBit != 0,
		Busy:   d.r.busy,
	}
}

// Stats returns divider statistics.
func (d *Divider) Stats() DividerStatistics {
	return d.stats
}

// Comb computes the next state from the registered state and the inputs.
func (d *Divider) Comb(in DividerInputs) DividerOutputs {
	r := d.r
	v := r

	accept := in.Enable && !r.busy
	v.ena = (r.ena<<1 | b2u(accept)) & dividerEnaMask

	switch {
	case accept:
		v = captureDivision(v, in)
	case r.ena&dividerLastPass != 0:
		v.busy = false
		v.result = r.final()
	case r.busy:
		b0, resid0 := divStage(r.dividend, r.divisor.lsh(4))
		b1, resid1 := divStage(resid0, r.divisor)
		v.dividend = resid1
		v.divisor = r.divisor.rsh(8)
		v.bits = r.bits<<8 | b0<<4 | b1
	}

	d.v = v
	return d.Outputs()
}

func captureDivision(v dividerState, in DividerInputs) dividerState {
	a1, a2 := in.A1, in.A2
	signBit := uint(63)
	if in.RV32 {
		signBit = 31
		if in.Unsigned {
			a1, a2 = uint64(uint32(a1)), uint64(uint32(a2))
		} else {
			a1, a2 = sext32(a1), sext32(a2)
		}
	}

	neg1 := !in.Unsigned && (in.A1>>signBit)&1 != 0
	neg2 := !in.Unsigned && (in.A2>>signBit)&1 != 0

	v.busy = true
	v.rv32 = in.RV32
	v.resid = in.Residual
	v.zero = a2 == 0
	v.overflow = neg1 && neg2 && a2 == ^uint64(0) && a1 == minValue(in.RV32)
	if in.Residual {
		v.invert = neg1
	} else {
		v.invert = !v.zero && neg1 != neg2
	}

	if neg1 {
		a1 = -a1
	}
	if neg2 {
		a2 = -a2
	}
	v.dividend = a1
	v.divisor = u128(a2).lsh(divisorAlign)
	v.bits = 0
	return v
}

func (s dividerState) final() uint64 {
	var res uint64
	switch {
	case s.overflow && s.resid:
		res = 0
	case s.overflow:
		res = minValue(s.rv32)
	case s.zero && !s.resid:
		res = ^uint64(0)
	case s.resid:
		res = s.dividend
	default:
		res = s.bits
	}

	if s.invert && !s.overflow {
		res = -res
	}
	if s.rv32 {
		res = sext32(res)
	}
	return res
}

// Commit latches the next state on the clock edge.
func (d *Divider) Commit() {
	if d.resetPending {
		d.r = dividerState{}
		d.v = dividerState{}
		d.resetPending = false
		return
	}
	d.count(d.v)
	d.r = d.v
}

// Tick runs one full clock cycle.
func (d *Divider) Tick(in DividerInputs) DividerOutputs {
	d.Comb(in)
	d.Commit()
	return d.Outputs()
}

// Reset returns the divider to its reset state, immediately for an
// asynchronous reset or on the next Commit for a synchronous one.
func (d *Divider) Reset() {
	if d.asyncReset {
		d.r = dividerState{}
		d.v = dividerState{}
		return
	}
	d.resetPending = true
}

func minValue(rv32 bool) uint64 {
	if rv32 {
		return 0xFFFFFFFF80000000
	}
	return 1 << 63
}

func (d *Divider) count(v dividerState) {
	if v.ena&1 != 0 {
		d.stats.Issued++
		if v.zero {
			d.stats.DivByZero++
		}
		if v.overflow {
			d.stats.Overflows++
		}
	}
	if v.ena&dividerValidBit != 0 {
		d.stats.Completed++
	}
}
