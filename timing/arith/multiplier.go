package arith

// MultiplierLatency is the number of cycles from the enable cycle to the
// cycle the product is valid.
const MultiplierLatency = 4

const (
	multiplierEnaMask  = 1<<MultiplierLatency - 1
	multiplierLevel1   = 1 << 0
	multiplierLevel3   = 1 << 1
	multiplierFinal    = 1 << 2
	multiplierValidBit = 1 << 3
)

// SignMode selects how the multiplier interprets its operands.
type SignMode uint8

// Sign modes.
const (
	// SignedSigned multiplies two signed operands (MUL, MULH).
	SignedSigned SignMode = iota
	// UnsignedUnsigned multiplies two unsigned operands (MULHU).
	UnsignedUnsigned
	// SignedUnsigned multiplies a signed A1 by an unsigned A2 (MULHSU).
	SignedUnsigned
)

// MultiplierInputs are the signals sampled by the multiplier in one cycle.
type MultiplierInputs struct {
	// Enable starts a new multiplication. It is ignored while busy.
	Enable bool
	Mode   SignMode
	// RV32 returns the sign-extended low word of the product.
	RV32 bool
	// High returns bits 127:64 of the product.
	High   bool
	A1, A2 uint64
}

// MultiplierOutputs are the registered outputs of the multiplier.
type MultiplierOutputs struct {
	Result uint64
	Valid  bool
	Busy   bool
}

// MultiplierStatistics counts multiplier activity.
type MultiplierStatistics struct {
	Issued    uint64
	Completed uint64
}

type multiplierState struct {
	ena    uint64
	busy   bool
	rv32   bool
	high   bool
	negate bool
	a1, a2 uint64
	lvl1   [16]uint128
	lvl3   [4]uint128
	result uint128
}

// Multiplier computes a 128-bit product through a three-level reduction of
// 32 two-bit partial products. Each level fires on its own cycle.
type Multiplier struct {
	r, v multiplierState

	asyncReset   bool
	resetPending bool

	stats MultiplierStatistics
}

// NewMultiplier creates a multiplier in its reset state.
func NewMultiplier(asyncReset bool) *Multiplier {
	m := &Multiplier{}
	m.Init(asyncReset)
	return m
}

// Init puts a zero-value Multiplier into its reset state.
func (m *Multiplier) Init(asyncReset bool) {
	m.asyncReset = asyncReset
	m.r = multiplierState{}
	m.v = multiplierState{}
	m.resetPending = false
	m.stats = MultiplierStatistics{}
}

// Outputs returns the registered outputs.
func (m *Multiplier) Outputs() MultiplierOutputs {
	res := m.r.result.lo
	switch {
	case m.r.rv32:
		res = sext32(m.r.result.lo)
	case m.r.high:
		res = m.r.result.hi
	}
	return MultiplierOutputs{
		Result: res,
		Valid:  m.r.ena&multiplierValidBit != 0,
		Busy:   m.r.busy,
	}
}

// Stats returns multiplier statistics.
func (m *Multiplier) Stats() MultiplierStatistics {
	return m.stats
}

// Comb computes the next state from the registered state and the inputs.
func (m *Multiplier) Comb(in MultiplierInputs) MultiplierOutputs {
	r := m.r
	v := r

	accept := in.Enable && !r.busy
	v.ena = (r.ena<<1 | b2u(accept)) & multiplierEnaMask

	if accept {
		v = captureProduct(v, in)
	}

	if r.ena&multiplierLevel1 != 0 {
		var lvl0 [32]uint128
		for i := range lvl0 {
			lvl0[i] = u128(r.a1).mul64((r.a2 >> (2 * uint(i))) & 0x3)
		}
		for i := range v.lvl1 {
			v.lvl1[i] = lvl0[2*i+1].lsh(2).add(lvl0[2*i])
		}
	}

	if r.ena&multiplierLevel3 != 0 {
		var lvl2 [8]uint128
		for i := range lvl2 {
			lvl2[i] = r.lvl1[2*i+1].lsh(4).add(r.lvl1[2*i])
		}
		for i := range v.lvl3 {
			v.lvl3[i] = lvl2[2*i+1].lsh(8).add(lvl2[2*i])
		}
	}

	if r.ena&multiplierFinal != 0 {
		var lvl4 [2]uint128
		for i := range lvl4 {
			lvl4[i] = r.lvl3[2*i+1].lsh(16).add(r.lvl3[2*i])
		}
		res := lvl4[1].lsh(32).add(lvl4[0])
		if r.negate {
			res = res.neg()
		}
		v.result = res
		v.busy = false
	}

	m.v = v
	return m.Outputs()
}

func captureProduct(v multiplierState, in MultiplierInputs) multiplierState {
	a1, a2 := in.A1, in.A2
	if in.RV32 {
		if in.Mode == UnsignedUnsigned {
			a1, a2 = uint64(uint32(a1)), uint64(uint32(a2))
		} else {
			a1, a2 = sext32(a1), sext32(a2)
		}
	}

	neg1 := in.Mode != UnsignedUnsigned && int64(a1) < 0
	neg2 := in.Mode == SignedSigned && int64(a2) < 0
	if neg1 {
		a1 = -a1
	}
	if neg2 {
		a2 = -a2
	}

	v.busy = true
	v.rv32 = in.RV32
	v.high = in.High
	v.negate = neg1 != neg2
	v.a1 = a1
	v.a2 = a2
	return v
}

// Commit latches the next state on the clock edge.
func (m *Multiplier) Commit() {
	if m.resetPending {
		m.r = multiplierState{}
		m.v = multiplierState{}
		m.resetPending = false
		return
	}
	if m.v.ena&1 != 0 {
		m.stats.Issued++
	}
	if m.v.ena&multiplierValidBit != 0 {
		m.stats.Completed++
	}
	m.r = m.v
}

// Tick runs one full clock cycle.
func (m *Multiplier) Tick(in MultiplierInputs) MultiplierOutputs {
	m.Comb(in)
	m.Commit()
	return m.Outputs()
}

// Reset returns the multiplier to its reset state, immediately for an
// asynchronous reset or on the next Commit for a synchronous one.
func (m *Multiplier) Reset() {
	if m.asyncReset {
		m.r = multiplierState{}
		m.v = multiplierState{}
		return
	}
	m.resetPending = true
}
