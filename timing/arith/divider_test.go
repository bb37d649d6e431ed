package arith_test

import (
	"math/big"
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/riversim/timing/arith"
)

// divide issues one operation and ticks until the result is valid.
// It returns the result and the number of cycles including the enable cycle.
func divide(d *arith.Divider, in arith.DividerInputs) (uint64, int) {
	in.Enable = true
	out := d.Tick(in)
	cycles := 1
	for !out.Valid {
		out = d.Tick(arith.DividerInputs{})
		cycles++
		Expect(cycles).To(BeNumerically("<=", 64), "divider never completed")
	}
	return out.Result, cycles
}

func bigUnsigned(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func bigSigned(v uint64) *big.Int {
	return big.NewInt(int64(v))
}

// toUint64 returns the low 64 bits of x in two's complement.
func toUint64(x *big.Int) uint64 {
	mod := new(big.Int).Lsh(big.NewInt(1), 64)
	m := new(big.Int).Mod(x, mod)
	return m.Uint64()
}

var _ = Describe("Divider", func() {
	var d *arith.Divider

	BeforeEach(func() {
		d = arith.NewDivider(false)
	})

	Describe("Latency", func() {
		It("should produce DIV 7/2 = 3 after the fixed latency", func() {
			res, cycles := divide(d, arith.DividerInputs{A1: 7, A2: 2})
			Expect(res).To(Equal(uint64(3)))
			Expect(cycles).To(Equal(arith.DividerLatency))
		})

		It("should produce REM 7%2 = 1 after the fixed latency", func() {
			res, cycles := divide(d, arith.DividerInputs{A1: 7, A2: 2, Residual: true})
			Expect(res).To(Equal(uint64(1)))
			Expect(cycles).To(Equal(arith.DividerLatency))
		})

		It("should assert valid for exactly one cycle", func() {
			divide(d, arith.DividerInputs{A1: 100, A2: 7})
			out := d.Tick(arith.DividerInputs{})
			Expect(out.Valid).To(BeFalse())
			Expect(out.Busy).To(BeFalse())
		})

		It("should be busy until the result cycle", func() {
			out := d.Tick(arith.DividerInputs{Enable: true, A1: 9, A2: 3})
			Expect(out.Busy).To(BeTrue())
			for i := 2; i < arith.DividerLatency; i++ {
				out = d.Tick(arith.DividerInputs{})
				Expect(out.Busy).To(BeTrue())
				Expect(out.Valid).To(BeFalse())
			}
			out = d.Tick(arith.DividerInputs{})
			Expect(out.Busy).To(BeFalse())
			Expect(out.Valid).To(BeTrue())
			Expect(out.Result).To(Equal(uint64(3)))
		})

		It("should ignore enable while busy", func() {
			d.Tick(arith.DividerInputs{Enable: true, A1: 100, A2: 10})
			d.Tick(arith.DividerInputs{Enable: true, A1: 1, A2: 1})
			out := d.Tick(arith.DividerInputs{})
			for !out.Valid {
				out = d.Tick(arith.DividerInputs{})
			}
			Expect(out.Result).To(Equal(uint64(10)))
			Expect(d.Stats().Issued).To(Equal(uint64(1)))
		})

		It("should accept a new operation in the cycle its result is valid", func() {
			divide(d, arith.DividerInputs{A1: 100, A2: 10})
			res, cycles := divide(d, arith.DividerInputs{A1: 50, A2: 5})
			Expect(res).To(Equal(uint64(10)))
			Expect(cycles).To(Equal(arith.DividerLatency))
		})
	})

	Describe("Unsigned 64-bit", func() {
		It("should match big-integer division for random operands", func() {
			rng := rand.New(rand.NewPCG(1, 2))
			for i := 0; i < 200; i++ {
				a := rng.Uint64()
				b := rng.Uint64() >> (rng.Uint64() % 64)
				if b == 0 {
					b = 1
				}
				q, r := new(big.Int).QuoRem(bigUnsigned(a), bigUnsigned(b), new(big.Int))

				res, _ := divide(d, arith.DividerInputs{A1: a, A2: b, Unsigned: true})
				Expect(res).To(Equal(q.Uint64()), "%d / %d", a, b)

				res, _ = divide(d, arith.DividerInputs{A1: a, A2: b, Unsigned: true, Residual: true})
				Expect(res).To(Equal(r.Uint64()), "%d %% %d", a, b)
			}
		})

		DescribeTable("edge operands",
			func(a, b uint64) {
				res, _ := divide(d, arith.DividerInputs{A1: a, A2: b, Unsigned: true})
				Expect(res).To(Equal(a / b))
				res, _ = divide(d, arith.DividerInputs{A1: a, A2: b, Unsigned: true, Residual: true})
				Expect(res).To(Equal(a % b))
			},
			Entry("max by one", ^uint64(0), uint64(1)),
			Entry("max by max", ^uint64(0), ^uint64(0)),
			Entry("smaller dividend", uint64(3), uint64(7)),
			Entry("power of two", uint64(1)<<63, uint64(1)<<4),
			Entry("zero dividend", uint64(0), uint64(5)),
		)
	})

	Describe("Signed 64-bit", func() {
		It("should match truncating big-integer division for random operands", func() {
			rng := rand.New(rand.NewPCG(3, 4))
			for i := 0; i < 200; i++ {
				a := rng.Uint64()
				b := rng.Uint64() >> (rng.Uint64() % 64)
				if rng.IntN(2) == 0 {
					b = -b
				}
				if b == 0 || (a == 1<<63 && b == ^uint64(0)) {
					continue
				}
				q, r := new(big.Int).QuoRem(bigSigned(a), bigSigned(b), new(big.Int))

				res, _ := divide(d, arith.DividerInputs{A1: a, A2: b})
				Expect(res).To(Equal(toUint64(q)), "%d / %d", int64(a), int64(b))

				res, _ = divide(d, arith.DividerInputs{A1: a, A2: b, Residual: true})
				Expect(res).To(Equal(toUint64(r)), "%d %% %d", int64(a), int64(b))
			}
		})

		It("should resolve INT64_MIN / -1 to INT64_MIN with remainder 0", func() {
			res, _ := divide(d, arith.DividerInputs{A1: 1 << 63, A2: ^uint64(0)})
			Expect(res).To(Equal(uint64(1) << 63))
			res, _ = divide(d, arith.DividerInputs{A1: 1 << 63, A2: ^uint64(0), Residual: true})
			Expect(res).To(Equal(uint64(0)))
			Expect(d.Stats().Overflows).To(Equal(uint64(2)))
		})

		DescribeTable("sign combinations",
			func(a, b, q, r int64) {
				res, _ := divide(d, arith.DividerInputs{A1: uint64(a), A2: uint64(b)})
				Expect(int64(res)).To(Equal(q))
				res, _ = divide(d, arith.DividerInputs{A1: uint64(a), A2: uint64(b), Residual: true})
				Expect(int64(res)).To(Equal(r))
			},
			Entry("-7 / 2", int64(-7), int64(2), int64(-3), int64(-1)),
			Entry("7 / -2", int64(7), int64(-2), int64(-3), int64(1)),
			Entry("-7 / -2", int64(-7), int64(-2), int64(3), int64(-1)),
			Entry("min / 1", int64(-1<<63), int64(1), int64(-1<<63), int64(0)),
		)
	})

	Describe("Division by zero", func() {
		DescribeTable("quotient is all ones and remainder is the dividend",
			func(a uint64, unsigned bool) {
				res, _ := divide(d, arith.DividerInputs{A1: a, A2: 0, Unsigned: unsigned})
				Expect(res).To(Equal(^uint64(0)))
				res, _ = divide(d, arith.DividerInputs{A1: a, A2: 0, Unsigned: unsigned, Residual: true})
				Expect(res).To(Equal(a))
			},
			Entry("signed positive", uint64(42), false),
			Entry("signed negative", uint64(0xFFFFFFFFFFFFFF00), false),
			Entry("unsigned", uint64(0xFFFFFFFFFFFFFF00), true),
			Entry("zero by zero", uint64(0), true),
		)

		It("should count divisions by zero", func() {
			divide(d, arith.DividerInputs{A1: 1, A2: 0})
			Expect(d.Stats().DivByZero).To(Equal(uint64(1)))
		})
	})

	Describe("32-bit forms", func() {
		DescribeTable("results are sign-extended from bit 31",
			func(in arith.DividerInputs, expected uint64) {
				in.RV32 = true
				res, _ := divide(d, in)
				Expect(res).To(Equal(expected))
			},
			Entry("DIVW -8 / 2", arith.DividerInputs{A1: 0xFFFFFFF8, A2: 2}, uint64(0xFFFFFFFFFFFFFFFC)),
			Entry("DIVW ignores upper bits", arith.DividerInputs{A1: 0x1234_0000_0000_0009, A2: 3}, uint64(3)),
			Entry("REMW -7 % 2", arith.DividerInputs{A1: 0xFFFFFFF9, A2: 2, Residual: true}, uint64(0xFFFFFFFFFFFFFFFF)),
			Entry("DIVUW big / 1", arith.DividerInputs{A1: 0x80000000, A2: 1, Unsigned: true}, uint64(0xFFFFFFFF80000000)),
			Entry("REMUW", arith.DividerInputs{A1: 0xFFFFFFFF, A2: 0x10, Unsigned: true, Residual: true}, uint64(0xF)),
			Entry("DIVW by zero", arith.DividerInputs{A1: 5, A2: 0}, ^uint64(0)),
			Entry("REMW by zero", arith.DividerInputs{A1: 0x80000005, A2: 0, Residual: true}, uint64(0xFFFFFFFF80000005)),
			Entry("DIVW overflow", arith.DividerInputs{A1: 0x80000000, A2: 0xFFFFFFFF}, uint64(0xFFFFFFFF80000000)),
			Entry("REMW overflow", arith.DividerInputs{A1: 0x80000000, A2: 0xFFFFFFFF, Residual: true}, uint64(0)),
		)
	})

	Describe("Reset", func() {
		It("should apply a synchronous reset on the next clock edge", func() {
			d.Tick(arith.DividerInputs{Enable: true, A1: 10, A2: 3})
			d.Reset()
			Expect(d.Outputs().Busy).To(BeTrue())
			d.Commit()
			Expect(d.Outputs().Busy).To(BeFalse())
		})

		It("should apply an asynchronous reset immediately", func() {
			d = arith.NewDivider(true)
			d.Tick(arith.DividerInputs{Enable: true, A1: 10, A2: 3})
			d.Reset()
			Expect(d.Outputs().Busy).To(BeFalse())
			Expect(d.Outputs().Valid).To(BeFalse())
		})
	})

	Describe("Determinism", func() {
		It("should replay identical output sequences after reset", func() {
			stimulus := []arith.DividerInputs{
				{Enable: true, A1: 1000, A2: 7},
				{}, {}, {}, {}, {}, {}, {}, {}, {},
				{Enable: true, A1: 0xFFFF_FFFF_FFFF_FFF0, A2: 3, Residual: true},
				{}, {}, {}, {}, {}, {}, {}, {}, {}, {},
			}
			record := func(unit *arith.Divider) []arith.DividerOutputs {
				var outs []arith.DividerOutputs
				for _, in := range stimulus {
					outs = append(outs, unit.Tick(in))
				}
				return outs
			}

			first := record(arith.NewDivider(false))
			second := record(arith.NewDivider(false))
			Expect(second).To(Equal(first))
		})
	})
})
