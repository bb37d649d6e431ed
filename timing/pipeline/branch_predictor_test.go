package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/riversim/insts"
	"github.com/sarchlab/riversim/timing/pipeline"
)

var _ = Describe("BTB", func() {
	var btb *pipeline.BTB

	write := func(pc, npc uint64, exec bool) {
		btb.Tick(pipeline.BTBInputs{Write: true, WritePC: pc, WriteNPC: npc, Exec: exec})
	}

	validEntries := func() []pipeline.BTBEntry {
		var out []pipeline.BTBEntry
		for _, e := range btb.Entries() {
			if e.Valid {
				out = append(out, e)
			}
		}
		return out
	}

	BeforeEach(func() {
		btb = pipeline.NewBTB(4, 4, true)
	})

	It("should fall back to pc+4 on a miss", func() {
		npc, hit, _ := btb.Lookup(0x2000)
		Expect(hit).To(BeFalse())
		Expect(npc).To(Equal(uint64(0x2004)))
	})

	It("should keep one entry per pc with the newest target", func() {
		write(0x1000, 0x1010, true)
		write(0x1000, 0x1020, true)

		entries := validEntries()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].PC).To(Equal(uint64(0x1000)))
		Expect(entries[0].NPC).To(Equal(uint64(0x1020)))
	})

	It("should not reinsert a resident pair", func() {
		write(0x1000, 0x1010, true)
		write(0x2000, 0x2010, true)
		write(0x1000, 0x1010, true)

		entries := validEntries()
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].PC).To(Equal(uint64(0x2000)))
	})

	It("should keep the newest entry at the front and evict the oldest", func() {
		for i := uint64(0); i < 5; i++ {
			write(0x1000+i*0x100, 0x5000+i, true)
		}

		entries := validEntries()
		Expect(entries).To(HaveLen(4))
		Expect(entries[0].PC).To(Equal(uint64(0x1400)))
		Expect(entries[3].PC).To(Equal(uint64(0x1100)))
	})

	It("should move an updated pc to the front without disturbing older entries", func() {
		write(0x1000, 0x1010, true)
		write(0x2000, 0x2010, true)
		write(0x3000, 0x3010, true)
		write(0x2000, 0x2020, true)

		entries := validEntries()
		Expect(entries).To(HaveLen(3))
		Expect(entries[0]).To(Equal(pipeline.BTBEntry{Valid: true, PC: 0x2000, NPC: 0x2020, Exec: true}))
		Expect(entries[1].PC).To(Equal(uint64(0x3000)))
		Expect(entries[2].PC).To(Equal(uint64(0x1000)))
	})

	It("should not let a pre-decoded jump override an executed one", func() {
		write(0x1000, 0x1010, true)
		write(0x1000, 0x0F00, false)

		npc, hit, exec := btb.Lookup(0x1000)
		Expect(hit).To(BeTrue())
		Expect(exec).To(BeTrue())
		Expect(npc).To(Equal(uint64(0x1010)))
	})

	It("should chain predictions through the table", func() {
		write(0x1004, 0x2000, true)
		write(0x2004, 0x1000, true)

		out := btb.Comb(pipeline.BTBInputs{StartPC: 0x1000})
		Expect(out.NPC).To(Equal([]uint64{0x1000, 0x1004, 0x2000, 0x2004}))
		Expect(out.Hit).To(Equal([]bool{false, false, true, false}))
	})

	It("should invalidate everything on flush", func() {
		write(0x1000, 0x1010, true)
		btb.Tick(pipeline.BTBInputs{Flush: true, Write: true, WritePC: 0x2000, WriteNPC: 0x3000})
		Expect(validEntries()).To(BeEmpty())
	})

	It("should apply a synchronous reset on the next commit", func() {
		btb = pipeline.NewBTB(4, 4, false)
		write(0x1000, 0x1010, true)
		btb.Reset()
		Expect(validEntries()).To(HaveLen(1))

		btb.Tick(pipeline.BTBInputs{})
		Expect(validEntries()).To(BeEmpty())
	})
})

var _ = Describe("Predecode", func() {
	It("should predict JAL targets", func() {
		word := insts.MustEncode(insts.OpJAL, 0, 0, 0, -16)
		pd := pipeline.Predecode(0x1010, word)
		Expect(pd.Jump).To(BeTrue())
		Expect(pd.NPC).To(Equal(uint64(0x1000)))
	})

	It("should predict backward branches only", func() {
		back := insts.MustEncode(insts.OpBNE, 0, 1, 2, -8)
		fwd := insts.MustEncode(insts.OpBNE, 0, 1, 2, 8)

		Expect(pipeline.Predecode(0x1008, back)).To(Equal(pipeline.PredecodedJump{Jump: true, PC: 0x1008, NPC: 0x1000}))
		Expect(pipeline.Predecode(0x1008, fwd).Jump).To(BeFalse())
	})

	It("should split a line into two slots", func() {
		jal := insts.MustEncode(insts.OpJAL, 0, 0, 0, 0x40)
		nop := insts.MustEncode(insts.OpADDI, 0, 0, 0, 0)
		pds := pipeline.PredecodeLine(0x2000, uint64(jal)<<32|uint64(nop))

		Expect(pds[0].Jump).To(BeFalse())
		Expect(pds[1]).To(Equal(pipeline.PredecodedJump{Jump: true, PC: 0x2004, NPC: 0x2044}))
	})
})

var _ = Describe("BranchPredictor", func() {
	var bp *pipeline.BranchPredictor

	BeforeEach(func() {
		bp = pipeline.NewBranchPredictor(pipeline.DefaultBranchPredictorConfig())
	})

	It("should fetch the start pc when nothing is in flight", func() {
		out := bp.Tick(pipeline.BranchPredictorInputs{StartPC: 0x1000})
		Expect(out).To(Equal(pipeline.BranchPredictorOutputs{Valid: true, PC: 0x1000}))
	})

	It("should skip addresses already in flight", func() {
		out := bp.Tick(pipeline.BranchPredictorInputs{
			StartPC:  0x1000,
			InFlight: []uint64{0x1000, 0x1004},
		})
		Expect(out.PC).To(Equal(uint64(0x1008)))
	})

	It("should follow a learned jump", func() {
		bp.Tick(pipeline.BranchPredictorInputs{
			StartPC:  0x1000,
			ExecJump: true,
			ExecPC:   0x1000,
			ExecNPC:  0x3000,
		})

		out := bp.Tick(pipeline.BranchPredictorInputs{
			StartPC:  0x1000,
			InFlight: []uint64{0x1000},
		})
		Expect(out.PC).To(Equal(uint64(0x3000)))
		Expect(bp.Stats().ExecWrites).To(Equal(uint64(1)))
	})

	It("should declare the fetch invalid when every candidate collides", func() {
		out := bp.Tick(pipeline.BranchPredictorInputs{
			StartPC:  0x1000,
			InFlight: []uint64{0x1000, 0x1004, 0x1008, 0x100C, 0x1010},
		})
		Expect(out.Valid).To(BeFalse())
		Expect(bp.Stats().Collisions).To(Equal(uint64(1)))
	})

	It("should learn pre-decoded jumps from memory responses", func() {
		jal := insts.MustEncode(insts.OpJAL, 0, 0, 0, 0x100)
		bp.Tick(pipeline.BranchPredictorInputs{
			StartPC:   0x1000,
			RespValid: true,
			RespAddr:  0x1000,
			RespData:  uint64(jal),
		})

		npc, hit, exec := bp.BTB().Lookup(0x1000)
		Expect(hit).To(BeTrue())
		Expect(exec).To(BeFalse())
		Expect(npc).To(Equal(uint64(0x1100)))
		Expect(bp.Stats().PredecodeWrites).To(Equal(uint64(1)))
	})

	It("should be deterministic", func() {
		run := func() []pipeline.BranchPredictorOutputs {
			p := pipeline.NewBranchPredictor(pipeline.DefaultBranchPredictorConfig())
			var outs []pipeline.BranchPredictorOutputs
			for i := uint64(0); i < 20; i++ {
				outs = append(outs, p.Tick(pipeline.BranchPredictorInputs{
					StartPC:  0x1000 + (i%4)*4,
					ExecJump: i%3 == 0,
					ExecPC:   0x1000 + (i%4)*4,
					ExecNPC:  0x2000 + i*8,
					InFlight: []uint64{0x1000 + (i%4)*4},
				}))
			}
			return outs
		}
		Expect(run()).To(Equal(run()))
	})
})
