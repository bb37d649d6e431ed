package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/riversim/emu"
	"github.com/sarchlab/riversim/insts"
	"github.com/sarchlab/riversim/timing/arith"
	"github.com/sarchlab/riversim/timing/pipeline"
)

const resetVector = uint64(0x1000)

// execHarness feeds the execute stage from a program map and models the
// two-cycle write-back path into the register file.
type execHarness struct {
	ex   *pipeline.ExecuteStage
	rf   *pipeline.RegFile
	csr  *emu.CSRFile
	prog map[uint64]uint32

	wb   pipeline.PipelineState
	outs []pipeline.ExecuteOutputs
}

func newExecHarness(words ...uint32) *execHarness {
	h := &execHarness{
		rf:   pipeline.NewRegFile(true),
		csr:  emu.NewCSRFile(),
		prog: make(map[uint64]uint32),
	}
	h.ex = pipeline.NewExecuteStage(h.rf, h.csr,
		pipeline.WithResetVector(resetVector),
		pipeline.WithAsyncReset(true),
	)
	for i, w := range words {
		h.prog[resetVector+uint64(4*i)] = w
	}
	return h
}

func (h *execHarness) setReg(addr uint8, value uint64) {
	h.rf.Tick(pipeline.RegFileInputs{
		Debug: pipeline.DebugPortRequest{Enable: true, Write: true, Addr: addr, WData: value},
	})
}

func (h *execHarness) tickWith(in pipeline.ExecuteInputs) pipeline.ExecuteOutputs {
	st := h.ex.State()
	word, ok := h.prog[st.NPC]
	in.DValid = in.DValid || ok
	in.DPC = st.NPC
	in.DInstr = word
	in.WBDone = h.wb.Valid

	out := h.ex.Comb(in)
	h.rf.Comb(pipeline.RegFileInputs{
		Write: pipeline.RegFileWrite{
			Enable:  h.wb.Valid && h.wb.ResAddr != 0,
			Addr:    h.wb.ResAddr,
			Data:    h.wb.ResData,
			Tag:     h.wb.ResTag,
			InOrder: true,
		},
	})
	h.ex.Commit()
	h.rf.Commit()

	h.wb = st
	h.outs = append(h.outs, out)
	return out
}

func (h *execHarness) tick() pipeline.ExecuteOutputs {
	return h.tickWith(pipeline.ExecuteInputs{})
}

func (h *execHarness) run(cycles int) {
	for i := 0; i < cycles; i++ {
		h.tick()
	}
}

func enc(op insts.Op, rd, rs1, rs2 uint8, imm int64) uint32 {
	return insts.MustEncode(op, rd, rs1, rs2, imm)
}

var _ = Describe("ExecuteStage", func() {
	Describe("single-cycle operations", func() {
		It("should issue an ADDI and write it back two cycles later", func() {
			h := newExecHarness(enc(insts.OpADDI, 5, 0, 0, 42))

			out := h.tick()
			Expect(out.Accepted).To(BeTrue())
			Expect(out.Issued).To(BeTrue())

			st := h.ex.State()
			Expect(st.Valid).To(BeTrue())
			Expect(st.PC).To(Equal(resetVector))
			Expect(st.NPC).To(Equal(resetVector + 4))
			Expect(st.ResAddr).To(Equal(uint8(5)))
			Expect(st.ResData).To(Equal(uint64(42)))
			Expect(st.ResTag).To(Equal(uint8(1)))

			h.run(2)
			v, tag := h.rf.Read(5)
			Expect(v).To(Equal(uint64(42)))
			Expect(tag).To(Equal(uint8(1)))
		})

		It("should allocate consecutive tags for back-to-back writes", func() {
			h := newExecHarness(
				enc(insts.OpADDI, 5, 0, 0, 1),
				enc(insts.OpADDI, 5, 0, 0, 2),
			)

			h.tick()
			Expect(h.ex.State().ResTag).To(Equal(uint8(1)))
			h.tick()
			Expect(h.ex.State().ResTag).To(Equal(uint8(2)))

			h.run(3)
			Expect(h.rf.ReadReg(5)).To(Equal(uint64(2)))
			Expect(h.rf.Stats().IgnoredWrites).To(BeZero())
		})

		DescribeTable("ALU results",
			func(op insts.Op, a, b uint64, expected uint64) {
				h := newExecHarness(enc(op, 3, 1, 2, 0))
				h.setReg(1, a)
				h.setReg(2, b)
				h.tick()
				Expect(h.ex.State().ResData).To(Equal(expected))
			},
			Entry("ADD", insts.OpADD, uint64(5), uint64(7), uint64(12)),
			Entry("SUBW re-extends", insts.OpSUBW, uint64(0), uint64(1), ^uint64(0)),
			Entry("ADDW wraps", insts.OpADDW, uint64(0x7FFFFFFF), uint64(1), uint64(0xFFFFFFFF80000000)),
			Entry("SLT signed", insts.OpSLT, ^uint64(0), uint64(1), uint64(1)),
			Entry("SLTU unsigned", insts.OpSLTU, ^uint64(0), uint64(1), uint64(0)),
			Entry("SLT across the sign boundary", insts.OpSLT, uint64(1)<<63, uint64(1<<63-1), uint64(1)),
			Entry("SRA", insts.OpSRA, uint64(1)<<63, uint64(4), uint64(0xF800000000000000)),
			Entry("SRLW", insts.OpSRLW, uint64(0xFFFFFFFF00000010), uint64(4), uint64(1)),
			Entry("XOR", insts.OpXOR, uint64(0xF0), uint64(0xFF), uint64(0x0F)),
		)

		It("should compute AUIPC and LUI from the pc", func() {
			h := newExecHarness(
				enc(insts.OpAUIPC, 1, 0, 0, 0x2000),
				enc(insts.OpLUI, 2, 0, 0, -4096),
			)
			h.tick()
			Expect(h.ex.State().ResData).To(Equal(resetVector + 0x2000))
			h.tick()
			Expect(h.ex.State().ResData).To(Equal(uint64(0xFFFFFFFFFFFFF000)))
		})
	})

	Describe("branches and jumps", func() {
		DescribeTable("conditional branch resolution",
			func(op insts.Op, a, b uint64, taken bool) {
				h := newExecHarness(enc(op, 0, 1, 2, 0x40))
				h.setReg(1, a)
				h.setReg(2, b)
				h.tick()

				st := h.ex.State()
				Expect(st.ResAddr).To(BeZero())
				Expect(st.Jump).To(Equal(taken))
				if taken {
					Expect(st.NPC).To(Equal(resetVector + 0x40))
				} else {
					Expect(st.NPC).To(Equal(resetVector + 4))
				}
			},
			Entry("BEQ equal", insts.OpBEQ, uint64(3), uint64(3), true),
			Entry("BNE equal", insts.OpBNE, uint64(3), uint64(3), false),
			Entry("BLT negative vs positive", insts.OpBLT, ^uint64(0), uint64(1), true),
			Entry("BLTU max vs one", insts.OpBLTU, ^uint64(0), uint64(1), false),
			Entry("BGE min vs max", insts.OpBGE, uint64(1)<<63, uint64(1<<63-1), false),
			Entry("BGEU min vs max", insts.OpBGEU, uint64(1)<<63, uint64(1<<63-1), true),
		)

		It("should link and flag calls", func() {
			h := newExecHarness(enc(insts.OpJAL, emu.RegRA, 0, 0, 0x100))
			h.tick()

			st := h.ex.State()
			Expect(st.NPC).To(Equal(resetVector + 0x100))
			Expect(st.ResAddr).To(Equal(uint8(emu.RegRA)))
			Expect(st.ResData).To(Equal(resetVector + 4))
			Expect(st.Call).To(BeTrue())
			Expect(st.Jump).To(BeTrue())
		})

		It("should flag returns and clear bit 0 of the target", func() {
			h := newExecHarness(enc(insts.OpJALR, 0, emu.RegRA, 0, 0))
			h.setReg(emu.RegRA, 0x2001)
			h.tick()

			st := h.ex.State()
			Expect(st.NPC).To(Equal(uint64(0x2000)))
			Expect(st.Ret).To(BeTrue())
			Expect(h.ex.Stats().Returns).To(Equal(uint64(1)))
		})

		It("should return through mepc on MRET", func() {
			h := newExecHarness(enc(insts.OpMRET, 0, 0, 0, 0))
			h.csr.WriteCSR(emu.CSRMepc, 0x3000)

			out := h.tick()
			Expect(out.MRet).To(BeTrue())
			Expect(h.ex.State().NPC).To(Equal(uint64(0x3000)))
			Expect(h.ex.State().ResAddr).To(BeZero())
		})
	})

	Describe("memory operations", func() {
		It("should describe a load", func() {
			h := newExecHarness(enc(insts.OpLHU, 4, 1, 0, 6))
			h.setReg(1, 0x8000)
			h.tick()

			st := h.ex.State()
			Expect(st.MemOp).To(Equal(pipeline.MemOp{Load: true, Size: 1, Addr: 0x8006}))
			Expect(st.ResAddr).To(Equal(uint8(4)))
		})

		It("should describe a store without a destination", func() {
			h := newExecHarness(enc(insts.OpSD, 0, 1, 2, -8))
			h.setReg(1, 0x8010)
			h.setReg(2, 0xABCD)
			h.tick()

			st := h.ex.State()
			Expect(st.MemOp).To(Equal(pipeline.MemOp{Store: true, Size: 3, Addr: 0x8008, Data: 0xABCD}))
			Expect(st.ResAddr).To(BeZero())
		})
	})

	Describe("hazard detection", func() {
		It("should hold a dependent instruction until its source commits", func() {
			h := newExecHarness(
				enc(insts.OpADDI, 1, 0, 0, 5),
				enc(insts.OpADD, 2, 1, 1, 0),
			)

			Expect(h.tick().Issued).To(BeTrue())
			out := h.tick()
			Expect(out.Hazard).To(BeTrue())
			Expect(out.Accepted).To(BeFalse())
			out = h.tick()
			Expect(out.Hazard).To(BeTrue())
			out = h.tick()
			Expect(out.Hazard).To(BeFalse())
			Expect(out.Accepted).To(BeTrue())
			Expect(h.ex.State().ResData).To(Equal(uint64(10)))
			Expect(h.ex.Stats().HazardStalls).To(Equal(uint64(2)))
		})

		It("should check the second slot at depth 2", func() {
			h := newExecHarness(
				enc(insts.OpADDI, 1, 0, 0, 5),
				enc(insts.OpADDI, 3, 0, 0, 6),
				enc(insts.OpADD, 2, 1, 1, 0),
			)

			h.run(2)
			Expect(h.ex.State().Hazard.Depth).To(Equal(uint8(2)))
			out := h.tick()
			Expect(out.Hazard).To(BeTrue())
			out = h.tick()
			Expect(out.Accepted).To(BeTrue())
			Expect(h.ex.State().ResData).To(Equal(uint64(10)))
			Expect(h.ex.Stats().HazardStalls).To(Equal(uint64(1)))
		})

		It("should not hold independent instructions", func() {
			h := newExecHarness(
				enc(insts.OpADDI, 1, 0, 0, 5),
				enc(insts.OpADDI, 2, 0, 0, 6),
				enc(insts.OpADD, 3, 0, 0, 0),
			)

			for i := 0; i < 3; i++ {
				Expect(h.tick().Accepted).To(BeTrue())
			}
			Expect(h.ex.Stats().HazardStalls).To(BeZero())
		})
	})

	Describe("multi-cycle dispatch", func() {
		It("should divide 7 by 2 and hold while the divider is busy", func() {
			h := newExecHarness(
				enc(insts.OpDIVU, 3, 1, 2, 0),
				enc(insts.OpREMU, 4, 1, 2, 0),
			)
			h.setReg(1, 7)
			h.setReg(2, 2)

			out := h.tick()
			Expect(out.Accepted).To(BeTrue())
			Expect(out.Issued).To(BeFalse())
			Expect(h.ex.State().MultiBusy).To(BeTrue())

			cycles := 0
			for !h.tick().Issued {
				Expect(h.outs[len(h.outs)-1].Hold).To(BeTrue())
				cycles++
				Expect(cycles).To(BeNumerically("<", 20))
			}
			Expect(cycles).To(Equal(arith.DividerLatency))
			Expect(h.ex.State().ResData).To(Equal(uint64(3)))
			Expect(h.ex.State().PC).To(Equal(resetVector))

			for !h.tick().Issued {
			}
			Expect(h.ex.State().ResData).To(Equal(uint64(1)))
			Expect(h.ex.State().PC).To(Equal(resetVector + 4))
			Expect(h.ex.DividerStats().Completed).To(Equal(uint64(2)))
		})

		It("should multiply through the multiplier with the high selector", func() {
			h := newExecHarness(enc(insts.OpMULHU, 3, 1, 2, 0))
			h.setReg(1, ^uint64(0))
			h.setReg(2, ^uint64(0))

			h.tick()
			cycles := 0
			for !h.tick().Issued {
				cycles++
			}
			Expect(cycles).To(Equal(arith.MultiplierLatency))
			Expect(h.ex.State().ResData).To(Equal(^uint64(0) - 1))
			Expect(h.ex.Stats().MultiCycleOps).To(Equal(uint64(1)))
		})
	})

	Describe("traps", func() {
		It("should trap on an illegal instruction", func() {
			h := newExecHarness(0x00000000)
			h.csr.WriteCSR(emu.CSRMtvec, 0x200)

			out := h.tick()
			Expect(out.Trap).To(Equal(pipeline.TrapEvent{
				Valid: true,
				Cause: emu.CauseIllegalInstruction,
				PC:    resetVector,
			}))
			st := h.ex.State()
			Expect(st.NPC).To(Equal(uint64(0x200)))
			Expect(st.ResAddr).To(BeZero())
			Expect(st.TrapPC).To(Equal(resetVector))
		})

		It("should trap on ECALL and EBREAK", func() {
			h := newExecHarness(enc(insts.OpECALL, 0, 0, 0, 0))
			Expect(h.tick().Trap.Cause).To(Equal(emu.CauseECallM))

			h = newExecHarness(enc(insts.OpEBREAK, 0, 0, 0, 0))
			Expect(h.tick().Trap.Cause).To(Equal(emu.CauseBreakpoint))
		})

		It("should trap on a misaligned load", func() {
			h := newExecHarness(enc(insts.OpLW, 4, 1, 0, 2))
			out := h.tick()
			Expect(out.Trap.Valid).To(BeTrue())
			Expect(out.Trap.Cause).To(Equal(emu.CauseLoadMisaligned))
			Expect(h.ex.State().MemOp.Load).To(BeFalse())
		})

		It("should latch an interrupt edge and take it on the next instruction", func() {
			h := newExecHarness()
			h.csr.WriteCSR(emu.CSRMtvec, 0x400)

			h.tickWith(pipeline.ExecuteInputs{ExtIRQ: true, IRQEnable: true})
			Expect(h.ex.State().TrapPending).To(BeTrue())

			h.prog[resetVector] = enc(insts.OpADDI, 1, 0, 0, 1)
			out := h.tickWith(pipeline.ExecuteInputs{ExtIRQ: true, IRQEnable: true})
			Expect(out.Trap.Valid).To(BeTrue())
			Expect(out.Trap.Cause).To(Equal(emu.CauseExternalIRQ | emu.CauseInterrupt))
			Expect(h.ex.State().NPC).To(Equal(uint64(0x400)))
			Expect(h.ex.Stats().Interrupts).To(Equal(uint64(1)))
		})

		It("should ignore interrupts while disabled", func() {
			h := newExecHarness(enc(insts.OpADDI, 1, 0, 0, 1))
			out := h.tickWith(pipeline.ExecuteInputs{ExtIRQ: true})
			Expect(out.Trap.Valid).To(BeFalse())
			Expect(h.ex.State().TrapPending).To(BeFalse())
		})

		It("should let an illegal instruction win over a new interrupt", func() {
			h := newExecHarness(0x00000000)
			out := h.tickWith(pipeline.ExecuteInputs{ExtIRQ: true, IRQEnable: true})
			Expect(out.Trap.Cause).To(Equal(emu.CauseIllegalInstruction))
			Expect(h.ex.State().TrapPending).To(BeFalse())
		})

		It("should not trap while held", func() {
			h := newExecHarness(0x00000000)
			out := h.tickWith(pipeline.ExecuteInputs{Hold: true})
			Expect(out.Trap.Valid).To(BeFalse())
			Expect(h.ex.State().NPC).To(Equal(resetVector))
		})
	})

	Describe("CSR access", func() {
		It("should request a CSR write and return the old value", func() {
			h := newExecHarness(enc(insts.OpCSRRW, 5, 1, 0, int64(emu.CSRMscratch)))
			h.csr.WriteCSR(emu.CSRMscratch, 0x11)
			h.setReg(1, 0x22)

			out := h.tick()
			Expect(out.CSR).To(Equal(pipeline.CSRWrite{Enable: true, Addr: emu.CSRMscratch, Data: 0x22}))
			Expect(h.ex.State().ResData).To(Equal(uint64(0x11)))
		})

		It("should not write for CSRRS with x0", func() {
			h := newExecHarness(enc(insts.OpCSRRS, 5, 0, 0, int64(emu.CSRMstatus)))
			out := h.tick()
			Expect(out.CSR.Enable).To(BeFalse())
		})
	})

	Describe("debug npc write", func() {
		It("should redirect the next pc and block issue", func() {
			h := newExecHarness(enc(insts.OpADDI, 1, 0, 0, 1))
			out := h.tickWith(pipeline.ExecuteInputs{DebugNPCWrite: true, DebugNPC: 0x5000})
			Expect(out.Accepted).To(BeFalse())
			Expect(h.ex.State().NPC).To(Equal(uint64(0x5000)))
		})
	})

	Describe("FENCE.I", func() {
		It("should request an instruction-side flush", func() {
			h := newExecHarness(enc(insts.OpFENCEI, 0, 0, 0, 0))
			Expect(h.tick().FenceI).To(BeTrue())
		})
	})

	It("should be deterministic across fresh instances", func() {
		program := []uint32{
			enc(insts.OpADDI, 1, 0, 0, 9),
			enc(insts.OpADDI, 2, 0, 0, 4),
			enc(insts.OpMUL, 3, 1, 2, 0),
			enc(insts.OpDIV, 4, 3, 2, 0),
			enc(insts.OpBNE, 0, 4, 1, -8),
			enc(insts.OpSUB, 5, 4, 1, 0),
		}
		run := func() []pipeline.PipelineState {
			h := newExecHarness(program...)
			var states []pipeline.PipelineState
			for i := 0; i < 60; i++ {
				h.tick()
				states = append(states, h.ex.State())
			}
			return states
		}
		Expect(run()).To(Equal(run()))
	})

	Describe("Reset", func() {
		It("should return to the reset vector", func() {
			h := newExecHarness(enc(insts.OpJAL, 0, 0, 0, 0x80))
			h.tick()
			Expect(h.ex.State().NPC).To(Equal(resetVector + 0x80))

			h.ex.Reset()
			Expect(h.ex.State().NPC).To(Equal(resetVector))
			Expect(h.ex.Drained()).To(BeTrue())
		})
	})
})
