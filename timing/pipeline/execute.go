package pipeline

import (
	"github.com/sarchlab/riversim/emu"
	"github.com/sarchlab/riversim/insts"
	"github.com/sarchlab/riversim/timing/arith"
)

// RegisterReader is the read side of the register file.
type RegisterReader interface {
	Read(addr uint8) (uint64, uint8)
}

// CSRReader is the read side of the CSR bank.
type CSRReader interface {
	ReadCSR(addr uint16) uint64
	TrapVector() uint64
}

// ExecuteInputs are the signals sampled by the execute stage in one cycle.
type ExecuteInputs struct {
	// Hold stalls issue from outside the stage.
	Hold bool

	// Decoded instruction from the fetch side.
	DValid     bool
	DPC        uint64
	DInstr     uint32
	DLoadFault bool

	// WBDone signals that the oldest outstanding instruction wrote back.
	WBDone bool

	ExtIRQ    bool
	IRQEnable bool

	// DebugNPCWrite overrides the next pc and blocks issue for the cycle.
	DebugNPCWrite bool
	DebugNPC      uint64
}

// CSRWrite is a CSR update requested by an issued instruction.
type CSRWrite struct {
	Enable bool
	Addr   uint16
	Data   uint64
}

// TrapEvent describes a trap taken in the current cycle.
type TrapEvent struct {
	Valid bool
	Cause uint64
	// PC is the pc of the trapped instruction.
	PC uint64
}

// ExecuteOutputs are the combinational outputs of the execute stage.
type ExecuteOutputs struct {
	Radr1, Radr2 uint8

	Hazard bool
	// Hold is set while the stage cannot accept an instruction because of a
	// data hazard or a busy multi-cycle unit.
	Hold bool
	// Accepted is set when the decode register was consumed.
	Accepted bool
	// Issued is set when an instruction completes execution this cycle.
	Issued bool

	FetchFault bool

	CSR    CSRWrite
	Trap   TrapEvent
	MRet   bool
	URet   bool
	FenceI bool
}

// ExecuteStatistics counts execute stage activity.
type ExecuteStatistics struct {
	Issued        uint64
	Traps         uint64
	Interrupts    uint64
	HazardStalls  uint64
	MultiCycleOps uint64
	Branches      uint64
	TakenBranches uint64
	Calls         uint64
	Returns       uint64
	CSRWrites     uint64
}

type executeEvents struct {
	issued      bool
	trap        bool
	interrupt   bool
	hazardStall bool
	multi       bool
	branch      bool
	taken       bool
	csrWrite    bool
}

// ExecuteOption is a functional option for configuring the ExecuteStage.
type ExecuteOption func(*ExecuteStage)

// WithResetVector sets the pc the stage expects after reset.
func WithResetVector(pc uint64) ExecuteOption {
	return func(e *ExecuteStage) {
		e.resetVector = pc
	}
}

// WithAsyncReset selects the asynchronous reset discipline.
func WithAsyncReset(async bool) ExecuteOption {
	return func(e *ExecuteStage) {
		e.asyncReset = async
	}
}

// ExecuteStage resolves one instruction per cycle. Single-cycle operations
// complete in the cycle they are accepted; multiply and divide occupy the
// embedded units and hold the stage until their result is valid.
type ExecuteStage struct {
	r, v PipelineState

	regs    RegisterReader
	csr     CSRReader
	decoder *insts.Decoder
	hazard  *HazardUnit

	mul arith.Multiplier
	div arith.Divider

	resetVector  uint64
	asyncReset   bool
	resetPending bool

	ev    executeEvents
	stats ExecuteStatistics
}

// NewExecuteStage creates an execute stage reading operands from regs and
// CSRs from csr.
func NewExecuteStage(regs RegisterReader, csr CSRReader, opts ...ExecuteOption) *ExecuteStage {
	e := &ExecuteStage{
		regs:    regs,
		csr:     csr,
		decoder: insts.NewDecoder(),
		hazard:  NewHazardUnit(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.mul.Init(e.asyncReset)
	e.div.Init(e.asyncReset)
	e.r.Clear(e.resetVector)
	e.v = e.r

	return e
}

// State returns the registered pipeline state.
func (e *ExecuteStage) State() PipelineState {
	return e.r
}

// Drained reports whether no issued instruction is still waiting for
// write-back and no multi-cycle operation is in flight.
func (e *ExecuteStage) Drained() bool {
	return e.r.Hazard.Depth == 0 && !e.r.MultiBusy
}

// Stats returns execute stage statistics.
func (e *ExecuteStage) Stats() ExecuteStatistics {
	return e.stats
}

// MultiplierStats returns the statistics of the embedded multiplier.
func (e *ExecuteStage) MultiplierStats() arith.MultiplierStatistics {
	return e.mul.Stats()
}

// DividerStats returns the statistics of the embedded divider.
func (e *ExecuteStage) DividerStats() arith.DividerStatistics {
	return e.div.Stats()
}

type operands struct {
	radr1, radr2 uint8
	a1, a2       uint64
	off          uint64
}

// operands selects source registers and the immediate by encoding class.
func (e *ExecuteStage) operands(inst *insts.Instruction, pc uint64) operands {
	var o operands
	w := inst.Word

	switch inst.Format {
	case insts.FormatR:
		o.radr1, o.radr2 = inst.Rs1, inst.Rs2
		o.a1, o.a2 = e.read(o.radr1), e.read(o.radr2)
	case insts.FormatI:
		if inst.Op < insts.OpCSRRWI {
			o.radr1 = inst.Rs1
			o.a1 = e.read(o.radr1)
		}
		o.a2 = uint64(insts.ImmI(w))
	case insts.FormatS:
		o.radr1, o.radr2 = inst.Rs1, inst.Rs2
		o.a1, o.a2 = e.read(o.radr1), e.read(o.radr2)
		o.off = uint64(insts.ImmS(w))
	case insts.FormatSB:
		o.radr1, o.radr2 = inst.Rs1, inst.Rs2
		o.a1, o.a2 = e.read(o.radr1), e.read(o.radr2)
		o.off = uint64(insts.ImmB(w))
	case insts.FormatUJ:
		o.a1 = pc
		o.off = uint64(insts.ImmJ(w))
	case insts.FormatU:
		o.a1 = pc
		o.a2 = uint64(insts.ImmU(w))
	}

	return o
}

func (e *ExecuteStage) read(addr uint8) uint64 {
	v, _ := e.regs.Read(addr)
	return v
}

type aluResult struct {
	res   uint64
	npc   uint64
	taken bool
	jump  bool
}

// alu evaluates the parallel result bank and selects by instruction.
func (e *ExecuteStage) alu(inst *insts.Instruction, o operands, pc uint64) aluResult {
	a1, a2 := o.a1, o.a2
	sh64, sh32 := uint(a2&0x3F), uint(a2&0x1F)

	sum64 := a1 + a2
	sum32 := sext32(uint32(a1) + uint32(a2))
	sub64 := a1 - a2
	sub32 := sext32(uint32(a1) - uint32(a2))
	lessS := signedLess(a1, a2, sub64)
	lessU := unsignedLess(a1, a2, sub64)

	out := aluResult{npc: pc + 4}

	switch inst.Op {
	case insts.OpADD, insts.OpADDI, insts.OpAUIPC:
		out.res = sum64
	case insts.OpADDW, insts.OpADDIW:
		out.res = sum32
	case insts.OpSUB:
		out.res = sub64
	case insts.OpSUBW:
		out.res = sub32
	case insts.OpSLL, insts.OpSLLI:
		out.res = a1 << sh64
	case insts.OpSLLW, insts.OpSLLIW:
		out.res = sext32(uint32(a1) << sh32)
	case insts.OpSRL, insts.OpSRLI:
		out.res = a1 >> sh64
	case insts.OpSRLW, insts.OpSRLIW:
		out.res = sext32(uint32(a1) >> sh32)
	case insts.OpSRA, insts.OpSRAI:
		out.res = uint64(int64(a1) >> sh64)
	case insts.OpSRAW, insts.OpSRAIW:
		out.res = uint64(int64(int32(uint32(a1)) >> sh32))
	case insts.OpAND, insts.OpANDI:
		out.res = a1 & a2
	case insts.OpOR, insts.OpORI:
		out.res = a1 | a2
	case insts.OpXOR, insts.OpXORI:
		out.res = a1 ^ a2
	case insts.OpSLT, insts.OpSLTI:
		out.res = b2u(lessS)
	case insts.OpSLTU, insts.OpSLTIU:
		out.res = b2u(lessU)
	case insts.OpLUI:
		out.res = a2

	case insts.OpBEQ:
		out.taken = sub64 == 0
	case insts.OpBNE:
		out.taken = sub64 != 0
	case insts.OpBLT:
		out.taken = lessS
	case insts.OpBGE:
		out.taken = !lessS
	case insts.OpBLTU:
		out.taken = lessU
	case insts.OpBGEU:
		out.taken = !lessU

	case insts.OpJAL:
		out.res = pc + 4
		out.npc = a1 + o.off
		out.jump = true
	case insts.OpJALR:
		out.res = pc + 4
		out.npc = (a1 + a2) &^ 1
		out.jump = true
	case insts.OpMRET:
		out.npc = e.csr.ReadCSR(emu.CSRMepc)
	case insts.OpURET:
		out.npc = e.csr.ReadCSR(emu.CSRUepc)
	}

	if out.taken {
		out.npc = pc + o.off
		out.jump = true
	}

	return out
}

// signedLess derives a < b from the subtraction sign and the operand signs.
func signedLess(a, b, diff uint64) bool {
	if (a^b)>>63 != 0 {
		return a>>63 != 0
	}
	return diff>>63 != 0
}

// unsignedLess derives a < b from the subtraction sign and the operand MSBs.
func unsignedLess(a, b, diff uint64) bool {
	if (a^b)>>63 != 0 {
		return b>>63 != 0
	}
	return diff>>63 != 0
}

func sext32(v uint32) uint64 {
	return uint64(int64(int32(v)))
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// writesRd reports whether the instruction produces a register result.
func writesRd(inst *insts.Instruction) bool {
	switch inst.Format {
	case insts.FormatS, insts.FormatSB, insts.FormatUnknown:
		return false
	}
	switch inst.Op {
	case insts.OpECALL, insts.OpEBREAK, insts.OpMRET, insts.OpURET,
		insts.OpFENCE, insts.OpFENCEI, insts.OpWFI:
		return false
	}
	return true
}

// exception returns the synchronous trap cause of an instruction, if any.
func exception(inst *insts.Instruction, mem MemOp) (uint64, bool) {
	switch {
	case inst.Unsupported:
		return emu.CauseIllegalInstruction, true
	case inst.Op == insts.OpEBREAK:
		return emu.CauseBreakpoint, true
	case inst.Op == insts.OpECALL:
		return emu.CauseECallM, true
	case mem.Load && misaligned(mem):
		return emu.CauseLoadMisaligned, true
	case mem.Store && misaligned(mem):
		return emu.CauseStoreMisaligned, true
	}
	return 0, false
}

func misaligned(m MemOp) bool {
	return m.Addr&(1<<m.Size-1) != 0
}

func memOp(inst *insts.Instruction, o operands) MemOp {
	switch {
	case inst.IsLoad():
		return MemOp{
			Load:    true,
			SignExt: !inst.Unsigned,
			Size:    inst.MemSize,
			Addr:    o.a1 + o.a2,
		}
	case inst.IsStore():
		return MemOp{
			Store: true,
			Size:  inst.MemSize,
			Addr:  o.a1 + o.off,
			Data:  o.a2,
		}
	}
	return MemOp{}
}

func multiplierMode(inst *insts.Instruction) arith.SignMode {
	switch inst.Op {
	case insts.OpMULHU:
		return arith.UnsignedUnsigned
	case insts.OpMULHSU:
		return arith.SignedUnsigned
	}
	return arith.SignedSigned
}

// Comb computes the next pipeline state and this cycle's outputs.
func (e *ExecuteStage) Comb(in ExecuteInputs) ExecuteOutputs {
	r := &e.r
	v := *r
	v.Valid = false
	v.Jump, v.Call, v.Ret = false, false, false
	v.MemOp.Clear()
	v.multi.mulEna, v.multi.divEna = false, false
	e.ev = executeEvents{}

	var out ExecuteOutputs

	mulOut, divOut := e.mul.Outputs(), e.div.Outputs()
	multiValid := r.MultiBusy && (mulOut.Valid || divOut.Valid)

	inst := e.decoder.Decode(in.DInstr)
	pcValid := in.DValid && in.DPC == r.NPC
	o := e.operands(inst, in.DPC)
	out.Radr1, out.Radr2 = o.radr1, o.radr2

	out.Hazard = e.hazard.Detect(r.Hazard, o.radr1, o.radr2)
	out.Hold = out.Hazard || r.MultiBusy
	out.FetchFault = pcValid && in.DLoadFault
	acceptable := pcValid && !in.Hold && !out.Hold && !in.DebugNPCWrite && !in.DLoadFault
	e.ev.hazardStall = pcValid && out.Hazard

	mem := memOp(inst, o)
	cause, exc := exception(inst, mem)

	irqLevel := in.ExtIRQ && in.IRQEnable
	if irqLevel && !r.irqLevel && !r.TrapPending && !(pcValid && exc) {
		v.TrapPending = true
		v.TrapCause = emu.CauseExternalIRQ | emu.CauseInterrupt
	}
	v.irqLevel = irqLevel

	var (
		issued  bool
		resAddr uint8
		res     uint64
	)

	switch {
	case multiValid:
		issued = true
		if divOut.Valid {
			res = divOut.Result
		} else {
			res = mulOut.Result
		}
		v.PC, v.Instr, v.NPC = r.multi.pc, r.multi.instr, r.multi.npc
		resAddr = r.multi.resAddr
		v.MultiBusy = false
		v.MultiRemaining = 0

	case acceptable && (exc || r.TrapPending):
		issued = true
		out.Accepted = true
		if !exc {
			cause = r.TrapCause
			e.ev.interrupt = true
		}
		out.Trap = TrapEvent{Valid: true, Cause: cause, PC: in.DPC}
		v.PC, v.Instr, v.NPC = in.DPC, in.DInstr, e.csr.TrapVector()
		v.TrapPending = false
		v.TrapCause = cause
		v.TrapPC = in.DPC
		e.ev.trap = true

	case acceptable && (inst.IsMul() || inst.IsDiv()):
		out.Accepted = true
		e.dispatchMulti(&v, inst, o, in.DPC)
		e.ev.multi = true

	case acceptable:
		issued = true
		out.Accepted = true
		alu := e.alu(inst, o, in.DPC)
		res = alu.res
		if writesRd(inst) {
			resAddr = inst.Rd
		}

		v.PC, v.Instr, v.NPC = in.DPC, in.DInstr, alu.npc
		v.MemOp = mem
		v.Jump = alu.jump
		v.Call = (inst.Op == insts.OpJAL || inst.Op == insts.OpJALR) && resAddr == emu.RegRA
		v.Ret = inst.Op == insts.OpJALR && !v.Call && o.radr1 == emu.RegRA && o.a2 == 0

		out.MRet = inst.Op == insts.OpMRET
		out.URet = inst.Op == insts.OpURET
		out.FenceI = inst.Op == insts.OpFENCEI
		if inst.IsCSR() {
			out.CSR = e.csrAccess(inst, o)
			res = e.csr.ReadCSR(inst.CSR)
		}

		e.ev.branch = inst.IsBranch()
		e.ev.taken = alu.taken
		e.ev.csrWrite = out.CSR.Enable
	}

	if in.DebugNPCWrite {
		v.NPC = in.DebugNPC
	}

	if issued {
		v.Valid = true
		v.ResAddr = resAddr
		v.ResData = res
		v.ResTag = 0
		if resAddr != 0 {
			v.Tags[resAddr] = NextTag(r.Tags[resAddr])
			v.ResTag = v.Tags[resAddr]
		}
	}
	out.Issued = issued
	e.ev.issued = issued

	v.Hazard = e.hazard.Next(r.Hazard, issued, resAddr, in.WBDone)
	if r.MultiBusy && !multiValid && v.MultiRemaining > 0 {
		v.MultiRemaining--
	}

	e.mul.Comb(arith.MultiplierInputs{
		Enable: r.multi.mulEna,
		Mode:   r.multi.mode,
		RV32:   r.multi.rv32,
		High:   r.multi.high,
		A1:     r.multi.a1,
		A2:     r.multi.a2,
	})
	e.div.Comb(arith.DividerInputs{
		Enable:   r.multi.divEna,
		Unsigned: r.multi.unsigned,
		RV32:     r.multi.rv32,
		Residual: r.multi.residual,
		A1:       r.multi.a1,
		A2:       r.multi.a2,
	})

	e.v = v
	return out
}

func (e *ExecuteStage) dispatchMulti(v *PipelineState, inst *insts.Instruction, o operands, pc uint64) {
	m := multiOp{
		rv32:     inst.RV32,
		unsigned: inst.Unsigned,
		a1:       o.a1,
		a2:       o.a2,
		pc:       pc,
		instr:    inst.Word,
		npc:      pc + 4,
		resAddr:  inst.Rd,
	}

	if inst.IsMul() {
		m.mulEna = true
		m.mode = multiplierMode(inst)
		m.high = inst.Op == insts.OpMULH || inst.Op == insts.OpMULHU || inst.Op == insts.OpMULHSU
		v.MultiRemaining = arith.MultiplierLatency + 1
	} else {
		m.divEna = true
		m.residual = inst.Op == insts.OpREM || inst.Op == insts.OpREMU ||
			inst.Op == insts.OpREMW || inst.Op == insts.OpREMUW
		v.MultiRemaining = arith.DividerLatency + 1
	}

	v.multi = m
	v.MultiBusy = true
	v.NPC = m.npc
}

func (e *ExecuteStage) csrAccess(inst *insts.Instruction, o operands) CSRWrite {
	old := e.csr.ReadCSR(inst.CSR)
	src := o.a1
	if inst.Op >= insts.OpCSRRWI {
		src = uint64(inst.Rs1)
	}

	next, write := emu.CSRUpdate(inst.Op, old, src, inst.Rs1)
	return CSRWrite{Enable: write, Addr: inst.CSR, Data: next}
}

// Commit latches the next state on the clock edge.
func (e *ExecuteStage) Commit() {
	e.mul.Commit()
	e.div.Commit()

	if e.resetPending {
		e.r.Clear(e.resetVector)
		e.v = e.r
		e.ev = executeEvents{}
		e.resetPending = false
		return
	}

	e.count()
	e.r = e.v
}

func (e *ExecuteStage) count() {
	ev := e.ev
	if ev.issued {
		e.stats.Issued++
	}
	if ev.trap {
		e.stats.Traps++
	}
	if ev.interrupt {
		e.stats.Interrupts++
	}
	if ev.hazardStall {
		e.stats.HazardStalls++
	}
	if ev.multi {
		e.stats.MultiCycleOps++
	}
	if ev.branch {
		e.stats.Branches++
	}
	if ev.taken {
		e.stats.TakenBranches++
	}
	if e.v.Call {
		e.stats.Calls++
	}
	if e.v.Ret {
		e.stats.Returns++
	}
	if ev.csrWrite {
		e.stats.CSRWrites++
	}
	e.ev = executeEvents{}
}

// Tick runs one clock cycle.
func (e *ExecuteStage) Tick(in ExecuteInputs) ExecuteOutputs {
	out := e.Comb(in)
	e.Commit()
	return out
}

// Reset returns the stage and its arithmetic units to the reset state.
func (e *ExecuteStage) Reset() {
	e.mul.Reset()
	e.div.Reset()

	if e.asyncReset {
		e.r.Clear(e.resetVector)
		e.v = e.r
		e.ev = executeEvents{}
		return
	}
	e.resetPending = true
}
