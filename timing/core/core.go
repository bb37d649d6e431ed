// Package core provides the cycle-level RISC-V core model.
// It wires the execute stage to a fetch front end built from the branch
// predictor, the instruction cache stub and a cached memory port, and
// retires results through a memory access and write-back step.
package core

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/riversim/emu"
	"github.com/sarchlab/riversim/insts"
	"github.com/sarchlab/riversim/timing/arith"
	"github.com/sarchlab/riversim/timing/cache"
	"github.com/sarchlab/riversim/timing/latency"
	"github.com/sarchlab/riversim/timing/pipeline"
)

// Errors that halt the core.
var (
	ErrFetchFault     = errors.New("instruction fetch fault")
	ErrUnhandledTrap  = errors.New("unhandled trap")
	ErrMaxCyclesReach = errors.New("max cycles reached")
)

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired. Serviced system
	// calls count, other traps do not.
	Instructions uint64
	// Stalls counts cycles the expected instruction waited in decode.
	Stalls uint64
	// FetchWaits counts cycles the execute stage had nothing to run.
	FetchWaits uint64
	// Discarded counts decoded instructions dropped off the predicted path.
	Discarded uint64
	// Flushes is the number of FENCE.I flushes.
	Flushes    uint64
	Syscalls   uint64
	Traps      uint64
	Interrupts uint64

	// Classes counts retired instructions per execution class.
	Classes [latency.NumClasses]uint64

	Execute    pipeline.ExecuteStatistics
	Predictor  pipeline.BranchPredictorStats
	RegFile    pipeline.RegFileStatistics
	Multiplier arith.MultiplierStatistics
	Divider    arith.DividerStatistics
	Stub       cache.ICacheStubStatistics
	Port       cache.PortStatistics
	ICache     cache.Statistics
	DCache     cache.Statistics
}

// CPI returns cycles per retired instruction.
func (s Stats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// fetchEntry is one fetched instruction waiting for the execute stage.
type fetchEntry struct {
	valid bool
	pc    uint64
	instr uint32
	fault bool
}

type writeBack struct {
	valid bool
	rd    uint8
	data  uint64
	tag   uint8
}

type regWrite struct {
	addr uint8
	data uint64
}

// coreRegs is the state the core keeps between its components.
type coreRegs struct {
	dec fetchEntry
	buf fetchEntry

	outstanding bool
	reqPC       uint64

	wb writeBack

	flushPending bool

	npcPending bool
	npc        uint64
}

// Option is a functional option for configuring the Core.
type Option func(*Core)

// WithTimingConfig sets the timing configuration.
func WithTimingConfig(config *latency.TimingConfig) Option {
	return func(c *Core) {
		c.config = config
	}
}

// WithSyscallHandler sets a custom syscall handler. A nil handler makes
// ECALL trap through mtvec like any other exception.
func WithSyscallHandler(handler emu.SyscallHandler) Option {
	return func(c *Core) {
		c.syscallHandler = handler
		c.customHandler = true
	}
}

// WithStdout sets the writer behind file descriptor 1.
func WithStdout(w io.Writer) Option {
	return func(c *Core) {
		c.stdout = w
	}
}

// WithStderr sets the writer behind file descriptor 2.
func WithStderr(w io.Writer) Option {
	return func(c *Core) {
		c.stderr = w
	}
}

// WithStdin sets the reader behind file descriptor 0.
func WithStdin(r io.Reader) Option {
	return func(c *Core) {
		c.stdin = r
	}
}

// WithStackPointer sets the initial stack pointer.
func WithStackPointer(sp uint64) Option {
	return func(c *Core) {
		c.initRegs = append(c.initRegs, regWrite{addr: emu.RegSP, data: sp})
	}
}

// Core is a cycle-level model of a single-issue RISC-V core.
type Core struct {
	config *latency.TimingConfig

	memory    *emu.Memory
	csr       *emu.CSRFile
	regFile   *pipeline.RegFile
	execute   *pipeline.ExecuteStage
	predictor *pipeline.BranchPredictor
	stub      *cache.ICacheStub
	iport     *cache.Port
	dcache    *cache.Cache
	table     *latency.Table
	decoder   *insts.Decoder

	syscallHandler emu.SyscallHandler
	customHandler  bool
	stdout         io.Writer
	stderr         io.Writer
	stdin          io.Reader

	initRegs  []regWrite
	regWrites []regWrite

	r, v      coreRegs
	irq       bool
	resetting bool

	halted   bool
	exitCode int64
	err      error

	stats Stats
}

// NewCore creates a core executing from memory.
func NewCore(memory *emu.Memory, opts ...Option) *Core {
	c := &Core{
		config:  latency.DefaultTimingConfig(),
		memory:  memory,
		csr:     emu.NewCSRFile(),
		decoder: insts.NewDecoder(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}

	for _, opt := range opts {
		opt(c)
	}

	cfg := c.config
	c.regFile = pipeline.NewRegFile(cfg.AsyncReset)
	c.execute = pipeline.NewExecuteStage(c.regFile, c.csr,
		pipeline.WithResetVector(cfg.ResetVector),
		pipeline.WithAsyncReset(cfg.AsyncReset),
	)
	c.predictor = pipeline.NewBranchPredictor(cfg.BranchPredictorConfig())
	c.stub = cache.NewICacheStub(cfg.AsyncReset)

	backing := cache.NewMemoryBacking(memory)
	c.iport = cache.NewPort(cache.New(cfg.ICacheConfig(), backing), cfg.MemoryLimit)
	c.dcache = cache.New(cfg.DCacheConfig(), backing)
	c.table = latency.NewTableWithConfig(cfg)

	if !c.customHandler {
		h := emu.NewDefaultSyscallHandler(memory, c.stdout, c.stderr)
		if c.stdin != nil {
			h.SetStdin(c.stdin)
		}
		c.syscallHandler = h
	}

	c.regWrites = append([]regWrite(nil), c.initRegs...)

	return c
}

// Config returns the timing configuration.
func (c *Core) Config() *latency.TimingConfig {
	return c.config
}

// CSR returns the control and status registers.
func (c *Core) CSR() *emu.CSRFile {
	return c.csr
}

// ReadReg returns the committed value of an integer register.
func (c *Core) ReadReg(reg uint8) uint64 {
	return c.regFile.ReadReg(reg)
}

// PC returns the pc of the next instruction the execute stage expects.
func (c *Core) PC() uint64 {
	if c.r.npcPending {
		return c.r.npc
	}
	return c.execute.State().NPC
}

// SetPC redirects execution. It takes effect on the next cycle.
func (c *Core) SetPC(pc uint64) {
	c.r.npcPending = true
	c.r.npc = pc
}

// SetIRQ drives the external interrupt line.
func (c *Core) SetIRQ(level bool) {
	c.irq = level
}

// Halted returns true if the core has halted (e.g., due to exit syscall).
func (c *Core) Halted() bool {
	return c.halted
}

// ExitCode returns the exit code if the core has halted.
func (c *Core) ExitCode() int64 {
	return c.exitCode
}

// Err returns the error that halted the core, if any.
func (c *Core) Err() error {
	return c.err
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	s := c.stats
	s.Execute = c.execute.Stats()
	s.Predictor = c.predictor.Stats()
	s.RegFile = c.regFile.Stats()
	s.Multiplier = c.execute.MultiplierStats()
	s.Divider = c.execute.DividerStats()
	s.Stub = c.stub.Stats()
	s.Port = c.iport.Stats()
	s.ICache = c.iport.Cache().Stats()
	s.DCache = c.dcache.Stats()
	return s
}

// Run executes the core until it halts.
// Returns the exit code.
func (c *Core) Run() int64 {
	for !c.halted {
		c.Tick()
	}
	return c.exitCode
}

// RunCycles executes the core for the specified number of cycles.
// Returns true if still running, false if halted.
func (c *Core) RunCycles(cycles uint64) bool {
	for i := uint64(0); i < cycles && !c.halted; i++ {
		c.Tick()
	}
	return !c.halted
}

// Reset returns every component to its reset state. With the synchronous
// discipline the components clear on the next clock edge, which Tick spends
// on the reset alone.
func (c *Core) Reset() {
	c.regFile.Reset()
	c.execute.Reset()
	c.predictor.Reset()
	c.stub.Reset()
	c.iport.Reset()
	c.iport.Cache().Reset()
	c.dcache.Reset()
	c.csr.Reset()

	c.r = coreRegs{}
	c.v = coreRegs{}
	c.regWrites = append([]regWrite(nil), c.initRegs...)
	c.irq = false
	c.halted = false
	c.exitCode = 0
	c.err = nil
	c.stats = Stats{}
	c.resetting = !c.config.AsyncReset
}

// Tick executes one clock cycle.
func (c *Core) Tick() {
	if c.halted {
		return
	}

	if c.resetting {
		c.commitComponents()
		c.resetting = false
		c.stats.Cycles++
		return
	}

	r := &c.r
	c.v = *r
	c.v.npcPending = false
	st := c.execute.State()

	wbWrite := r.wb.valid && r.wb.rd != 0
	debug := c.debugWrite(wbWrite)
	c.regFile.Comb(pipeline.RegFileInputs{
		Write: pipeline.RegFileWrite{
			Enable:  wbWrite,
			Addr:    r.wb.rd,
			Data:    r.wb.data,
			Tag:     r.wb.tag,
			InOrder: c.config.InOrderWrites,
		},
		Debug: debug,
	})

	flushApply := r.flushPending && !r.outstanding
	hold := r.flushPending || len(c.regWrites) > 0 ||
		(c.syscallAhead(st) && !c.execute.Drained())

	exOut := c.execute.Comb(pipeline.ExecuteInputs{
		Hold:          hold,
		DValid:        r.dec.valid,
		DPC:           r.dec.pc,
		DInstr:        r.dec.instr,
		DLoadFault:    r.dec.fault,
		WBDone:        r.wb.valid,
		ExtIRQ:        c.irq,
		IRQEnable:     c.csr.InterruptEnabled(),
		DebugNPCWrite: r.npcPending,
		DebugNPC:      r.npc,
	})

	c.fetch(st, exOut, flushApply)
	c.memAccess(st)

	c.retire(exOut)
	if debug.Enable {
		c.regWrites = c.regWrites[1:]
	}

	c.commitComponents()
	if flushApply {
		c.iport.Invalidate()
		c.v.flushPending = false
		c.stats.Flushes++
	}

	c.r = c.v
	c.stats.Cycles++

	if exOut.FetchFault && !c.halted {
		c.halt(-1, fmt.Errorf("%w at pc 0x%x", ErrFetchFault, r.dec.pc))
	}
	if c.config.MaxCycles > 0 && c.stats.Cycles >= c.config.MaxCycles && !c.halted {
		c.halt(-1, fmt.Errorf("%w: %d", ErrMaxCyclesReach, c.config.MaxCycles))
	}
}

func (c *Core) commitComponents() {
	c.regFile.Commit()
	c.execute.Commit()
	c.predictor.Commit()
	c.stub.Commit()
	c.iport.Commit()
}

// debugWrite presents the oldest queued register write on the debug port.
// The register file only takes it in a cycle without a pipeline write.
func (c *Core) debugWrite(wbWrite bool) pipeline.DebugPortRequest {
	if len(c.regWrites) == 0 || wbWrite {
		return pipeline.DebugPortRequest{}
	}
	w := c.regWrites[0]
	return pipeline.DebugPortRequest{Enable: true, Write: true, Addr: w.addr, WData: w.data}
}

// syscallAhead reports whether the instruction waiting to issue is an
// ECALL serviced by the syscall handler.
func (c *Core) syscallAhead(st pipeline.PipelineState) bool {
	if c.syscallHandler == nil || !c.r.dec.valid || c.r.dec.pc != st.NPC {
		return false
	}
	return c.decoder.Decode(c.r.dec.instr).Op == insts.OpECALL
}

// memAccess performs the memory operation of the instruction that issued
// last cycle and stages its result for write-back. Stores write through the
// data cache. Loads take their value from memory and touch the data cache
// for its statistics.
func (c *Core) memAccess(st pipeline.PipelineState) {
	c.v.wb = writeBack{}
	if !st.Valid {
		return
	}

	data := st.ResData
	m := st.MemOp
	size := 1 << m.Size
	switch {
	case m.Load:
		c.dcache.Read(m.Addr, size)
		data = emu.LoadValue(c.memory, m.Addr, m.Size, !m.SignExt)
	case m.Store:
		c.dcache.Write(m.Addr, size, m.Data)
	}

	c.v.wb = writeBack{valid: true, rd: st.ResAddr, data: data, tag: st.ResTag}
}

// retire applies the architectural side effects of the instruction the
// execute stage handled this cycle.
func (c *Core) retire(out pipeline.ExecuteOutputs) {
	if out.CSR.Enable {
		c.csr.WriteCSR(out.CSR.Addr, out.CSR.Data)
	}
	if out.MRet {
		c.csr.MRet()
	}
	if out.FenceI {
		c.v.flushPending = true
	}

	if out.Trap.Valid {
		c.trap(out.Trap)
		return
	}

	if out.Accepted {
		c.stats.Classes[c.table.Classify(c.decoder.Decode(c.r.dec.instr))]++
	}
	if out.Issued {
		c.stats.Instructions++
	}
}

func (c *Core) trap(t pipeline.TrapEvent) {
	if t.Cause == emu.CauseECallM && c.syscallHandler != nil {
		c.stats.Syscalls++
		c.stats.Instructions++
		c.stats.Classes[latency.ClassSystem]++

		res := c.syscallHandler.Handle(syscallRegs{c})
		if res.Exited {
			c.halt(res.ExitCode, nil)
			return
		}
		c.v.npcPending = true
		c.v.npc = t.PC + 4
		return
	}

	c.stats.Traps++
	if t.Cause&emu.CauseInterrupt != 0 {
		c.stats.Interrupts++
	}

	if c.csr.TrapVector() == 0 {
		c.halt(-1, fmt.Errorf("%w: cause 0x%x at pc 0x%x", ErrUnhandledTrap, t.Cause, t.PC))
		return
	}
	c.csr.Trap(t.PC, t.Cause)
}

func (c *Core) halt(code int64, err error) {
	c.halted = true
	c.exitCode = code
	c.err = err
}

// syscallRegs gives a syscall handler the committed register state. Writes
// are queued for the debug port.
type syscallRegs struct {
	c *Core
}

func (s syscallRegs) ReadReg(reg uint8) uint64 {
	if reg == 0 {
		return 0
	}
	for i := len(s.c.regWrites) - 1; i >= 0; i-- {
		if s.c.regWrites[i].addr == reg {
			return s.c.regWrites[i].data
		}
	}
	return s.c.regFile.ReadReg(reg)
}

func (s syscallRegs) WriteReg(reg uint8, value uint64) {
	if reg == 0 {
		return
	}
	s.c.regWrites = append(s.c.regWrites, regWrite{addr: reg, data: value})
}
