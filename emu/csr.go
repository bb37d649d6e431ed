package emu

// Machine and user CSR addresses.
const (
	CSRUepc     uint16 = 0x041
	CSRMstatus  uint16 = 0x300
	CSRMie      uint16 = 0x304
	CSRMtvec    uint16 = 0x305
	CSRMscratch uint16 = 0x340
	CSRMepc     uint16 = 0x341
	CSRMcause   uint16 = 0x342
	CSRMhartid  uint16 = 0xF14
)

// mstatus and mie fields.
const (
	MstatusMIE  uint64 = 1 << 3
	MstatusMPIE uint64 = 1 << 7
	MieMEIE     uint64 = 1 << 11
)

// Trap causes.
const (
	CauseIllegalInstruction uint64 = 2
	CauseBreakpoint         uint64 = 3
	CauseLoadMisaligned     uint64 = 4
	CauseStoreMisaligned    uint64 = 6
	CauseECallM             uint64 = 11
	CauseExternalIRQ        uint64 = 11

	// CauseInterrupt marks asynchronous causes in mcause.
	CauseInterrupt uint64 = 1 << 63
)

// CSRFile holds the control and status registers of a single machine-mode
// hart. Unimplemented addresses read as zero and ignore writes.
type CSRFile struct {
	mstatus  uint64
	mie      uint64
	mtvec    uint64
	mscratch uint64
	mepc     uint64
	mcause   uint64
	uepc     uint64
}

// NewCSRFile creates a CSR file in its reset state.
func NewCSRFile() *CSRFile {
	return &CSRFile{}
}

// ReadCSR returns the value of a CSR.
func (c *CSRFile) ReadCSR(addr uint16) uint64 {
	switch addr {
	case CSRMstatus:
		return c.mstatus
	case CSRMie:
		return c.mie
	case CSRMtvec:
		return c.mtvec
	case CSRMscratch:
		return c.mscratch
	case CSRMepc:
		return c.mepc
	case CSRMcause:
		return c.mcause
	case CSRUepc:
		return c.uepc
	}
	return 0
}

// WriteCSR sets the value of a CSR.
func (c *CSRFile) WriteCSR(addr uint16, value uint64) {
	switch addr {
	case CSRMstatus:
		c.mstatus = value & (MstatusMIE | MstatusMPIE)
	case CSRMie:
		c.mie = value
	case CSRMtvec:
		c.mtvec = value &^ 0x3
	case CSRMscratch:
		c.mscratch = value
	case CSRMepc:
		c.mepc = value &^ 0x1
	case CSRMcause:
		c.mcause = value
	case CSRUepc:
		c.uepc = value &^ 0x1
	}
}

// TrapVector returns the address traps jump to.
func (c *CSRFile) TrapVector() uint64 {
	return c.mtvec
}

// InterruptEnabled reports whether external interrupts are taken.
func (c *CSRFile) InterruptEnabled() bool {
	return c.mstatus&MstatusMIE != 0 && c.mie&MieMEIE != 0
}

// Trap records a trap taken at pc.
func (c *CSRFile) Trap(pc, cause uint64) {
	c.mepc = pc
	c.mcause = cause
	if c.mstatus&MstatusMIE != 0 {
		c.mstatus |= MstatusMPIE
	} else {
		c.mstatus &^= MstatusMPIE
	}
	c.mstatus &^= MstatusMIE
}

// MRet restores the interrupt enable saved by the last trap.
func (c *CSRFile) MRet() {
	if c.mstatus&MstatusMPIE != 0 {
		c.mstatus |= MstatusMIE
	} else {
		c.mstatus &^= MstatusMIE
	}
	c.mstatus |= MstatusMPIE
}

// Reset clears all CSRs.
func (c *CSRFile) Reset() {
	*c = CSRFile{}
}
