// Package emu provides functional RISC-V emulation. It serves as the
// reference model for the cycle-level core.
package emu

// ABI register numbers used by the runtime conventions.
const (
	RegRA uint8 = 1  // Return address
	RegSP uint8 = 2  // Stack pointer
	RegA0 uint8 = 10 // First argument / return value
	RegA1 uint8 = 11
	RegA2 uint8 = 12
	RegA7 uint8 = 17 // Syscall number
)

// RegFile represents the RISC-V integer register file.
// It contains 32 general-purpose registers (x0-x31) and the program
// counter (PC). x0 is hard-wired to zero.
type RegFile struct {
	// X holds general-purpose registers x0-x31.
	X [32]uint64

	// PC is the program counter.
	PC uint64
}

// ReadReg reads a register value. Register 0 and out-of-range indices
// return 0.
func (r *RegFile) ReadReg(reg uint8) uint64 {
	if reg == 0 || reg >= 32 {
		return 0
	}
	return r.X[reg]
}

// WriteReg writes a value to a register. Writes to x0 are ignored.
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	if reg == 0 || reg >= 32 {
		return
	}
	r.X[reg] = value
}
