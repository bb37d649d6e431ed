package emu

import "github.com/sarchlab/riversim/insts"

// LoadStoreUnit implements RISC-V load and store operations.
type LoadStoreUnit struct {
	regFile *RegFile
	memory  *Memory
}

// NewLoadStoreUnit creates a new LoadStoreUnit connected to the given
// register file and memory.
func NewLoadStoreUnit(regFile *RegFile, memory *Memory) *LoadStoreUnit {
	return &LoadStoreUnit{
		regFile: regFile,
		memory:  memory,
	}
}

// Load performs a load: rd = extend(mem[rs1 + imm]).
func (lsu *LoadStoreUnit) Load(inst *insts.Instruction) {
	addr := lsu.regFile.ReadReg(inst.Rs1) + uint64(inst.Imm)
	lsu.regFile.WriteReg(inst.Rd, LoadValue(lsu.memory, addr, inst.MemSize, inst.Unsigned))
}

// Store performs a store: mem[rs1 + imm] = rs2.
func (lsu *LoadStoreUnit) Store(inst *insts.Instruction) {
	addr := lsu.regFile.ReadReg(inst.Rs1) + uint64(inst.Imm)
	lsu.memory.Write(addr, 1<<inst.MemSize, lsu.regFile.ReadReg(inst.Rs2))
}

// LoadValue reads 1<<sizeLog2 bytes and sign- or zero-extends them.
func LoadValue(m *Memory, addr uint64, sizeLog2 uint8, unsigned bool) uint64 {
	size := 1 << sizeLog2
	v := m.Read(addr, size)
	if unsigned || size == 8 {
		return v
	}
	return insts.SignExtend(v, uint(8*size))
}
