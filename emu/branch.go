package emu

import "github.com/sarchlab/riversim/insts"

// BranchUnit implements RISC-V control transfers.
type BranchUnit struct {
	regFile *RegFile
}

// NewBranchUnit creates a new BranchUnit connected to the given register file.
func NewBranchUnit(regFile *RegFile) *BranchUnit {
	return &BranchUnit{regFile: regFile}
}

// Taken evaluates a conditional branch.
func Taken(op insts.Op, a, b uint64) bool {
	switch op {
	case insts.OpBEQ:
		return a == b
	case insts.OpBNE:
		return a != b
	case insts.OpBLT:
		return int64(a) < int64(b)
	case insts.OpBGE:
		return int64(a) >= int64(b)
	case insts.OpBLTU:
		return a < b
	case insts.OpBGEU:
		return a >= b
	}
	return false
}

// Branch resolves a conditional branch and updates the PC.
func (b *BranchUnit) Branch(inst *insts.Instruction) {
	a := b.regFile.ReadReg(inst.Rs1)
	c := b.regFile.ReadReg(inst.Rs2)
	if Taken(inst.Op, a, c) {
		b.regFile.PC = uint64(int64(b.regFile.PC) + inst.Imm)
		return
	}
	b.regFile.PC += 4
}

// JAL saves the return address to rd and jumps PC-relative.
func (b *BranchUnit) JAL(inst *insts.Instruction) {
	ret := b.regFile.PC + 4
	b.regFile.PC = uint64(int64(b.regFile.PC) + inst.Imm)
	b.regFile.WriteReg(inst.Rd, ret)
}

// JALR saves the return address to rd and jumps to rs1 + imm with bit 0
// cleared.
func (b *BranchUnit) JALR(inst *insts.Instruction) {
	ret := b.regFile.PC + 4
	target := (b.regFile.ReadReg(inst.Rs1) + uint64(inst.Imm)) &^ 1
	b.regFile.PC = target
	b.regFile.WriteReg(inst.Rd, ret)
}
