package emu

import (
	"math/bits"

	"github.com/sarchlab/riversim/insts"
)

// ALU implements RV64IM arithmetic and logic operations.
type ALU struct {
	regFile *RegFile
}

// NewALU creates a new ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

// Execute computes the result of a register-register or register-immediate
// operation and writes it to rd. It reports false for operations it does not
// handle.
func (a *ALU) Execute(inst *insts.Instruction) bool {
	op1 := a.regFile.ReadReg(inst.Rs1)
	op2 := a.regFile.ReadReg(inst.Rs2)
	if inst.Format == insts.FormatI {
		op2 = uint64(inst.Imm)
	}

	result, ok := Compute(inst.Op, op1, op2)
	if ok {
		a.regFile.WriteReg(inst.Rd, result)
	}
	return ok
}

// Compute evaluates an integer operation on two operand values.
func Compute(op insts.Op, op1, op2 uint64) (uint64, bool) {
	sh64 := uint(op2 & 0x3F)
	sh32 := uint(op2 & 0x1F)

	switch op {
	case insts.OpADD, insts.OpADDI:
		return op1 + op2, true
	case insts.OpSUB:
		return op1 - op2, true
	case insts.OpAND, insts.OpANDI:
		return op1 & op2, true
	case insts.OpOR, insts.OpORI:
		return op1 | op2, true
	case insts.OpXOR, insts.OpXORI:
		return op1 ^ op2, true
	case insts.OpSLL, insts.OpSLLI:
		return op1 << sh64, true
	case insts.OpSRL, insts.OpSRLI:
		return op1 >> sh64, true
	case insts.OpSRA, insts.OpSRAI:
		return uint64(int64(op1) >> sh64), true
	case insts.OpSLT, insts.OpSLTI:
		return boolToU64(int64(op1) < int64(op2)), true
	case insts.OpSLTU, insts.OpSLTIU:
		return boolToU64(op1 < op2), true

	case insts.OpADDW, insts.OpADDIW:
		return sext32(uint32(op1 + op2)), true
	case insts.OpSUBW:
		return sext32(uint32(op1 - op2)), true
	case insts.OpSLLW, insts.OpSLLIW:
		return sext32(uint32(op1) << sh32), true
	case insts.OpSRLW, insts.OpSRLIW:
		return sext32(uint32(op1) >> sh32), true
	case insts.OpSRAW, insts.OpSRAIW:
		return uint64(int64(int32(uint32(op1)) >> sh32)), true
	}

	return MulDiv(op, op1, op2)
}

// MulDiv evaluates an M-extension operation with RISC-V edge-case results.
func MulDiv(op insts.Op, op1, op2 uint64) (uint64, bool) {
	switch op {
	case insts.OpMUL:
		return op1 * op2, true
	case insts.OpMULH:
		hi, _ := bits.Mul64(op1, op2)
		if int64(op1) < 0 {
			hi -= op2
		}
		if int64(op2) < 0 {
			hi -= op1
		}
		return hi, true
	case insts.OpMULHSU:
		hi, _ := bits.Mul64(op1, op2)
		if int64(op1) < 0 {
			hi -= op2
		}
		return hi, true
	case insts.OpMULHU:
		hi, _ := bits.Mul64(op1, op2)
		return hi, true
	case insts.OpMULW:
		return sext32(uint32(op1) * uint32(op2)), true

	case insts.OpDIV:
		return divSigned(int64(op1), int64(op2), false), true
	case insts.OpREM:
		return divSigned(int64(op1), int64(op2), true), true
	case insts.OpDIVU:
		if op2 == 0 {
			return ^uint64(0), true
		}
		return op1 / op2, true
	case insts.OpREMU:
		if op2 == 0 {
			return op1, true
		}
		return op1 % op2, true

	case insts.OpDIVW:
		return sext32(uint32(divSigned(int64(int32(op1)), int64(int32(op2)), false))), true
	case insts.OpREMW:
		return sext32(uint32(divSigned(int64(int32(op1)), int64(int32(op2)), true))), true
	case insts.OpDIVUW:
		if uint32(op2) == 0 {
			return ^uint64(0), true
		}
		return sext32(uint32(op1) / uint32(op2)), true
	case insts.OpREMUW:
		if uint32(op2) == 0 {
			return sext32(uint32(op1)), true
		}
		return sext32(uint32(op1) % uint32(op2)), true
	}

	return 0, false
}

// divSigned handles 64-bit signed division. 32-bit callers pass
// sign-extended operands, so the 32-bit overflow case never overflows here
// and the truncated result is already correct.
func divSigned(a, b int64, rem bool) uint64 {
	switch {
	case b == 0 && rem:
		return uint64(a)
	case b == 0:
		return ^uint64(0)
	case b == -1 && a == -1<<63:
		if rem {
			return 0
		}
		return uint64(a)
	case rem:
		return uint64(a % b)
	default:
		return uint64(a / b)
	}
}

func sext32(v uint32) uint64 {
	return uint64(int64(int32(v)))
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
