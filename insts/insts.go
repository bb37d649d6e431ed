// Package insts provides RISC-V instruction definitions, decoding and
// encoding.
//
// This package covers the RV64I base integer set, the M extension, Zicsr and
// the privileged return/system opcodes used by the core:
//   - Register-register (R): ADD, SUB, SLL, ..., MUL, DIV, REM and W forms
//   - Immediate (I): ADDI, ..., loads, JALR, CSR access, FENCE
//   - Store (S), Branch (SB), Upper immediate (U) and Jump (UJ)
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x02A08093) // addi x1, x1, 42
//	fmt.Printf("Op: %v, Rd: %d, Rs1: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Rs1, inst.Imm)
package insts

// ImmI returns the sign-extended I-type immediate.
func ImmI(word uint32) int64 {
	return int64(int32(word) >> 20)
}

// ImmS returns the sign-extended S-type immediate.
func ImmS(word uint32) int64 {
	v := uint32(int32(word&0xFE000000)>>20) | (word>>7)&0x1F
	return int64(int32(v))
}

// ImmB returns the sign-extended SB-type branch offset.
func ImmB(word uint32) int64 {
	v := uint32(int32(word&0x80000000)>>19) |
		(word&0x80)<<4 |
		(word>>20)&0x7E0 |
		(word>>7)&0x1E
	return int64(int32(v))
}

// ImmU returns the sign-extended U-type immediate (already shifted by 12).
func ImmU(word uint32) int64 {
	return int64(int32(word & 0xFFFFF000))
}

// ImmJ returns the sign-extended UJ-type jump offset.
func ImmJ(word uint32) int64 {
	v := uint32(int32(word&0x80000000)>>11) |
		word&0xFF000 |
		(word>>9)&0x800 |
		(word>>20)&0x7FE
	return int64(int32(v))
}

// SignExtend sign-extends the low width bits of v.
func SignExtend(v uint64, width uint) uint64 {
	shift := 64 - width
	return uint64(int64(v<<shift) >> shift)
}

// IsCompressed reports whether the low half-word starts a 16-bit encoding.
func IsCompressed(word uint32) bool {
	return word&0x3 != 0x3
}
