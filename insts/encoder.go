package insts

import "fmt"

type encoding struct {
	format Format
	opcode uint32
	funct3 uint32
	funct7 uint32
	word   uint32 // fixed encodings (system opcodes)
}

var encodings = map[Op]encoding{
	OpLUI:   {format: FormatU, opcode: opcodeLUI},
	OpAUIPC: {format: FormatU, opcode: opcodeAUIPC},
	OpJAL:   {format: FormatUJ, opcode: opcodeJAL},
	OpJALR:  {format: FormatI, opcode: opcodeJALR},

	OpBEQ:  {format: FormatSB, opcode: opcodeBranch, funct3: 0},
	OpBNE:  {format: FormatSB, opcode: opcodeBranch, funct3: 1},
	OpBLT:  {format: FormatSB, opcode: opcodeBranch, funct3: 4},
	OpBGE:  {format: FormatSB, opcode: opcodeBranch, funct3: 5},
	OpBLTU: {format: FormatSB, opcode: opcodeBranch, funct3: 6},
	OpBGEU: {format: FormatSB, opcode: opcodeBranch, funct3: 7},

	OpLB:  {format: FormatI, opcode: opcodeLoad, funct3: 0},
	OpLH:  {format: FormatI, opcode: opcodeLoad, funct3: 1},
	OpLW:  {format: FormatI, opcode: opcodeLoad, funct3: 2},
	OpLD:  {format: FormatI, opcode: opcodeLoad, funct3: 3},
	OpLBU: {format: FormatI, opcode: opcodeLoad, funct3: 4},
	OpLHU: {format: FormatI, opcode: opcodeLoad, funct3: 5},
	OpLWU: {format: FormatI, opcode: opcodeLoad, funct3: 6},

	OpSB: {format: FormatS, opcode: opcodeStore, funct3: 0},
	OpSH: {format: FormatS, opcode: opcodeStore, funct3: 1},
	OpSW: {format: FormatS, opcode: opcodeStore, funct3: 2},
	OpSD: {format: FormatS, opcode: opcodeStore, funct3: 3},

	OpADDI:  {format: FormatI, opcode: opcodeOpImm, funct3: 0},
	OpSLTI:  {format: FormatI, opcode: opcodeOpImm, funct3: 2},
	OpSLTIU: {format: FormatI, opcode: opcodeOpImm, funct3: 3},
	OpXORI:  {format: FormatI, opcode: opcodeOpImm, funct3: 4},
	OpORI:   {format: FormatI, opcode: opcodeOpImm, funct3: 6},
	OpANDI:  {format: FormatI, opcode: opcodeOpImm, funct3: 7},
	OpSLLI:  {format: FormatI, opcode: opcodeOpImm, funct3: 1},
	OpSRLI:  {format: FormatI, opcode: opcodeOpImm, funct3: 5},
	OpSRAI:  {format: FormatI, opcode: opcodeOpImm, funct3: 5, funct7: funct7Alt},

	OpADD:  {format: FormatR, opcode: opcodeOp, funct3: 0},
	OpSUB:  {format: FormatR, opcode: opcodeOp, funct3: 0, funct7: funct7Alt},
	OpSLL:  {format: FormatR, opcode: opcodeOp, funct3: 1},
	OpSLT:  {format: FormatR, opcode: opcodeOp, funct3: 2},
	OpSLTU: {format: FormatR, opcode: opcodeOp, funct3: 3},
	OpXOR:  {format: FormatR, opcode: opcodeOp, funct3: 4},
	OpSRL:  {format: FormatR, opcode: opcodeOp, funct3: 5},
	OpSRA:  {format: FormatR, opcode: opcodeOp, funct3: 5, funct7: funct7Alt},
	OpOR:   {format: FormatR, opcode: opcodeOp, funct3: 6},
	OpAND:  {format: FormatR, opcode: opcodeOp, funct3: 7},

	OpADDIW: {format: FormatI, opcode: opcodeOpImm32, funct3: 0},
	OpSLLIW: {format: FormatI, opcode: opcodeOpImm32, funct3: 1},
	OpSRLIW: {format: FormatI, opcode: opcodeOpImm32, funct3: 5},
	OpSRAIW: {format: FormatI, opcode: opcodeOpImm32, funct3: 5, funct7: funct7Alt},
	OpADDW:  {format: FormatR, opcode: opcodeOp32, funct3: 0},
	OpSUBW:  {format: FormatR, opcode: opcodeOp32, funct3: 0, funct7: funct7Alt},
	OpSLLW:  {format: FormatR, opcode: opcodeOp32, funct3: 1},
	OpSRLW:  {format: FormatR, opcode: opcodeOp32, funct3: 5},
	OpSRAW:  {format: FormatR, opcode: opcodeOp32, funct3: 5, funct7: funct7Alt},

	OpMUL:    {format: FormatR, opcode: opcodeOp, funct3: 0, funct7: funct7MulDiv},
	OpMULH:   {format: FormatR, opcode: opcodeOp, funct3: 1, funct7: funct7MulDiv},
	OpMULHSU: {format: FormatR, opcode: opcodeOp, funct3: 2, funct7: funct7MulDiv},
	OpMULHU:  {format: FormatR, opcode: opcodeOp, funct3: 3, funct7: funct7MulDiv},
	OpDIV:    {format: FormatR, opcode: opcodeOp, funct3: 4, funct7: funct7MulDiv},
	OpDIVU:   {format: FormatR, opcode: opcodeOp, funct3: 5, funct7: funct7MulDiv},
	OpREM:    {format: FormatR, opcode: opcodeOp, funct3: 6, funct7: funct7MulDiv},
	OpREMU:   {format: FormatR, opcode: opcodeOp, funct3: 7, funct7: funct7MulDiv},
	OpMULW:   {format: FormatR, opcode: opcodeOp32, funct3: 0, funct7: funct7MulDiv},
	OpDIVW:   {format: FormatR, opcode: opcodeOp32, funct3: 4, funct7: funct7MulDiv},
	OpDIVUW:  {format: FormatR, opcode: opcodeOp32, funct3: 5, funct7: funct7MulDiv},
	OpREMW:   {format: FormatR, opcode: opcodeOp32, funct3: 6, funct7: funct7MulDiv},
	OpREMUW:  {format: FormatR, opcode: opcodeOp32, funct3: 7, funct7: funct7MulDiv},

	OpFENCE:  {format: FormatI, opcode: opcodeMiscMem, funct3: 0},
	OpFENCEI: {format: FormatI, opcode: opcodeMiscMem, funct3: 1},
	OpECALL:  {word: wordECALL},
	OpEBREAK: {word: wordEBREAK},
	OpURET:   {word: wordURET},
	OpMRET:   {word: wordMRET},
	OpWFI:    {word: wordWFI},

	OpCSRRW:  {format: FormatI, opcode: opcodeSystem, funct3: 1},
	OpCSRRS:  {format: FormatI, opcode: opcodeSystem, funct3: 2},
	OpCSRRC:  {format: FormatI, opcode: opcodeSystem, funct3: 3},
	OpCSRRWI: {format: FormatI, opcode: opcodeSystem, funct3: 5},
	OpCSRRSI: {format: FormatI, opcode: opcodeSystem, funct3: 6},
	OpCSRRCI: {format: FormatI, opcode: opcodeSystem, funct3: 7},
}

// Encode assembles an instruction word. For I-type shifts imm is the shift
// amount; for CSR instructions imm is the CSR address; for U-type imm is the
// full value whose low 12 bits are dropped. Branch and jump offsets are in
// bytes.
func Encode(op Op, rd, rs1, rs2 uint8, imm int64) (uint32, error) {
	enc, ok := encodings[op]
	if !ok {
		return 0, fmt.Errorf("cannot encode %v", op)
	}
	if enc.word != 0 {
		return enc.word, nil
	}

	base := enc.opcode | enc.funct3<<12
	u := uint32(imm)
	switch enc.format {
	case FormatR:
		return base | enc.funct7<<25 | uint32(rd&0x1F)<<7 | uint32(rs1&0x1F)<<15 | uint32(rs2&0x1F)<<20, nil
	case FormatI:
		if imm < -2048 || imm > 4095 {
			return 0, fmt.Errorf("%v: immediate %d out of range", op, imm)
		}
		if op == OpSRAI || op == OpSRAIW {
			u |= funct7Alt << 5
		}
		return base | uint32(rd&0x1F)<<7 | uint32(rs1&0x1F)<<15 | (u&0xFFF)<<20, nil
	case FormatS:
		if imm < -2048 || imm > 2047 {
			return 0, fmt.Errorf("%v: offset %d out of range", op, imm)
		}
		return base | (u&0x1F)<<7 | uint32(rs1&0x1F)<<15 | uint32(rs2&0x1F)<<20 | (u>>5&0x7F)<<25, nil
	case FormatSB:
		if imm&1 != 0 || imm < -4096 || imm > 4094 {
			return 0, fmt.Errorf("%v: offset %d invalid", op, imm)
		}
		return base | (u>>11&1)<<7 | (u>>1&0xF)<<8 | uint32(rs1&0x1F)<<15 | uint32(rs2&0x1F)<<20 |
			(u>>5&0x3F)<<25 | (u>>12&1)<<31, nil
	case FormatU:
		return enc.opcode | uint32(rd&0x1F)<<7 | u&0xFFFFF000, nil
	case FormatUJ:
		if imm&1 != 0 || imm < -(1<<20) || imm >= 1<<20 {
			return 0, fmt.Errorf("%v: offset %d invalid", op, imm)
		}
		return enc.opcode | uint32(rd&0x1F)<<7 | u&0xFF000 | (u>>11&1)<<20 | (u>>1&0x3FF)<<21 | (u>>20&1)<<31, nil
	}
	return 0, fmt.Errorf("cannot encode %v", op)
}

// MustEncode is like Encode but panics on error. It is intended for building
// test programs.
func MustEncode(op Op, rd, rs1, rs2 uint8, imm int64) uint32 {
	word, err := Encode(op, rd, rs1, rs2, imm)
	if err != nil {
		panic(err)
	}
	return word
}
