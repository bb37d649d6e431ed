package insts

// Op represents a RISC-V operation.
type Op uint16

// RISC-V operations.
const (
	OpUnknown Op = iota
	OpLUI
	OpAUIPC
	OpJAL
	OpJALR
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpLB
	OpLH
	OpLW
	OpLD
	OpLBU
	OpLHU
	OpLWU
	OpSB
	OpSH
	OpSW
	OpSD
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND
	OpADDIW
	OpSLLIW
	OpSRLIW
	OpSRAIW
	OpADDW
	OpSUBW
	OpSLLW
	OpSRLW
	OpSRAW
	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU
	OpMULW
	OpDIVW
	OpDIVUW
	OpREMW
	OpREMUW
	OpFENCE
	OpFENCEI
	OpECALL
	OpEBREAK
	OpURET
	OpMRET
	OpWFI
	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpCSRRWI
	OpCSRRSI
	OpCSRRCI

	numOps
)

// Format represents an instruction encoding class.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota // Not a recognized encoding
	FormatR                     // Register-register
	FormatI                     // Immediate, loads, JALR, system
	FormatS                     // Store
	FormatSB                    // Conditional branch
	FormatU                     // Upper immediate
	FormatUJ                    // Jump and link
)

// Major opcodes (bits 6:0).
const (
	opcodeLoad    uint32 = 0x03
	opcodeMiscMem uint32 = 0x0F
	opcodeOpImm   uint32 = 0x13
	opcodeAUIPC   uint32 = 0x17
	opcodeOpImm32 uint32 = 0x1B
	opcodeStore   uint32 = 0x23
	opcodeOp      uint32 = 0x33
	opcodeLUI     uint32 = 0x37
	opcodeOp32    uint32 = 0x3B
	opcodeBranch  uint32 = 0x63
	opcodeJALR    uint32 = 0x67
	opcodeJAL     uint32 = 0x6F
	opcodeSystem  uint32 = 0x73
	funct7MulDiv  uint32 = 0x01
	funct7Alt     uint32 = 0x20
	wordECALL     uint32 = 0x00000073
	wordEBREAK    uint32 = 0x00100073
	wordURET      uint32 = 0x00200073
	wordMRET      uint32 = 0x30200073
	wordWFI       uint32 = 0x10500073
	funct6SRAI    uint32 = 0x10
)

// Instruction represents a decoded RISC-V instruction.
type Instruction struct {
	Op     Op     // Operation
	Format Format // Encoding class
	Word   uint32 // Raw instruction word

	Rd  uint8 // Destination register
	Rs1 uint8 // First source register (zimm for CSR immediate forms)
	Rs2 uint8 // Second source register

	// Imm is the sign-extended immediate of the encoding class.
	Imm int64
	// CSR is the CSR address for Zicsr instructions.
	CSR uint16

	RV32     bool  // 32-bit W operation, result sign-extended from bit 31
	Unsigned bool  // Unsigned compare, load, multiply or divide variant
	MemSize  uint8 // log2 of the access size in bytes for loads and stores

	// Unsupported is set for encodings outside the implemented subset.
	Unsupported bool
}

// IsLoad reports whether the instruction reads data memory.
func (i *Instruction) IsLoad() bool {
	return i.Op >= OpLB && i.Op <= OpLWU
}

// IsStore reports whether the instruction writes data memory.
func (i *Instruction) IsStore() bool {
	return i.Op >= OpSB && i.Op <= OpSD
}

// IsBranch reports whether the instruction is a conditional branch.
func (i *Instruction) IsBranch() bool {
	return i.Op >= OpBEQ && i.Op <= OpBGEU
}

// IsMul reports whether the instruction is executed by the multiplier.
func (i *Instruction) IsMul() bool {
	return (i.Op >= OpMUL && i.Op <= OpMULHU) || i.Op == OpMULW
}

// IsDiv reports whether the instruction is executed by the divider.
func (i *Instruction) IsDiv() bool {
	return (i.Op >= OpDIV && i.Op <= OpREMU) || (i.Op >= OpDIVW && i.Op <= OpREMUW)
}

// IsCSR reports whether the instruction accesses a CSR.
func (i *Instruction) IsCSR() bool {
	return i.Op >= OpCSRRW && i.Op <= OpCSRRCI
}

// Decoder decodes RISC-V machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RISC-V instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit instruction word.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{
		Op:     OpUnknown,
		Format: FormatUnknown,
		Word:   word,
		Rd:     uint8((word >> 7) & 0x1F),
		Rs1:    uint8((word >> 15) & 0x1F),
		Rs2:    uint8((word >> 20) & 0x1F),
	}

	if IsCompressed(word) {
		inst.Unsupported = true
		return inst
	}

	funct3 := (word >> 12) & 0x7
	funct7 := word >> 25

	switch word & 0x7F {
	case opcodeLUI:
		d.setU(inst, OpLUI)
	case opcodeAUIPC:
		d.setU(inst, OpAUIPC)
	case opcodeJAL:
		inst.Op = OpJAL
		inst.Format = FormatUJ
		inst.Imm = ImmJ(word)
	case opcodeJALR:
		if funct3 == 0 {
			d.setI(inst, OpJALR)
		}
	case opcodeBranch:
		d.decodeBranch(inst, funct3)
	case opcodeLoad:
		d.decodeLoad(inst, funct3)
	case opcodeStore:
		d.decodeStore(inst, funct3)
	case opcodeOpImm:
		d.decodeOpImm(inst, funct3)
	case opcodeOpImm32:
		d.decodeOpImm32(inst, funct3, funct7)
	case opcodeOp:
		d.decodeOp(inst, funct3, funct7)
	case opcodeOp32:
		d.decodeOp32(inst, funct3, funct7)
	case opcodeMiscMem:
		switch funct3 {
		case 0:
			d.setI(inst, OpFENCE)
		case 1:
			d.setI(inst, OpFENCEI)
		}
	case opcodeSystem:
		d.decodeSystem(inst, funct3)
	}

	if inst.Op == OpUnknown {
		inst.Format = FormatUnknown
		inst.Unsupported = true
	}

	return inst
}

func (d *Decoder) setI(inst *Instruction, op Op) {
	inst.Op = op
	inst.Format = FormatI
	inst.Imm = ImmI(inst.Word)
}

func (d *Decoder) setU(inst *Instruction, op Op) {
	inst.Op = op
	inst.Format = FormatU
	inst.Imm = ImmU(inst.Word)
}

func (d *Decoder) setR(inst *Instruction, op Op) {
	inst.Op = op
	inst.Format = FormatR
}

func (d *Decoder) decodeBranch(inst *Instruction, funct3 uint32) {
	ops := [8]Op{OpBEQ, OpBNE, OpUnknown, OpUnknown, OpBLT, OpBGE, OpBLTU, OpBGEU}
	if ops[funct3] == OpUnknown {
		return
	}
	inst.Op = ops[funct3]
	inst.Format = FormatSB
	inst.Imm = ImmB(inst.Word)
	inst.Unsigned = funct3 >= 6
}

func (d *Decoder) decodeLoad(inst *Instruction, funct3 uint32) {
	ops := [8]Op{OpLB, OpLH, OpLW, OpLD, OpLBU, OpLHU, OpLWU, OpUnknown}
	if ops[funct3] == OpUnknown {
		return
	}
	d.setI(inst, ops[funct3])
	inst.MemSize = uint8(funct3 & 0x3)
	inst.Unsigned = funct3 >= 4
}

func (d *Decoder) decodeStore(inst *Instruction, funct3 uint32) {
	if funct3 > 3 {
		return
	}
	inst.Op = [4]Op{OpSB, OpSH, OpSW, OpSD}[funct3]
	inst.Format = FormatS
	inst.Imm = ImmS(inst.Word)
	inst.MemSize = uint8(funct3)
}

func (d *Decoder) decodeOpImm(inst *Instruction, funct3 uint32) {
	funct6 := inst.Word >> 26
	switch funct3 {
	case 0:
		d.setI(inst, OpADDI)
	case 2:
		d.setI(inst, OpSLTI)
	case 3:
		d.setI(inst, OpSLTIU)
		inst.Unsigned = true
	case 4:
		d.setI(inst, OpXORI)
	case 6:
		d.setI(inst, OpORI)
	case 7:
		d.setI(inst, OpANDI)
	case 1:
		if funct6 == 0 {
			d.setI(inst, OpSLLI)
		}
	case 5:
		switch funct6 {
		case 0:
			d.setI(inst, OpSRLI)
		case funct6SRAI:
			d.setI(inst, OpSRAI)
		}
	}
}

func (d *Decoder) decodeOpImm32(inst *Instruction, funct3, funct7 uint32) {
	switch {
	case funct3 == 0:
		d.setI(inst, OpADDIW)
	case funct3 == 1 && funct7 == 0:
		d.setI(inst, OpSLLIW)
	case funct3 == 5 && funct7 == 0:
		d.setI(inst, OpSRLIW)
	case funct3 == 5 && funct7 == funct7Alt:
		d.setI(inst, OpSRAIW)
	}
	inst.RV32 = inst.Op != OpUnknown
}

func (d *Decoder) decodeOp(inst *Instruction, funct3, funct7 uint32) {
	switch funct7 {
	case 0:
		d.setR(inst, [8]Op{OpADD, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpOR, OpAND}[funct3])
		inst.Unsigned = funct3 == 3
	case funct7Alt:
		switch funct3 {
		case 0:
			d.setR(inst, OpSUB)
		case 5:
			d.setR(inst, OpSRA)
		}
	case funct7MulDiv:
		d.setR(inst, [8]Op{OpMUL, OpMULH, OpMULHSU, OpMULHU, OpDIV, OpDIVU, OpREM, OpREMU}[funct3])
		inst.Unsigned = funct3 == 3 || funct3 == 5 || funct3 == 7
	}
}

func (d *Decoder) decodeOp32(inst *Instruction, funct3, funct7 uint32) {
	switch funct7 {
	case 0:
		switch funct3 {
		case 0:
			d.setR(inst, OpADDW)
		case 1:
			d.setR(inst, OpSLLW)
		case 5:
			d.setR(inst, OpSRLW)
		}
	case funct7Alt:
		switch funct3 {
		case 0:
			d.setR(inst, OpSUBW)
		case 5:
			d.setR(inst, OpSRAW)
		}
	case funct7MulDiv:
		ops := [8]Op{OpMULW, OpUnknown, OpUnknown, OpUnknown, OpDIVW, OpDIVUW, OpREMW, OpREMUW}
		if ops[funct3] != OpUnknown {
			d.setR(inst, ops[funct3])
			inst.Unsigned = funct3 == 5 || funct3 == 7
		}
	}
	inst.RV32 = inst.Op != OpUnknown
}

func (d *Decoder) decodeSystem(inst *Instruction, funct3 uint32) {
	if funct3 == 0 {
		switch inst.Word {
		case wordECALL:
			d.setI(inst, OpECALL)
		case wordEBREAK:
			d.setI(inst, OpEBREAK)
		case wordURET:
			d.setI(inst, OpURET)
		case wordMRET:
			d.setI(inst, OpMRET)
		case wordWFI:
			d.setI(inst, OpWFI)
		}
		return
	}

	ops := [8]Op{OpUnknown, OpCSRRW, OpCSRRS, OpCSRRC, OpUnknown, OpCSRRWI, OpCSRRSI, OpCSRRCI}
	if ops[funct3] == OpUnknown {
		return
	}
	d.setI(inst, ops[funct3])
	inst.CSR = uint16(inst.Word >> 20)
}
