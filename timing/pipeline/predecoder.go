package pipeline

import "github.com/sarchlab/riversim/insts"

const (
	opcodeJAL    = 0x6F
	opcodeBranch = 0x63
)

// PredecodedJump is a jump found in fetched memory before execution.
type PredecodedJump struct {
	Jump bool
	PC   uint64
	NPC  uint64
}

// Predecode inspects one instruction word fetched from pc. JAL is always a
// jump; a conditional branch is predicted taken only for a backward offset.
func Predecode(pc uint64, word uint32) PredecodedJump {
	pd := PredecodedJump{PC: pc, NPC: pc + 4}

	switch word & 0x7F {
	case opcodeJAL:
		pd.Jump = true
		pd.NPC = pc + uint64(insts.ImmJ(word))
	case opcodeBranch:
		if word>>31 != 0 {
			pd.Jump = true
			pd.NPC = pc + uint64(insts.ImmB(word))
		}
	}

	return pd
}

// PredecodeLine pre-decodes both 32-bit instructions of a 64-bit fetch
// response at addr. The first slot takes priority for a BTB write.
func PredecodeLine(addr, data uint64) [2]PredecodedJump {
	base := addr &^ 0x7
	return [2]PredecodedJump{
		Predecode(base, uint32(data)),
		Predecode(base+4, uint32(data>>32)),
	}
}
