package pipeline

// BranchPredictorConfig holds configuration for the branch predictor.
type BranchPredictorConfig struct {
	// BTBSize is the number of BTB entries. Default is 8.
	BTBSize int
	// Depth is the length of the predicted fetch sequence. Default is 5.
	Depth int
	// AsyncReset selects the asynchronous reset discipline.
	AsyncReset bool
}

// DefaultBranchPredictorConfig returns a default configuration.
func DefaultBranchPredictorConfig() BranchPredictorConfig {
	return BranchPredictorConfig{
		BTBSize: 8,
		Depth:   5,
	}
}

// BranchPredictorStats holds statistics for the branch predictor.
type BranchPredictorStats struct {
	// Requests is the number of cycles a fetch address was produced.
	Requests uint64
	// Collisions is the number of cycles every candidate was in flight.
	Collisions uint64
	// BTBHits is the number of predicted addresses taken from the BTB.
	BTBHits uint64
	// BTBMisses is the number of predicted addresses that fell back to pc+4.
	BTBMisses uint64
	// ExecWrites is the number of BTB insertions from executed jumps.
	ExecWrites uint64
	// PredecodeWrites is the number of BTB insertions from the pre-decoder.
	PredecodeWrites uint64
}

// BTBHitRate returns the BTB hit rate as a percentage.
func (s BranchPredictorStats) BTBHitRate() float64 {
	total := s.BTBHits + s.BTBMisses
	if total == 0 {
		return 0
	}
	return float64(s.BTBHits) / float64(total) * 100
}

// BranchPredictorInputs are the signals sampled by the predictor in one
// cycle.
type BranchPredictorInputs struct {
	Flush bool

	// StartPC is the execute stage's next pc.
	StartPC uint64

	// ExecJump reports a jump retired by the execute stage.
	ExecJump bool
	ExecPC   uint64
	ExecNPC  uint64

	// RespValid carries a memory response to the pre-decoder.
	RespValid bool
	RespAddr  uint64
	RespData  uint64

	// InFlight lists pcs already in the fetch or decode pipeline.
	InFlight []uint64
}

// BranchPredictorOutputs is the next fetch request.
type BranchPredictorOutputs struct {
	Valid bool
	PC    uint64
}

type predictorEvents struct {
	request   bool
	collision bool
	hits      uint64
	misses    uint64
	execWrite bool
	pdWrite   bool
}

// BranchPredictor chooses the next address to fetch from a BTB-predicted
// sequence, skipping addresses that are already being fetched or decoded.
type BranchPredictor struct {
	btb *BTB
	ev  predictorEvents

	stats BranchPredictorStats
}

// NewBranchPredictor creates a new branch predictor with the given
// configuration.
func NewBranchPredictor(config BranchPredictorConfig) *BranchPredictor {
	if config.BTBSize <= 0 {
		config.BTBSize = 8
	}
	if config.Depth <= 0 {
		config.Depth = 5
	}

	return &BranchPredictor{
		btb: NewBTB(config.BTBSize, config.Depth, config.AsyncReset),
	}
}

// BTB returns the underlying branch target buffer.
func (bp *BranchPredictor) BTB() *BTB {
	return bp.btb
}

// Comb computes the next fetch address and the BTB update for this cycle.
func (bp *BranchPredictor) Comb(in BranchPredictorInputs) BranchPredictorOutputs {
	bp.ev = predictorEvents{}

	btbIn := BTBInputs{
		Flush:    in.Flush,
		StartPC:  alignPC(in.StartPC),
		Write:    in.ExecJump,
		WritePC:  alignPC(in.ExecPC),
		WriteNPC: alignPC(in.ExecNPC),
		Exec:     in.ExecJump,
	}
	if !in.ExecJump && in.RespValid {
		for _, pd := range PredecodeLine(in.RespAddr, in.RespData) {
			if pd.Jump {
				btbIn.Write = true
				btbIn.WritePC = pd.PC
				btbIn.WriteNPC = alignPC(pd.NPC)
				break
			}
		}
	}

	seq := bp.btb.Comb(btbIn)
	if bp.btb.Wrote() {
		bp.ev.execWrite = btbIn.Exec
		bp.ev.pdWrite = !btbIn.Exec
	}

	out := BranchPredictorOutputs{}
	// The shallowest candidate not already in flight wins, not the deepest.
	for i, pc := range seq.NPC {
		if i > 0 {
			if seq.Hit[i] {
				bp.ev.hits++
			} else {
				bp.ev.misses++
			}
		}
		if !contains(in.InFlight, pc) {
			out = BranchPredictorOutputs{Valid: true, PC: pc}
			break
		}
	}

	bp.ev.request = out.Valid
	bp.ev.collision = !out.Valid
	return out
}

// Commit latches the BTB.
func (bp *BranchPredictor) Commit() {
	bp.btb.Commit()

	if bp.ev.request {
		bp.stats.Requests++
	}
	if bp.ev.collision {
		bp.stats.Collisions++
	}
	bp.stats.BTBHits += bp.ev.hits
	bp.stats.BTBMisses += bp.ev.misses
	if bp.ev.execWrite {
		bp.stats.ExecWrites++
	}
	if bp.ev.pdWrite {
		bp.stats.PredecodeWrites++
	}
	bp.ev = predictorEvents{}
}

// Tick runs one clock cycle.
func (bp *BranchPredictor) Tick(in BranchPredictorInputs) BranchPredictorOutputs {
	out := bp.Comb(in)
	bp.Commit()
	return out
}

// Stats returns the branch predictor statistics.
func (bp *BranchPredictor) Stats() BranchPredictorStats {
	return bp.stats
}

// Reset clears the BTB and statistics.
func (bp *BranchPredictor) Reset() {
	bp.btb.Reset()
	bp.ev = predictorEvents{}
	bp.stats = BranchPredictorStats{}
}

func alignPC(pc uint64) uint64 {
	return pc &^ 0x3
}

func contains(list []uint64, pc uint64) bool {
	for _, p := range list {
		if p == pc {
			return true
		}
	}
	return false
}
