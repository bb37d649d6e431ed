package pipeline

// BTBEntry maps the pc of a jump to its last observed target.
type BTBEntry struct {
	Valid bool
	PC    uint64
	NPC   uint64
	// Exec is set when the entry was written by the execute stage rather
	// than by the pre-decoder.
	Exec bool
}

// BTBInputs are the signals sampled by the BTB in one cycle.
type BTBInputs struct {
	Flush bool

	Write    bool
	WritePC  uint64
	WriteNPC uint64
	Exec     bool

	// StartPC is the first address of the predicted sequence.
	StartPC uint64
}

// BTBOutputs is the predicted fetch sequence. NPC[0] is the start pc and
// each further element is the predicted successor of the previous one.
type BTBOutputs struct {
	NPC  []uint64
	Hit  []bool
	Exec []bool
}

// BTB is a small fully associative branch target buffer kept in
// most-recently-written order.
type BTB struct {
	r, v  []BTBEntry
	depth int

	wrote bool

	asyncReset   bool
	resetPending bool
}

// NewBTB creates a BTB with size entries producing depth predicted
// addresses per cycle.
func NewBTB(size, depth int, asyncReset bool) *BTB {
	return &BTB{
		r:          make([]BTBEntry, size),
		v:          make([]BTBEntry, size),
		depth:      depth,
		asyncReset: asyncReset,
	}
}

// Entries returns a copy of the committed entries, newest first.
func (b *BTB) Entries() []BTBEntry {
	out := make([]BTBEntry, len(b.r))
	copy(out, b.r)
	return out
}

// Lookup returns the predicted target of pc, falling back to pc+4.
func (b *BTB) Lookup(pc uint64) (npc uint64, hit, exec bool) {
	for _, e := range b.r {
		if e.Valid && e.PC == pc {
			return e.NPC, true, e.Exec
		}
	}
	return pc + 4, false, false
}

// Comb computes the predicted sequence and the next BTB contents.
func (b *BTB) Comb(in BTBInputs) BTBOutputs {
	out := BTBOutputs{
		NPC:  make([]uint64, b.depth),
		Hit:  make([]bool, b.depth),
		Exec: make([]bool, b.depth),
	}
	out.NPC[0] = in.StartPC
	out.Exec[0] = in.Exec
	for i := 1; i < b.depth; i++ {
		out.NPC[i], out.Hit[i], out.Exec[i] = b.Lookup(out.NPC[i-1])
	}

	copy(b.v, b.r)
	b.wrote = false
	if in.Write && b.shouldUpdate(in) {
		b.insert(in)
		b.wrote = true
	}

	if in.Flush {
		for i := range b.v {
			b.v[i] = BTBEntry{}
		}
	}

	return out
}

// shouldUpdate rejects a pair that is already resident and a pre-decoded
// write over an entry confirmed by the execute stage.
func (b *BTB) shouldUpdate(in BTBInputs) bool {
	for _, e := range b.r {
		if !e.Valid || e.PC != in.WritePC {
			continue
		}
		if e.Exec && !in.Exec {
			return false
		}
		if e.NPC == in.WriteNPC && e.Exec == in.Exec {
			return false
		}
	}
	return true
}

// insert places the new entry at the front. Older entries shift down by one
// until the slot that held the same pc, which is overwritten; without such a
// slot the oldest entry falls off the end.
func (b *BTB) insert(in BTBInputs) {
	b.v[0] = BTBEntry{Valid: true, PC: in.WritePC, NPC: in.WriteNPC, Exec: in.Exec}

	shifting := true
	for i := 1; i < len(b.r); i++ {
		prev := b.r[i-1]
		if prev.Valid && prev.PC == in.WritePC {
			shifting = false
		}
		if shifting {
			b.v[i] = prev
		} else {
			b.v[i] = b.r[i]
		}
	}
}

// Wrote reports whether the last Comb inserted an entry.
func (b *BTB) Wrote() bool {
	return b.wrote
}

// Commit latches the next BTB contents.
func (b *BTB) Commit() {
	if b.resetPending {
		b.clear()
		b.resetPending = false
		return
	}
	copy(b.r, b.v)
}

// Tick runs one clock cycle.
func (b *BTB) Tick(in BTBInputs) BTBOutputs {
	out := b.Comb(in)
	b.Commit()
	return out
}

// Reset invalidates all entries.
func (b *BTB) Reset() {
	if b.asyncReset {
		b.clear()
		return
	}
	b.resetPending = true
}

func (b *BTB) clear() {
	for i := range b.r {
		b.r[i] = BTBEntry{}
		b.v[i] = BTBEntry{}
	}
}
