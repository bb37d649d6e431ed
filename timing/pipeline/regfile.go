package pipeline

// NumRegisters is the number of architectural integer registers.
const NumRegisters = 32

// RegTagBits is the width of a register write tag.
const RegTagBits = 3

// RegTagMask masks a tag to RegTagBits.
const RegTagMask = 1<<RegTagBits - 1

// NextTag returns the tag that follows t.
func NextTag(t uint8) uint8 {
	return (t + 1) & RegTagMask
}

// RegisterEntry is one architectural register with its write tag.
type RegisterEntry struct {
	Value uint64
	Tag   uint8
}

// RegFileWrite is the pipeline write port.
type RegFileWrite struct {
	Enable bool
	Addr   uint8
	Data   uint64
	Tag    uint8
	// InOrder accepts the write only when Tag follows the stored tag.
	InOrder bool
}

// DebugPortRequest is a debug access to the register file. A write only
// happens in a cycle where the pipeline port does not write.
type DebugPortRequest struct {
	Enable bool
	Write  bool
	Addr   uint8
	WData  uint64
}

// RegFileInputs are the signals sampled by the register file in one cycle.
type RegFileInputs struct {
	Write RegFileWrite
	Debug DebugPortRequest
}

// RegFileOutputs are the combinational outputs of the register file.
type RegFileOutputs struct {
	// Ignored is raised when an in-order write is dropped because of a tag
	// mismatch.
	Ignored    bool
	DebugRData uint64
}

// RegFileStatistics counts register file traffic.
type RegFileStatistics struct {
	Writes        uint64
	IgnoredWrites uint64
	DebugWrites   uint64
}

type regFileEvents struct {
	write   bool
	ignored bool
	debug   bool
}

// RegFile is the tagged integer register bank. It has two read ports, a
// tagged pipeline write port and a lower priority debug port. Register 0
// reads as zero and never accepts a write.
type RegFile struct {
	r, v [NumRegisters]RegisterEntry
	ev   regFileEvents

	asyncReset   bool
	resetPending bool

	stats RegFileStatistics
}

// NewRegFile creates a register file with all entries zeroed.
func NewRegFile(asyncReset bool) *RegFile {
	return &RegFile{asyncReset: asyncReset}
}

// Read returns the committed value and tag of a register.
func (rf *RegFile) Read(addr uint8) (uint64, uint8) {
	e := rf.r[addr&(NumRegisters-1)]
	return e.Value, e.Tag
}

// ReadReg returns the committed value of a register.
func (rf *RegFile) ReadReg(addr uint8) uint64 {
	v, _ := rf.Read(addr)
	return v
}

// Entries returns a copy of the committed registers.
func (rf *RegFile) Entries() [NumRegisters]RegisterEntry {
	return rf.r
}

// Stats returns register file statistics.
func (rf *RegFile) Stats() RegFileStatistics {
	return rf.stats
}

// Comb computes the next register contents from the write ports.
func (rf *RegFile) Comb(in RegFileInputs) RegFileOutputs {
	rf.v = rf.r
	rf.ev = regFileEvents{}

	w := in.Write
	waddr := w.Addr & (NumRegisters - 1)
	next := NextTag(rf.r[waddr].Tag)
	inOrdered := w.Tag&RegTagMask == next
	writing := w.Enable && waddr != 0

	switch {
	case writing && (!w.InOrder || inOrdered):
		rf.v[waddr] = RegisterEntry{Value: w.Data, Tag: next}
		rf.ev.write = true
	case in.Debug.Enable && in.Debug.Write:
		if daddr := in.Debug.Addr & (NumRegisters - 1); daddr != 0 {
			rf.v[daddr].Value = in.Debug.WData
			rf.ev.debug = true
		}
	}

	rf.ev.ignored = writing && w.InOrder && !inOrdered

	return RegFileOutputs{
		Ignored:    rf.ev.ignored,
		DebugRData: rf.r[in.Debug.Addr&(NumRegisters-1)].Value,
	}
}

// Commit latches the next register contents.
func (rf *RegFile) Commit() {
	if rf.resetPending {
		rf.r = [NumRegisters]RegisterEntry{}
		rf.v = rf.r
		rf.resetPending = false
		return
	}

	if rf.ev.write {
		rf.stats.Writes++
	}
	if rf.ev.ignored {
		rf.stats.IgnoredWrites++
	}
	if rf.ev.debug {
		rf.stats.DebugWrites++
	}
	rf.ev = regFileEvents{}
	rf.r = rf.v
}

// Tick runs one clock cycle.
func (rf *RegFile) Tick(in RegFileInputs) RegFileOutputs {
	out := rf.Comb(in)
	rf.Commit()
	return out
}

// Reset zeroes all registers and tags.
func (rf *RegFile) Reset() {
	if rf.asyncReset {
		rf.r = [NumRegisters]RegisterEntry{}
		rf.v = rf.r
		rf.ev = regFileEvents{}
		return
	}
	rf.resetPending = true
}
