package pipeline

// MaxHazardDepth is the number of issued-but-not-retired destinations the
// hazard unit tracks.
const MaxHazardDepth = 2

// HazardState is the hazard address shift register. Addr0 holds the most
// recently issued destination.
type HazardState struct {
	Addr0 uint8
	Addr1 uint8
	Depth uint8
}

// HazardUnit detects read-after-write hazards against destinations that have
// been issued but not yet written back.
type HazardUnit struct{}

// NewHazardUnit creates a new hazard detection unit.
func NewHazardUnit() *HazardUnit {
	return &HazardUnit{}
}

// Detect reports whether either source register matches an outstanding
// destination. Depth 1 checks slot 0 only; depth 2 checks both slots.
// Register 0 never causes a hazard.
func (h *HazardUnit) Detect(s HazardState, rs1, rs2 uint8) bool {
	lvl1 := matches(s.Addr0, rs1, rs2)
	lvl2 := matches(s.Addr1, rs1, rs2)

	switch s.Depth {
	case 1:
		return lvl1
	case 2:
		return lvl1 || lvl2
	}
	return false
}

func matches(addr, rs1, rs2 uint8) bool {
	return (rs1 != 0 && rs1 == addr) || (rs2 != 0 && rs2 == addr)
}

// Next returns the hazard state after a cycle. An issued instruction shifts
// its destination into slot 0. Depth grows when an instruction issues while
// no write-back completes, and shrinks on the opposite case.
func (h *HazardUnit) Next(s HazardState, issued bool, resAddr uint8, wbDone bool) HazardState {
	n := s
	if issued {
		n.Addr1 = s.Addr0
		n.Addr0 = resAddr
	}

	switch {
	case issued && !wbDone && s.Depth < MaxHazardDepth:
		n.Depth = s.Depth + 1
	case !issued && wbDone && s.Depth > 0:
		n.Depth = s.Depth - 1
	}
	return n
}
