package emu

const (
	pageShift = 12
	pageSize  = 1 << pageShift
	pageMask  = pageSize - 1
)

// Memory is a sparse, byte-addressed, little-endian memory. Unwritten
// locations read as zero.
type Memory struct {
	pages map[uint64]*[pageSize]byte
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint64]*[pageSize]byte)}
}

func (m *Memory) page(addr uint64, create bool) *[pageSize]byte {
	p, ok := m.pages[addr>>pageShift]
	if !ok && create {
		p = new([pageSize]byte)
		m.pages[addr>>pageShift] = p
	}
	return p
}

// Read8 reads one byte.
func (m *Memory) Read8(addr uint64) uint8 {
	p := m.page(addr, false)
	if p == nil {
		return 0
	}
	return p[addr&pageMask]
}

// Write8 writes one byte.
func (m *Memory) Write8(addr uint64, value uint8) {
	m.page(addr, true)[addr&pageMask] = value
}

// Read reads size bytes (1, 2, 4 or 8) as a little-endian value.
func (m *Memory) Read(addr uint64, size int) uint64 {
	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(m.Read8(addr+uint64(i))) << (8 * i)
	}
	return v
}

// Write writes the low size bytes of value in little-endian order.
func (m *Memory) Write(addr uint64, size int, value uint64) {
	for i := 0; i < size; i++ {
		m.Write8(addr+uint64(i), uint8(value>>(8*i)))
	}
}

// Read16 reads a half-word.
func (m *Memory) Read16(addr uint64) uint16 { return uint16(m.Read(addr, 2)) }

// Read32 reads a word.
func (m *Memory) Read32(addr uint64) uint32 { return uint32(m.Read(addr, 4)) }

// Read64 reads a double-word.
func (m *Memory) Read64(addr uint64) uint64 { return m.Read(addr, 8) }

// Write16 writes a half-word.
func (m *Memory) Write16(addr uint64, value uint16) { m.Write(addr, 2, uint64(value)) }

// Write32 writes a word.
func (m *Memory) Write32(addr uint64, value uint32) { m.Write(addr, 4, uint64(value)) }

// Write64 writes a double-word.
func (m *Memory) Write64(addr uint64, value uint64) { m.Write(addr, 8, value) }

// LoadProgram copies program bytes into memory starting at addr.
func (m *Memory) LoadProgram(addr uint64, program []byte) {
	for i, b := range program {
		m.Write8(addr+uint64(i), b)
	}
}

// LoadWords writes 32-bit instruction words starting at addr.
func (m *Memory) LoadWords(addr uint64, words []uint32) {
	for i, w := range words {
		m.Write32(addr+uint64(4*i), w)
	}
}
