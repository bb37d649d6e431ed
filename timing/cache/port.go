package cache

// PortInputs are the line requests presented to a Port in one cycle.
type PortInputs struct {
	ReqValid bool
	// ReqAddr is the address of an 8-byte line.
	ReqAddr uint64
}

// PortOutputs are the combinational outputs of a Port.
type PortOutputs struct {
	ReqReady bool

	RespValid bool
	RespAddr  uint64
	RespData  uint64
	RespFault bool
}

// PortStatistics counts port activity.
type PortStatistics struct {
	Requests uint64
	Faults   uint64
	// WaitCycles is the sum of the latencies of all requests.
	WaitCycles uint64
}

type portEntry struct {
	addr      uint64
	data      uint64
	fault     bool
	remaining uint64
}

// Port answers 8-byte line reads through a Cache. Each request is answered
// after the cache's hit or miss latency, in request order, one response per
// cycle. Lines at or beyond the memory limit answer with a load fault.
type Port struct {
	cache *Cache
	limit uint64

	pending []portEntry

	accepted *portEntry

	stats PortStatistics
}

// NewPort creates a port reading through c. A zero limit disables the
// memory-limit check.
func NewPort(c *Cache, limit uint64) *Port {
	return &Port{cache: c, limit: limit}
}

// Cache returns the cache behind the port.
func (p *Port) Cache() *Cache {
	return p.cache
}

// Stats returns the port statistics.
func (p *Port) Stats() PortStatistics {
	return p.stats
}

// Busy reports whether a request is still waiting for its response.
func (p *Port) Busy() bool {
	return len(p.pending) > 0
}

func (p *Port) faults(addr uint64) bool {
	return p.limit != 0 && addr+StubLineBytes > p.limit
}

// Outputs presents the oldest response whose latency has elapsed. It
// depends on registered state only.
func (p *Port) Outputs() PortOutputs {
	out := PortOutputs{ReqReady: true}
	if len(p.pending) > 0 && p.pending[0].remaining == 0 {
		e := p.pending[0]
		out.RespValid = true
		out.RespAddr = e.addr
		out.RespData = e.data
		out.RespFault = e.fault
	}
	return out
}

// Comb accepts this cycle's request. The line is read through the cache
// here, so Comb is called once per cycle.
func (p *Port) Comb(in PortInputs) PortOutputs {
	p.accepted = nil

	if in.ReqValid {
		e := portEntry{addr: in.ReqAddr &^ (StubLineBytes - 1), remaining: 1}
		if p.faults(e.addr) {
			e.fault = true
		} else {
			res := p.cache.Read(e.addr, StubLineBytes)
			e.data = res.Data
			if res.Latency > 0 {
				e.remaining = res.Latency
			}
		}
		p.accepted = &e
	}

	return p.Outputs()
}

// Commit retires the presented response and advances all outstanding
// requests by one cycle.
func (p *Port) Commit() {
	if len(p.pending) > 0 && p.pending[0].remaining == 0 {
		p.pending = p.pending[1:]
	}
	for i := range p.pending {
		if p.pending[i].remaining > 0 {
			p.pending[i].remaining--
		}
	}

	if p.accepted != nil {
		e := *p.accepted
		e.remaining--
		p.stats.Requests++
		p.stats.WaitCycles += e.remaining + 1
		if e.fault {
			p.stats.Faults++
		}
		p.pending = append(p.pending, e)
	}

	p.accepted = nil
}

// Tick runs one clock cycle.
func (p *Port) Tick(in PortInputs) PortOutputs {
	out := p.Comb(in)
	p.Commit()
	return out
}

// Invalidate drops every line held by the cache behind the port.
func (p *Port) Invalidate() {
	p.cache.Flush()
}

// Reset drops outstanding requests.
func (p *Port) Reset() {
	p.pending = nil
	p.accepted = nil
}
