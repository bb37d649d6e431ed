package cache

// StubState is the request state of the instruction cache stub.
type StubState uint8

// Stub states.
const (
	StubIdle StubState = iota
	StubWaitGrant
	StubWaitResp
	StubWaitAccept
)

func (s StubState) String() string {
	switch s {
	case StubIdle:
		return "idle"
	case StubWaitGrant:
		return "wait_grant"
	case StubWaitResp:
		return "wait_resp"
	case StubWaitAccept:
		return "wait_accept"
	}
	return "unknown"
}

const (
	// StubLines is the number of resident lines.
	StubLines = 2
	// StubLineBytes is the size of one resident line.
	StubLineBytes = 8

	invalidLineTag = ^uint64(0)
	// invalidLineAddr is the reset value of the outstanding line request. It
	// is line aligned and above any fetchable address.
	invalidLineAddr = invalidLineTag &^ 0x7
)

// lineTag drops the byte offset within a line.
func lineTag(addr uint64) uint64 {
	return addr >> 3
}

// StubLine is one resident line of the stub.
type StubLine struct {
	// Tag is the line address shifted right by 3. An invalid line holds a tag
	// no address can produce.
	Tag       uint64
	Data      uint64
	LoadFault bool
}

// Valid reports whether the line holds data.
func (l StubLine) Valid() bool {
	return l.Tag != invalidLineTag
}

// ICacheStubInputs are the signals sampled by the stub in one cycle.
type ICacheStubInputs struct {
	// Fetch request from the fetcher.
	ReqValid bool
	ReqAddr  uint64
	// RespReady reports that the fetcher consumes a valid response.
	RespReady bool

	// MemReqReady is the memory side's request grant.
	MemReqReady bool

	// Memory response for the outstanding line request.
	MemRespValid bool
	MemRespData  uint64
	MemRespFault bool

	Flush bool
}

// ICacheStubOutputs are the combinational outputs of the stub.
type ICacheStubOutputs struct {
	ReqReady bool

	MemReqValid bool
	// MemReqAddr is line aligned.
	MemReqAddr uint64
	// MemReqLen is the expected burst length in lines.
	MemReqLen int

	RespValid bool
	RespAddr  uint64
	RespData  uint32
	RespFault bool

	State StubState
}

// ICacheStubStatistics counts stub activity.
type ICacheStubStatistics struct {
	Requests       uint64
	LineHits       uint64
	MemRequests    uint64
	Responses      uint64
	DoubleRequests uint64
	Flushes        uint64
}

type stubRegs struct {
	lines [StubLines]StubLine

	// lineReq is the address of the last line requested from memory.
	lineReq uint64
	// addrProcessing is the fetch address being served.
	addrProcessing uint64
	// doubleReq forces a second line fetch for an instruction straddling a
	// line boundary.
	doubleReq bool

	delayValid bool
	delayData  uint32
	delayFault bool

	state StubState
}

func (s *stubRegs) clear() {
	*s = stubRegs{lineReq: invalidLineAddr}
	for i := range s.lines {
		s.lines[i] = StubLine{Tag: invalidLineTag}
	}
}

// halfHit records where one half-word of a request was found.
type halfHit struct {
	line0, line1, resp bool
	data               uint64
	fault              bool
}

func (h halfHit) any() bool {
	return h.line0 || h.line1 || h.resp
}

type stubEvents struct {
	request bool
	lineHit bool
	memReq  bool
	resp    bool
	double  bool
	flush   bool
}

// ICacheStub serves 16-bit aligned instruction fetches from two resident
// 8-byte lines and one outstanding memory request. A 32-bit instruction that
// straddles two lines is assembled from both.
type ICacheStub struct {
	r, v stubRegs

	asyncReset   bool
	resetPending bool

	ev    stubEvents
	stats ICacheStubStatistics
}

// NewICacheStub creates an empty instruction cache stub.
func NewICacheStub(asyncReset bool) *ICacheStub {
	s := &ICacheStub{asyncReset: asyncReset}
	s.r.clear()
	s.v = s.r
	return s
}

// Lines returns the resident lines, most recent first.
func (s *ICacheStub) Lines() [StubLines]StubLine {
	return s.r.lines
}

// State returns the registered request state.
func (s *ICacheStub) State() StubState {
	return s.r.state
}

// Stats returns the stub statistics.
func (s *ICacheStub) Stats() ICacheStubStatistics {
	return s.stats
}

// lookup searches the resident lines, then the incoming response, for addr.
// Line hits are qualified by reqValid and the response hit by respValid.
func (s *ICacheStub) lookup(addr uint64, reqValid bool, in ICacheStubInputs) halfHit {
	r := &s.r
	tag := lineTag(addr)

	switch tag {
	case r.lines[0].Tag:
		return halfHit{line0: reqValid, data: r.lines[0].Data, fault: r.lines[0].LoadFault}
	case r.lines[1].Tag:
		return halfHit{line1: reqValid, data: r.lines[1].Data, fault: r.lines[1].LoadFault}
	case lineTag(r.lineReq):
		return halfHit{resp: in.MemRespValid, data: in.MemRespData, fault: in.MemRespFault}
	}
	return halfHit{}
}

// selectWord extracts the 32-bit instruction at addr from the line holding
// its low half and the line holding its high half.
func selectWord(addr uint64, lo, hi halfHit) (uint32, bool) {
	switch (addr >> 1) & 0x3 {
	case 0:
		return uint32(lo.data), lo.fault
	case 1:
		return uint32(lo.data >> 16), lo.fault
	case 2:
		return uint32(lo.data >> 32), lo.fault
	}
	return uint32(hi.data&0xFFFF)<<16 | uint32(lo.data>>48), lo.fault || hi.fault
}

// Comb computes the next state and this cycle's outputs.
func (s *ICacheStub) Comb(in ICacheStubInputs) ICacheStubOutputs {
	r := &s.r
	v := *r
	s.ev = stubEvents{}

	waitResponse := r.state == StubWaitResp && !in.MemRespValid
	reqValid := !waitResponse && (in.ReqValid || r.doubleReq)

	reqAddr := in.ReqAddr
	if r.doubleReq {
		reqAddr = r.addrProcessing
	}

	var req, hold [2]halfHit
	for i := 0; i < 2; i++ {
		off := uint64(2 * i)
		req[i] = s.lookup(reqAddr+off, reqValid, in)
		hold[i] = s.lookup(r.addrProcessing+off, true, in)
		// The response is a data source for held words, not a hit.
		hold[i].resp = false
	}

	needMemReq := !(req[0].any() && req[1].any())

	var out ICacheStubOutputs
	hitWord, hitFault := selectWord(r.addrProcessing, hold[0], hold[1])

	switch {
	case reqValid && !needMemReq:
		v.delayValid = true
		v.delayData, v.delayFault = selectWord(reqAddr, req[0], req[1])
	case in.RespReady:
		v.delayValid = false
		v.delayData = 0
		v.delayFault = false
	}

	out.MemReqValid = needMemReq && reqValid
	switch {
	case r.doubleReq:
		out.MemReqAddr = lineTag(r.addrProcessing+2) << 3
	case !req[0].any():
		out.MemReqAddr = lineTag(reqAddr) << 3
	default:
		out.MemReqAddr = lineTag(reqAddr+2) << 3
	}
	out.MemReqLen = 1

	out.ReqReady = !needMemReq || (in.MemReqReady && !waitResponse)
	fire := reqValid && out.ReqReady

	if (out.MemReqValid && in.MemReqReady && !waitResponse) || (r.doubleReq && !waitResponse) {
		v.lineReq = out.MemReqAddr
		s.ev.memReq = out.MemReqValid && in.MemReqReady
	}

	v.state = s.nextState(in, reqValid, needMemReq)

	if fire {
		v.doubleReq = false
		if (in.ReqAddr>>1)&0x3 == 0x3 && !req[0].any() && !req[1].any() && !r.doubleReq {
			v.doubleReq = true
			s.ev.double = true
		}
		if !r.doubleReq {
			v.addrProcessing = in.ReqAddr
			s.ev.request = true
			s.ev.lineHit = !needMemReq
		}
	}

	if in.MemRespValid {
		if !s.reuseLastLine(in, req, hold, needMemReq, out.MemReqAddr) {
			v.lines[1] = r.lines[0]
		}
		v.lines[0] = StubLine{
			Tag:       lineTag(r.lineReq),
			Data:      in.MemRespData,
			LoadFault: in.MemRespFault,
		}
	}
	if in.Flush {
		v.lines[0].Tag = invalidLineTag
		v.lines[1].Tag = invalidLineTag
		s.ev.flush = true
	}

	if r.state == StubWaitAccept {
		out.RespValid = !r.doubleReq
	} else {
		out.RespValid = in.MemRespValid && !r.doubleReq
	}
	if r.delayValid {
		out.RespData, out.RespFault = r.delayData, r.delayFault
	} else {
		out.RespData, out.RespFault = hitWord, hitFault
	}
	out.RespAddr = r.addrProcessing
	out.State = r.state
	s.ev.resp = out.RespValid && in.RespReady

	s.v = v
	return out
}

// afterRequest is the state entered when a new request is considered.
func afterRequest(in ICacheStubInputs, needMemReq bool) StubState {
	switch {
	case !needMemReq:
		return StubWaitAccept
	case in.MemReqReady:
		return StubWaitResp
	}
	return StubWaitGrant
}

func (s *ICacheStub) nextState(in ICacheStubInputs, reqValid, needMemReq bool) StubState {
	state := s.r.state

	switch state {
	case StubIdle:
		if reqValid {
			return afterRequest(in, needMemReq)
		}
	case StubWaitGrant:
		switch {
		case in.MemReqReady:
			return StubWaitResp
		case !needMemReq:
			// The fetcher moved to an address the resident lines cover.
			return StubWaitAccept
		}
	case StubWaitResp:
		if !in.MemRespValid {
			break
		}
		switch {
		case s.r.doubleReq:
			// The high half is still missing; nothing can be served yet.
			return afterRequest(in, needMemReq)
		case !in.RespReady:
			return StubWaitAccept
		case !reqValid:
			return StubIdle
		}
		return afterRequest(in, needMemReq)
	case StubWaitAccept:
		if s.r.doubleReq {
			return afterRequest(in, needMemReq)
		}
		if !in.RespReady {
			break
		}
		if !reqValid {
			return StubIdle
		}
		return afterRequest(in, needMemReq)
	}

	return state
}

// reuseLastLine reports whether the incoming response should replace line 0
// only, keeping line 1 because a pending word still needs it.
func (s *ICacheStub) reuseLastLine(in ICacheStubInputs, req, hold [2]halfHit, needMemReq bool, memAddr uint64) bool {
	r := &s.r

	if in.RespReady {
		return (req[0].line1 || req[1].line1) &&
			r.lines[1].Tag != lineTag(memAddr) &&
			needMemReq
	}

	return (hold[0].line1 || hold[1].line1) &&
		!(hold[0].line0 || hold[1].line0) &&
		r.lines[1].Tag != lineTag(r.lineReq)
}

// Commit latches the next state on the clock edge.
func (s *ICacheStub) Commit() {
	if s.resetPending {
		s.r.clear()
		s.v = s.r
		s.ev = stubEvents{}
		s.resetPending = false
		return
	}

	s.count()
	s.r = s.v
}

func (s *ICacheStub) count() {
	ev := s.ev
	if ev.request {
		s.stats.Requests++
	}
	if ev.lineHit {
		s.stats.LineHits++
	}
	if ev.memReq {
		s.stats.MemRequests++
	}
	if ev.resp {
		s.stats.Responses++
	}
	if ev.double {
		s.stats.DoubleRequests++
	}
	if ev.flush {
		s.stats.Flushes++
	}
	s.ev = stubEvents{}
}

// Tick runs one clock cycle.
func (s *ICacheStub) Tick(in ICacheStubInputs) ICacheStubOutputs {
	out := s.Comb(in)
	s.Commit()
	return out
}

// Reset invalidates both lines and returns to idle.
func (s *ICacheStub) Reset() {
	if s.asyncReset {
		s.r.clear()
		s.v = s.r
		s.ev = stubEvents{}
		return
	}
	s.resetPending = true
}
