package core

import (
	"github.com/sarchlab/riversim/timing/cache"
	"github.com/sarchlab/riversim/timing/pipeline"
)

// fetch advances the front end by one cycle. The decode register feeds the
// execute stage and a one-entry buffer absorbs a response that arrives
// while decode is occupied. At most one request is outstanding at the stub,
// and a new one is only made when the buffer is guaranteed to have room for
// its response, so the stub never has to wait on RespReady.
func (c *Core) fetch(st pipeline.PipelineState, exOut pipeline.ExecuteOutputs, flushApply bool) {
	r := &c.r
	v := &c.v

	stale := r.dec.valid && r.dec.pc != st.NPC
	switch {
	case stale:
		c.stats.Discarded++
		c.stats.FetchWaits++
	case !r.dec.valid:
		c.stats.FetchWaits++
	case !exOut.Accepted:
		c.stats.Stalls++
	}

	dec, buf := r.dec, r.buf
	if !dec.valid || stale || exOut.Accepted || flushApply {
		dec = fetchEntry{}
	}
	if flushApply {
		buf = fetchEntry{}
	}
	if !dec.valid && buf.valid {
		dec, buf = buf, fetchEntry{}
	}

	mem := c.iport.Outputs()
	stubIn := cache.ICacheStubInputs{
		RespReady:    true,
		MemReqReady:  mem.ReqReady,
		MemRespValid: mem.RespValid,
		MemRespData:  mem.RespData,
		MemRespFault: mem.RespFault,
		Flush:        flushApply,
	}

	// The stub's response does not depend on the request inputs, so probe
	// it first to place the response before choosing the next request.
	probe := c.stub.Comb(stubIn)
	if probe.RespValid {
		e := fetchEntry{valid: true, pc: probe.RespAddr, instr: probe.RespData, fault: probe.RespFault}
		if !dec.valid {
			dec = e
		} else {
			buf = e
		}
	}

	inFlight := make([]uint64, 0, 4)
	if r.dec.valid && !stale {
		inFlight = append(inFlight, r.dec.pc)
	}
	for _, e := range [...]fetchEntry{dec, buf} {
		if e.valid {
			inFlight = append(inFlight, e.pc)
		}
	}
	if r.outstanding && !probe.RespValid {
		inFlight = append(inFlight, r.reqPC)
	}

	startPC := st.NPC
	if r.npcPending {
		startPC = r.npc
	}

	bp := c.predictor.Comb(pipeline.BranchPredictorInputs{
		Flush:     flushApply,
		StartPC:   startPC,
		ExecJump:  st.Valid && st.Jump,
		ExecPC:    st.PC,
		ExecNPC:   st.NPC,
		RespValid: mem.RespValid && !mem.RespFault,
		RespAddr:  mem.RespAddr,
		RespData:  mem.RespData,
		InFlight:  inFlight,
	})

	canRequest := !r.flushPending && !buf.valid && (!r.outstanding || probe.RespValid)
	stubIn.ReqValid = canRequest && bp.Valid
	stubIn.ReqAddr = bp.PC
	out := c.stub.Comb(stubIn)

	switch {
	case stubIn.ReqValid && out.ReqReady:
		v.outstanding = true
		v.reqPC = bp.PC
	case probe.RespValid:
		v.outstanding = false
	}

	c.iport.Comb(cache.PortInputs{ReqValid: out.MemReqValid, ReqAddr: out.MemReqAddr})

	v.dec, v.buf = dec, buf
}
