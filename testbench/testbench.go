// Package testbench drives the arithmetic units cycle by cycle from Lua
// scripts.
//
// A script sees these globals:
//
//	mul(a, b [, {mode="ss"|"uu"|"su", high=bool, w=bool}])
//	div(a, b [, {unsigned=bool, rem=bool, w=bool}])
//	tick([n])            -- n idle cycles, default 1
//	wait("mul"|"div")    -- idle cycles until the unit's result is valid
//	result("mul"|"div")  -- valid, value
//	busy("mul"|"div")
//	expect(got, want [, msg])
//	cycle()
//	reset()
//	hex(v)
//
// mul and div present their operands for one clock cycle. Values cross the
// Lua boundary as hex strings ("0xffffffffffffffff") because Lua numbers
// cannot hold every 64-bit pattern; small integers and negative decimal
// strings are accepted as inputs too.
package testbench

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/sarchlab/riversim/timing/arith"
)

// DefaultMaxWait bounds the number of cycles wait() spends on one result.
const DefaultMaxWait = 64

// Result summarizes one script run.
type Result struct {
	Cycles     uint64
	Checks     int
	Failures   []string
	Multiplier arith.MultiplierStatistics
	Divider    arith.DividerStatistics
}

// Passed reports whether every expect() in the script held.
func (r Result) Passed() bool {
	return len(r.Failures) == 0
}

// Option configures a Bench.
type Option func(*Bench)

// WithOutput sends print() output from scripts to w.
func WithOutput(w io.Writer) Option {
	return func(b *Bench) {
		b.out = w
	}
}

// WithAsyncReset selects the reset discipline of the units under test.
func WithAsyncReset(async bool) Option {
	return func(b *Bench) {
		b.asyncReset = async
	}
}

// WithMaxWait sets how many cycles wait() allows before failing the script.
func WithMaxWait(n int) Option {
	return func(b *Bench) {
		b.maxWait = n
	}
}

// Bench owns a multiplier and a divider and exposes them to scripts.
type Bench struct {
	mul *arith.Multiplier
	div *arith.Divider

	out        io.Writer
	asyncReset bool
	maxWait    int

	res Result
}

// New creates a bench.
func New(opts ...Option) *Bench {
	b := &Bench{
		out:     os.Stdout,
		maxWait: DefaultMaxWait,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.mul = arith.NewMultiplier(b.asyncReset)
	b.div = arith.NewDivider(b.asyncReset)
	return b
}

// Run executes a script against freshly reset units. A failed expect() does
// not stop the script; it is reported in the Result. Lua errors, including
// a wait() timeout, abort the run and are returned.
func (b *Bench) Run(script string) (Result, error) {
	return b.run(func(L *lua.LState) error { return L.DoString(script) })
}

// RunFile executes the script stored at path.
func (b *Bench) RunFile(path string) (Result, error) {
	return b.run(func(L *lua.LState) error { return L.DoFile(path) })
}

func (b *Bench) run(exec func(*lua.LState) error) (Result, error) {
	b.mul.Init(b.asyncReset)
	b.div.Init(b.asyncReset)
	b.res = Result{}

	L := lua.NewState()
	defer L.Close()
	b.register(L)

	err := exec(L)
	b.res.Multiplier = b.mul.Stats()
	b.res.Divider = b.div.Stats()
	if err != nil {
		return b.res, fmt.Errorf("testbench script failed: %w", err)
	}
	return b.res, nil
}

func (b *Bench) register(L *lua.LState) {
	funcs := map[string]lua.LGFunction{
		"mul":    b.luaMul,
		"div":    b.luaDiv,
		"tick":   b.luaTick,
		"wait":   b.luaWait,
		"result": b.luaResult,
		"busy":   b.luaBusy,
		"expect": b.luaExpect,
		"cycle":  b.luaCycle,
		"reset":  b.luaReset,
		"hex":    b.luaHex,
		"print":  b.luaPrint,
	}
	for name, fn := range funcs {
		L.SetGlobal(name, L.NewFunction(fn))
	}
}

// step clocks both units once.
func (b *Bench) step(mi arith.MultiplierInputs, di arith.DividerInputs) {
	b.mul.Tick(mi)
	b.div.Tick(di)
	b.res.Cycles++
}

func (b *Bench) luaMul(L *lua.LState) int {
	in := arith.MultiplierInputs{
		Enable: true,
		A1:     checkValue(L, 1),
		A2:     checkValue(L, 2),
	}
	if opts := L.OptTable(3, nil); opts != nil {
		switch mode := lua.LVAsString(opts.RawGetString("mode")); mode {
		case "", "ss":
			in.Mode = arith.SignedSigned
		case "uu":
			in.Mode = arith.UnsignedUnsigned
		case "su":
			in.Mode = arith.SignedUnsigned
		default:
			L.ArgError(3, fmt.Sprintf("unknown mode %q", mode))
		}
		in.High = lua.LVAsBool(opts.RawGetString("high"))
		in.RV32 = lua.LVAsBool(opts.RawGetString("w"))
	}

	accepted := !b.mul.Outputs().Busy
	b.step(in, arith.DividerInputs{})
	L.Push(lua.LBool(accepted))
	return 1
}

func (b *Bench) luaDiv(L *lua.LState) int {
	in := arith.DividerInputs{
		Enable: true,
		A1:     checkValue(L, 1),
		A2:     checkValue(L, 2),
	}
	if opts := L.OptTable(3, nil); opts != nil {
		in.Unsigned = lua.LVAsBool(opts.RawGetString("unsigned"))
		in.Residual = lua.LVAsBool(opts.RawGetString("rem"))
		in.RV32 = lua.LVAsBool(opts.RawGetString("w"))
	}

	accepted := !b.div.Outputs().Busy
	b.step(arith.MultiplierInputs{}, in)
	L.Push(lua.LBool(accepted))
	return 1
}

func (b *Bench) luaTick(L *lua.LState) int {
	n := L.OptInt(1, 1)
	for i := 0; i < n; i++ {
		b.step(arith.MultiplierInputs{}, arith.DividerInputs{})
	}
	return 0
}

func (b *Bench) luaWait(L *lua.LState) int {
	unit := L.CheckString(1)
	for waited := 1; ; waited++ {
		if waited > b.maxWait {
			L.RaiseError("%s result not valid after %d cycles", unit, b.maxWait)
			return 0
		}
		b.step(arith.MultiplierInputs{}, arith.DividerInputs{})
		if valid, res := b.output(L, unit); valid {
			L.Push(lua.LString(hex(res)))
			L.Push(lua.LNumber(waited))
			return 2
		}
	}
}

func (b *Bench) luaResult(L *lua.LState) int {
	valid, res := b.output(L, L.CheckString(1))
	L.Push(lua.LBool(valid))
	L.Push(lua.LString(hex(res)))
	return 2
}

func (b *Bench) luaBusy(L *lua.LState) int {
	var busy bool
	switch unit := L.CheckString(1); unit {
	case "mul":
		busy = b.mul.Outputs().Busy
	case "div":
		busy = b.div.Outputs().Busy
	default:
		L.ArgError(1, fmt.Sprintf("unknown unit %q", unit))
	}
	L.Push(lua.LBool(busy))
	return 1
}

func (b *Bench) output(L *lua.LState, unit string) (bool, uint64) {
	switch unit {
	case "mul":
		out := b.mul.Outputs()
		return out.Valid, out.Result
	case "div":
		out := b.div.Outputs()
		return out.Valid, out.Result
	}
	L.ArgError(1, fmt.Sprintf("unknown unit %q", unit))
	return false, 0
}

func (b *Bench) luaExpect(L *lua.LState) int {
	got := checkValue(L, 1)
	want := checkValue(L, 2)
	msg := L.OptString(3, "")

	b.res.Checks++
	ok := got == want
	if !ok {
		f := fmt.Sprintf("%sexpected %s, got %s", L.Where(1), hex(want), hex(got))
		if msg != "" {
			f += " (" + msg + ")"
		}
		b.res.Failures = append(b.res.Failures, f)
	}
	L.Push(lua.LBool(ok))
	return 1
}

func (b *Bench) luaCycle(L *lua.LState) int {
	L.Push(lua.LNumber(b.res.Cycles))
	return 1
}

// luaReset resets both units. A synchronous reset takes effect on the next
// clock edge, so it costs one cycle.
func (b *Bench) luaReset(L *lua.LState) int {
	b.mul.Reset()
	b.div.Reset()
	if !b.asyncReset {
		b.step(arith.MultiplierInputs{}, arith.DividerInputs{})
	}
	return 0
}

func (b *Bench) luaHex(L *lua.LState) int {
	L.Push(lua.LString(hex(checkValue(L, 1))))
	return 1
}

func (b *Bench) luaPrint(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.Get(i).String())
	}
	fmt.Fprintln(b.out, strings.Join(parts, "\t"))
	return 0
}

// checkValue reads a 64-bit argument given as a number or a string.
func checkValue(L *lua.LState, n int) uint64 {
	switch v := L.CheckAny(n).(type) {
	case lua.LNumber:
		return uint64(int64(v))
	case lua.LString:
		val, err := ParseValue(string(v))
		if err != nil {
			L.ArgError(n, err.Error())
		}
		return val
	}
	L.TypeError(n, lua.LTString)
	return 0
}

// ParseValue parses a 64-bit value. Hex, octal and binary prefixes are
// accepted, and negative decimals wrap to their two's-complement pattern.
func ParseValue(s string) (uint64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if strings.HasPrefix(s, "-") {
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q: %w", s, err)
		}
		return uint64(v), nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return v, nil
}

func hex(v uint64) string {
	return fmt.Sprintf("0x%016x", v)
}
