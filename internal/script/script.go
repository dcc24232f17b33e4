// Package script evaluates Lua trigger conditions against the probe
// snapshot.
//
// A script is either an expression (`probe(0) > 60`) or a chunk that
// returns a value (`return probes[1] ~= nil`). The result fires the trigger
// when it is Lua-true. Inside a script:
//
//	probe(i)  reading of sensor i (0-based, as in sensor triggers) or nil
//	probes    1-based array of all readings, nil for absent probes
package script

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/hidlight/internal/device"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 5 * time.Millisecond

// Engine owns one Lua state. It is not safe for concurrent use; the control
// loop is its only caller.
type Engine struct {
	L       *lua.LState
	timeout time.Duration

	chunks map[string]*lua.LFunction
	broken map[string]bool
	probes []device.Probe
}

// New creates an engine with a sandboxed standard library (base, table,
// string, math).
func New(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	e := &Engine{
		L:       L,
		timeout: timeout,
		chunks:  make(map[string]*lua.LFunction),
		broken:  make(map[string]bool),
	}
	L.SetGlobal("probe", L.NewFunction(e.luaProbe))
	return e
}

// Close releases the Lua state.
func (e *Engine) Close() {
	e.L.Close()
}

// luaProbe implements probe(i).
func (e *Engine) luaProbe(L *lua.LState) int {
	i := L.CheckInt(1)
	if temp, ok := device.ProbeAt(e.probes, i); ok {
		L.Push(lua.LNumber(temp))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

func (e *Engine) compile(source string) *lua.LFunction {
	if fn, ok := e.chunks[source]; ok {
		return fn
	}
	fn, err := e.L.LoadString("return " + source)
	if err != nil {
		fn, err = e.L.LoadString(source)
	}
	if err != nil {
		log.Error().Err(err).Str("script", source).Msg("Failed to compile trigger script")
		fn = nil
	}
	e.chunks[source] = fn
	return fn
}

// Eval runs source against probes. Compile and runtime errors are logged
// once per script and evaluate to false.
func (e *Engine) Eval(source string, probes []device.Probe) bool {
	fn := e.compile(source)
	if fn == nil {
		return false
	}

	e.probes = probes
	e.L.SetGlobal("probes", e.probesTable(probes))

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	e.L.SetContext(ctx)
	defer e.L.RemoveContext()

	e.L.Push(fn)
	if err := e.L.PCall(0, 1, nil); err != nil {
		if !e.broken[source] {
			e.broken[source] = true
			log.Error().Err(err).Str("script", source).Msg("Trigger script failed")
		}
		return false
	}
	ret := e.L.Get(-1)
	e.L.Pop(1)
	if e.broken[source] {
		delete(e.broken, source)
		log.Info().Str("script", source).Msg("Trigger script recovered")
	}
	return lua.LVAsBool(ret)
}

func (e *Engine) probesTable(probes []device.Probe) *lua.LTable {
	tbl := e.L.CreateTable(len(probes), 0)
	for i, p := range probes {
		if p.Valid {
			tbl.RawSetInt(i+1, lua.LNumber(p.Temp))
		}
	}
	return tbl
}
