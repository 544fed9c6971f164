package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/animus-host/animus/pkg/plugin"
)

// Lua entry points a plugin script may define. Only execute is required.
const (
	luaInitialize = "initialize"
	luaExecute    = "execute"
	luaCleanup    = "cleanup"
)

// LuaPlugin adapts a Lua script to the plugin contract. The script's global
// execute(input) receives a table {type, data, request_id, timestamp} and
// returns a table {type, data, success, error, metadata}.
//
// gopher-lua states are not goroutine-safe; all state access is serialized
// through the plugin's mutex.
type LuaPlugin struct {
	desc   *plugin.Descriptor
	script string

	mu sync.Mutex
	L  *lua.LState
}

// NewLuaPlugin creates the adapter without touching the Lua state; the state
// is created on Initialize and torn down on Cleanup.
func NewLuaPlugin(desc *plugin.Descriptor, script string) *LuaPlugin {
	return &LuaPlugin{desc: desc, script: script}
}

// Descriptor returns the manifest-declared descriptor.
func (p *LuaPlugin) Descriptor() *plugin.Descriptor { return p.desc }

// Initialize creates the Lua state, runs the script, and calls its
// initialize() when defined.
func (p *LuaPlugin) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.L != nil {
		// Reload path: drop the previous state.
		p.L.Close()
	}

	opts := lua.Options{SkipOpenLibs: p.desc.Security.Sandbox}
	L := lua.NewState(opts)
	L.SetContext(ctx)

	if err := L.DoFile(p.script); err != nil {
		L.Close()
		return fmt.Errorf("script failed: %w", err)
	}

	if fn := L.GetGlobal(luaInitialize); fn.Type() == lua.LTFunction {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
			L.Close()
			return fmt.Errorf("initialize failed: %w", err)
		}
	}

	if L.GetGlobal(luaExecute).Type() != lua.LTFunction {
		L.Close()
		return fmt.Errorf("script defines no %s function", luaExecute)
	}

	p.L = L
	return nil
}

// Execute calls the script's execute(input) and converts the returned table
// into an output envelope.
func (p *LuaPlugin) Execute(ctx context.Context, in *plugin.Input) (*plugin.Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.L == nil {
		return nil, fmt.Errorf("plugin %q is not initialized", p.desc.ID)
	}
	L := p.L
	L.SetContext(ctx)

	arg := L.NewTable()
	L.SetField(arg, "type", lua.LString(in.Type))
	L.SetField(arg, "data", toLua(L, in.Data))
	L.SetField(arg, "request_id", lua.LString(in.RequestID))
	L.SetField(arg, "timestamp", lua.LNumber(in.Timestamp.UnixMilli()))

	fn := L.GetGlobal(luaExecute)
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, arg); err != nil {
		return nil, fmt.Errorf("execute failed: %w", err)
	}

	ret := L.Get(-1)
	L.Pop(1)

	out := &plugin.Output{Type: in.Type, Success: true, Timestamp: time.Now()}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		out.Data = fromLua(ret)
		return out, nil
	}

	if v := L.GetField(tbl, "type"); v.Type() == lua.LTString {
		out.Type = lua.LVAsString(v)
	}
	out.Data = fromLua(L.GetField(tbl, "data"))
	if v := L.GetField(tbl, "success"); v.Type() == lua.LTBool {
		out.Success = lua.LVAsBool(v)
	}
	if v := L.GetField(tbl, "error"); v.Type() == lua.LTString {
		out.Error = lua.LVAsString(v)
	}
	if v, ok := fromLua(L.GetField(tbl, "metadata")).(map[string]any); ok {
		out.Metadata = v
	}

	if !out.Success && out.Error != "" {
		return nil, fmt.Errorf("plugin reported failure: %s", out.Error)
	}
	return out, nil
}

// Cleanup calls the script's cleanup() when defined and closes the state.
func (p *LuaPlugin) Cleanup(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.L == nil {
		return nil
	}
	L := p.L
	p.L = nil
	defer L.Close()

	L.SetContext(ctx)
	if fn := L.GetGlobal(luaCleanup); fn.Type() == lua.LTFunction {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
	}
	return nil
}
