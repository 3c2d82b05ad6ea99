package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// policyFunc is the global a policy script defines.
const policyFunc = "policy"

const defaultTimeout = 50 * time.Millisecond

// Engine wraps a single gopher-lua VM holding the search policy.
// Single-goroutine access only (path worker).
type Engine struct {
	vm      *lua.LState
	timeout time.Duration
	log     *zap.Logger
}

// NewEngine creates a Lua engine from a script file, or from every .lua
// file of a directory in name order.
func NewEngine(path string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, timeout: defaultTimeout, log: log}

	info, err := os.Stat(path)
	if err != nil {
		vm.Close()
		return nil, fmt.Errorf("policy script: %w", err)
	}
	if info.IsDir() {
		err = e.loadDir(path)
	} else {
		err = e.loadFile(path)
	}
	if err != nil {
		vm.Close()
		return nil, err
	}
	if e.vm.GetGlobal(policyFunc).Type() != lua.LTFunction {
		vm.Close()
		return nil, fmt.Errorf("policy script %s: no %s(query) function", path, policyFunc)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		if err := e.loadFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) loadFile(path string) error {
	if err := e.vm.DoFile(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	e.log.Debug("loaded lua script", zap.String("file", path))
	return nil
}

// SetTimeout bounds each policy call. Non-positive values are ignored.
func (e *Engine) SetTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// Close releases the VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// PolicyQuery is what the script sees of a path request.
type PolicyQuery struct {
	StartX, StartZ  float64
	GoalX, GoalZ    float64
	Distance        float64 // straight-line world distance start to goal
	MaxIterations   int     // as sent by the caller, 0 = default
	IgnoreSlopes    bool
	IgnoreObstacles bool
	Chunks          int // registered chunk count
}

// PolicyOverride holds the script's answer. Zero fields keep the defaults.
type PolicyOverride struct {
	MaxIterations  int
	SnapRadius     int
	PartialMinGain float64
}

// Policy calls policy(query). A script error, a call running past the
// timeout or a non-table result yields no override; the query still runs
// with the defaults.
func (e *Engine) Policy(q PolicyQuery) (PolicyOverride, bool) {
	fn := e.vm.GetGlobal(policyFunc)
	if fn == lua.LNil {
		return PolicyOverride{}, false
	}

	t := e.vm.NewTable()
	t.RawSetString("start_x", lua.LNumber(q.StartX))
	t.RawSetString("start_z", lua.LNumber(q.StartZ))
	t.RawSetString("goal_x", lua.LNumber(q.GoalX))
	t.RawSetString("goal_z", lua.LNumber(q.GoalZ))
	t.RawSetString("distance", lua.LNumber(q.Distance))
	t.RawSetString("max_iterations", lua.LNumber(q.MaxIterations))
	t.RawSetString("ignore_slopes", lua.LBool(q.IgnoreSlopes))
	t.RawSetString("ignore_obstacles", lua.LBool(q.IgnoreObstacles))
	t.RawSetString("chunks", lua.LNumber(q.Chunks))

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	e.vm.SetContext(ctx)
	defer e.vm.RemoveContext()

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua policy error", zap.Error(err))
		return PolicyOverride{}, false
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)

	out, ok := ret.(*lua.LTable)
	if !ok {
		return PolicyOverride{}, false
	}
	return PolicyOverride{
		MaxIterations:  int(lua.LVAsNumber(out.RawGetString("max_iterations"))),
		SnapRadius:     int(lua.LVAsNumber(out.RawGetString("snap_radius"))),
		PartialMinGain: float64(lua.LVAsNumber(out.RawGetString("partial_min_gain"))),
	}, true
}
