package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
	"github.com/nerrad567/acs-auto/internal/macro"
)

// Sandbox limits.
const (
	// DefaultStepTimeout applies when no step timeout is configured.
	DefaultStepTimeout = 10 * time.Minute

	callStackSize   = 256
	registryMaxSize = 256 * 1024
)

// removedGlobals are base functions that load code or reach outside the
// sandbox.
var removedGlobals = []string{
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"require",
	"module",
	"getfenv",
	"setfenv",
	"collectgarbage",
}

// Settings provides the configured step timeout.
type Settings interface {
	Automation() config.Automation
}

// Logger defines the logging interface steps write to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Interpreter creates Lua sessions for macro runs.
type Interpreter struct {
	settings Settings
}

// NewInterpreter creates an interpreter. settings may be nil.
func NewInterpreter(settings Settings) *Interpreter {
	return &Interpreter{settings: settings}
}

// NewSession creates a sandboxed Lua state bound to ec.
func (i *Interpreter) NewSession(_ context.Context, ec *macro.ExecutionContext) (macro.Session, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:    true,
		CallStackSize:   callStackSize,
		RegistryMaxSize: registryMaxSize,
	})

	s := &session{L: L, ec: ec, logger: noopLogger{}, timeout: i.stepTimeout}
	if l, ok := ec.Get(macro.VarLogger); ok {
		if logger, ok := l.(Logger); ok {
			s.logger = logger
		}
	}

	if err := s.install(); err != nil {
		L.Close()
		return nil, err
	}
	return s, nil
}

func (i *Interpreter) stepTimeout() time.Duration {
	if i.settings == nil {
		return DefaultStepTimeout
	}
	if d := i.settings.Automation().StepTimeout; d > 0 {
		return d
	}
	return DefaultStepTimeout
}

// session is one run's Lua state. It is used from the runner's worker
// goroutine only.
type session struct {
	L       *lua.LState
	ec      *macro.ExecutionContext
	logger  Logger
	timeout func() time.Duration
	closed  bool
}

func (s *session) install() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("installing sandbox: %v", r)
		}
	}()

	lua.OpenBase(s.L)
	lua.OpenTable(s.L)
	lua.OpenString(s.L)
	lua.OpenMath(s.L)
	for _, name := range removedGlobals {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.L.SetGlobal("print", s.L.NewFunction(s.print))
	s.L.SetGlobal("add_result", s.L.NewFunction(s.addResult))
	s.L.SetGlobal("results", s.resultsTable())
	logTable := s.logTable()
	s.L.SetGlobal("log", logTable)
	s.L.SetGlobal(macro.VarLogger, logTable)

	for name, v := range s.ec.Vars() {
		switch name {
		case macro.VarACS:
			if a, ok := v.(Automation); ok {
				s.L.SetGlobal(name, automationTable(s.L, a))
			}
		case macro.VarDataset:
			if d, ok := v.(Dataset); ok {
				s.L.SetGlobal(name, datasetTable(s.L, d))
			}
		case macro.VarLogger, "results":
		default:
			if lv, ok := toLua(s.L, v); ok {
				s.L.SetGlobal(name, lv)
			}
		}
	}
	return nil
}

// Exec runs step under the step deadline. A script_stop = true left in the
// globals is copied back to the execution context.
func (s *session) Exec(ctx context.Context, step macro.Step) error {
	if s.closed {
		return ErrSessionClosed
	}

	fn, err := s.L.Load(strings.NewReader(step.Code), step.Name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCompile, err)
	}

	stepCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	s.L.SetContext(stepCtx)
	defer s.L.RemoveContext()

	s.L.SetGlobal(macro.VarScriptStop, lua.LBool(s.ec.ScriptStop()))
	s.L.Push(fn)
	callErr := s.L.PCall(0, lua.MultRet, nil)
	s.L.SetTop(0)

	if stop, ok := s.L.GetGlobal(macro.VarScriptStop).(lua.LBool); ok && bool(stop) {
		s.ec.Set(macro.VarScriptStop, true)
	}

	if callErr != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w after %s", ErrStepTimeout, s.timeout())
		}
		var apiErr *lua.ApiError
		if errors.As(callErr, &apiErr) && apiErr.Object != nil {
			return errors.New(apiErr.Object.String())
		}
		return callErr
	}
	return nil
}

// Close releases the Lua state.
func (s *session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.L.Close()
}

func (s *session) print(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	s.logger.Info(strings.Join(parts, "\t"))
	return 0
}

func (s *session) addResult(L *lua.LState) int {
	s.ec.AddResult(L.ToStringMeta(L.CheckAny(1)).String())
	return 0
}

// resultsTable exposes the run's results list. Both results.append(x)
// and results:append(x) work.
func (s *session) resultsTable() *lua.LTable {
	self := func(L *lua.LState) int {
		if _, ok := L.Get(1).(*lua.LTable); ok && L.GetTop() > 1 {
			return 2
		}
		return 1
	}
	return s.L.SetFuncs(s.L.NewTable(), map[string]lua.LGFunction{
		"append": func(L *lua.LState) int {
			s.ec.AddResult(L.ToStringMeta(L.CheckAny(self(L))).String())
			return 0
		},
		"list": func(L *lua.LState) int {
			t := L.NewTable()
			for _, r := range s.ec.Results() {
				t.Append(lua.LString(r))
			}
			L.Push(t)
			return 1
		},
		"count": func(L *lua.LState) int {
			L.Push(lua.LNumber(len(s.ec.Results())))
			return 1
		},
	})
}

func (s *session) logTable() *lua.LTable {
	level := func(fn func(msg string, args ...any)) lua.LGFunction {
		return func(L *lua.LState) int {
			fn(L.ToStringMeta(L.CheckAny(1)).String(), "source", "script")
			return 0
		}
	}
	return s.L.SetFuncs(s.L.NewTable(), map[string]lua.LGFunction{
		"debug": level(s.logger.Debug),
		"info":  level(s.logger.Info),
		"warn":  level(s.logger.Warn),
		"error": level(s.logger.Error),
	})
}
