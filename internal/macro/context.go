package macro

import (
	"maps"
	"sync"
)

// Well-known execution context variables.
const (
	VarACS        = "acs"
	VarDataset    = "dataset"
	VarLogger     = "logger"
	VarScriptStop = "script_stop"
)

// ExecutionContext is the variable scope shared by every step of one run.
// Steps read the seeded handles and the extra context from it, append
// results, and may set script_stop to end the run after the current step.
type ExecutionContext struct {
	mu      sync.Mutex
	vars    map[string]any
	results []string
}

// NewExecutionContext returns an empty context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{vars: make(map[string]any)}
}

// Get returns a variable.
func (c *ExecutionContext) Get(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars[name]
	return v, ok
}

// Set assigns a variable.
func (c *ExecutionContext) Set(name string, v any) {
	c.mu.Lock()
	c.vars[name] = v
	c.mu.Unlock()
}

// Merge assigns every entry of vars, shadowing existing names.
func (c *ExecutionContext) Merge(vars map[string]any) {
	c.mu.Lock()
	maps.Copy(c.vars, vars)
	c.mu.Unlock()
}

// Vars returns a copy of every variable.
func (c *ExecutionContext) Vars() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.vars)
}

// ScriptStop reports whether a step asked to end the run.
func (c *ExecutionContext) ScriptStop() bool {
	v, _ := c.Get(VarScriptStop)
	b, _ := v.(bool)
	return b
}

// AddResult appends a line to the run's results.
func (c *ExecutionContext) AddResult(s string) {
	c.mu.Lock()
	c.results = append(c.results, s)
	c.mu.Unlock()
}

// Results returns a copy of the results so far.
func (c *ExecutionContext) Results() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.results...)
}
