package macro

import "time"

// Category groups macros by the trigger that runs them.
type Category string

const (
	CategoryUIDCol1     Category = "uid_col1"
	CategoryUIDCol2     Category = "uid_col2"
	CategoryAddress     Category = "address"
	CategoryTest        Category = "test"
	CategoryAddressTest Category = "address_test"
)

// AllCategories returns every category in panel order.
func AllCategories() []Category {
	return []Category{
		CategoryUIDCol1,
		CategoryUIDCol2,
		CategoryAddress,
		CategoryTest,
		CategoryAddressTest,
	}
}

// UsesDataset reports whether runs of c read addresses from the work-list.
func (c Category) UsesDataset() bool {
	return c == CategoryAddress || c == CategoryTest || c == CategoryAddressTest
}

// DefaultStepCode is the body of a freshly created step.
const DefaultStepCode = "-- add automation steps here"

// Step is one named block of script code.
type Step struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// Macro is an ordered list of steps.
type Macro struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Steps  []Step `json:"steps"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Clone returns an independent copy of m.
func (m Macro) Clone() Macro {
	m.Steps = append([]Step(nil), m.Steps...)
	if m.Steps == nil {
		m.Steps = []Step{}
	}
	return m
}

// Document is the whole macro store: every category's ordered macros.
type Document map[Category][]Macro

// Clone returns an independent copy of d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for cat, list := range d {
		cp := make([]Macro, len(list))
		for i, m := range list {
			cp[i] = m.Clone()
		}
		out[cat] = cp
	}
	return out
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunStopped     RunStatus = "stopped"      // stop signal seen between steps
	RunStepAborted RunStatus = "step_aborted" // a step set script_stop
	RunFailed      RunStatus = "failed"       // the sandbox could not be prepared
)

// Trigger sources recorded on a run.
const (
	SourceHotkey = "hotkey"
	SourcePanel  = "panel"
	SourceAPI    = "api"
	SourceMQTT   = "mqtt"
)

// Run records one execution of a macro.
type Run struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	MacroName string    `json:"macro_name"`
	Source    string    `json:"trigger_source"`
	Status    RunStatus `json:"status"`

	StepsTotal     int `json:"steps_total"`
	StepsCompleted int `json:"steps_completed"`
	StepsFailed    int `json:"steps_failed"`

	Results  []string      `json:"results"`
	Failures []StepFailure `json:"failures,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  *int       `json:"duration_ms,omitempty"`
}

// Finished reports whether the run has left the running state.
func (r *Run) Finished() bool {
	return r.Status != RunRunning
}

// Clone returns an independent copy of r.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Results = append([]string(nil), r.Results...)
	cp.Failures = append([]StepFailure(nil), r.Failures...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	if r.DurationMS != nil {
		d := *r.DurationMS
		cp.DurationMS = &d
	}
	return &cp
}

// StepFailure records a step whose code raised an error.
type StepFailure struct {
	StepIndex int    `json:"step_index"`
	StepName  string `json:"step_name"`
	Error     string `json:"error"`
}
