package panel

import (
	"sync"
	"time"
)

// ActivityIdle is the activity shown when no macro is running.
const ActivityIdle = "idle"

// maxNotices bounds the notice history kept in the state.
const maxNotices = 20

// Notice levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Navigation mirrors the current dataset row in the jump fields.
type Navigation struct {
	No      string `json:"no"`
	Pump    string `json:"pump"`
	Led     string `json:"led"`
	Dmx2Vfd string `json:"dmx2vfd"`
}

// Notice is a message for the operator.
type Notice struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// State is what the panel renders.
type State struct {
	ControlsEnabled bool       `json:"controls_enabled"`
	Activity        string     `json:"activity"`
	DatasetStatus   string     `json:"dataset_status"`
	Navigation      Navigation `json:"navigation"`
	Stopped         bool       `json:"stopped"`
	Notices         []Notice   `json:"notices"`

	// Revision increases with every change.
	Revision uint64 `json:"revision"`
}

// Model is the panel state. Setters are called from queue tasks only;
// Snapshot may be called from any goroutine.
type Model struct {
	mu    sync.RWMutex
	state State
}

// NewModel returns the idle state.
func NewModel() *Model {
	return &Model{state: State{
		ControlsEnabled: true,
		Activity:        ActivityIdle,
		DatasetStatus:   "no dataset imported",
		Notices:         []Notice{},
	}}
}

// Snapshot returns a copy of the state.
func (m *Model) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	s.Notices = append([]Notice(nil), m.state.Notices...)
	return s
}

// SetControlsEnabled enables or disables the run controls.
func (m *Model) SetControlsEnabled(on bool) {
	m.update(func(s *State) { s.ControlsEnabled = on })
}

// SetActivity sets the activity line.
func (m *Model) SetActivity(activity string) {
	m.update(func(s *State) { s.Activity = activity })
}

// SetDatasetStatus sets the dataset status line.
func (m *Model) SetDatasetStatus(status string) {
	m.update(func(s *State) { s.DatasetStatus = status })
}

// SetNavigation fills the jump fields.
func (m *Model) SetNavigation(n Navigation) {
	m.update(func(s *State) { s.Navigation = n })
}

// SetStopped mirrors the stop signal.
func (m *Model) SetStopped(on bool) {
	m.update(func(s *State) { s.Stopped = on })
}

// Notify appends a notice, dropping the oldest beyond the history limit.
func (m *Model) Notify(level, message string) {
	m.update(func(s *State) {
		s.Notices = append(s.Notices, Notice{Level: level, Message: message, Time: time.Now().UTC()})
		if n := len(s.Notices); n > maxNotices {
			s.Notices = append([]Notice(nil), s.Notices[n-maxNotices:]...)
		}
	})
}

func (m *Model) revision() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Revision
}

func (m *Model) update(fn func(s *State)) {
	m.mu.Lock()
	fn(&m.state)
	m.state.Revision++
	m.mu.Unlock()
}
