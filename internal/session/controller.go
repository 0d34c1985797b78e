package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/acs-auto/internal/acs"
	"github.com/nerrad567/acs-auto/internal/dataset"
	"github.com/nerrad567/acs-auto/internal/macro"
	"github.com/nerrad567/acs-auto/internal/panel"
	"github.com/nerrad567/acs-auto/internal/stop"
)

// Extra context variables set per category.
const (
	VarSelectedDeviceType  = "selected_device_type"
	VarSelectedDevicePower = "selected_device_power"
	VarPumpAddress         = "pump_address"
	VarLedAddress          = "led_address"
	VarDmx2VfdAddress      = "dmx2vfd_address"
	VarCurrentRowIndex     = "current_row_index"
	VarTotalRows           = "total_rows"
)

// Macros resolves the macro a category runs. *macro.Store implements it.
type Macros interface {
	GetActive(category macro.Category) (macro.Macro, bool)
}

// Runner starts macro runs. *macro.Runner implements it.
type Runner interface {
	Run(req macro.RunRequest) (*macro.Run, error)
	Busy() bool
}

// Panel receives UI tasks. *panel.Queue implements it.
type Panel interface {
	Post(t panel.Task) bool
	Notify(level, message string) bool
}

// Clicker clicks inside the target window. *acs.Workflow implements it.
type Clicker interface {
	ClickConfiguration(ctx context.Context, x, y int) error
}

// Logger defines the logging interface used by the controller.
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

// Deps holds the collaborators of a Controller. Clicker and Logger are
// optional.
type Deps struct {
	Macros  Macros
	Runner  Runner
	Cursor  *dataset.Cursor
	Panel   Panel
	Stop    *stop.Signal
	Clicker Clicker
	Logger  Logger
}

// Controller handles operator commands from every trigger source.
type Controller struct {
	macros  Macros
	runner  Runner
	cursor  *dataset.Cursor
	panel   Panel
	stop    *stop.Signal
	clicker Clicker
	logger  Logger

	mu         sync.RWMutex
	selections map[macro.Category]acs.Selection
}

// New creates a controller.
func New(deps Deps) (*Controller, error) {
	switch {
	case deps.Macros == nil:
		return nil, fmt.Errorf("session: macros are required")
	case deps.Runner == nil:
		return nil, fmt.Errorf("session: runner is required")
	case deps.Cursor == nil:
		return nil, fmt.Errorf("session: dataset cursor is required")
	case deps.Panel == nil:
		return nil, fmt.Errorf("session: panel is required")
	case deps.Stop == nil:
		return nil, fmt.Errorf("session: stop signal is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{
		macros:  deps.Macros,
		runner:  deps.Runner,
		cursor:  deps.Cursor,
		panel:   deps.Panel,
		stop:    deps.Stop,
		clicker: deps.Clicker,
		logger:  logger,
		selections: map[macro.Category]acs.Selection{
			macro.CategoryUIDCol1: acs.DefaultSelection(),
			macro.CategoryUIDCol2: acs.DefaultSelection(),
		},
	}, nil
}

// RunCategory starts the active macro of category. source is recorded on
// the run (macro.SourceHotkey and friends).
//
// Nothing is started, and a notice is posted, when a run is in progress
// (macro.ErrBusy), the category has no macro, or a dataset category has no
// current row.
func (c *Controller) RunCategory(category macro.Category, source string) (*macro.Run, error) {
	if c.runner.Busy() {
		c.logger.Warn("run refused, runner busy", "category", category, "source", source)
		c.panel.Notify(panel.LevelWarning, "A macro is already running. Please wait.")
		return nil, macro.ErrBusy
	}

	m, ok := c.macros.GetActive(category)
	if !ok {
		c.panel.Notify(panel.LevelWarning, fmt.Sprintf("No active macro for %s.", category))
		return nil, fmt.Errorf("%w: %s", ErrNoActiveMacro, category)
	}

	extra, err := c.extraContext(category)
	if err != nil {
		c.logger.Warn("run not started", "category", category, "error", err)
		c.panel.Notify(panel.LevelWarning, noticeFor(err))
		return nil, err
	}

	c.logger.Info("starting macro", "category", category, "macro", m.Name, "source", source)
	c.panel.Post(func(pm *panel.Model) {
		pm.SetControlsEnabled(false)
		pm.SetActivity("running " + m.Name)
	})

	run, err := c.runner.Run(macro.RunRequest{
		Category: category,
		Macro:    m,
		Source:   source,
		Extra:    extra,
		Finally:  c.finished,
	})
	if err != nil {
		// Lost a race with another trigger; the winning run's finalizer
		// restores the panel.
		c.panel.Notify(panel.LevelWarning, "A macro is already running. Please wait.")
		return nil, err
	}
	return run, nil
}

func (c *Controller) extraContext(category macro.Category) (map[string]any, error) {
	if category.UsesDataset() {
		return c.datasetContext()
	}
	sel, err := c.Selection(category)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		VarSelectedDeviceType:  sel.DeviceType,
		VarSelectedDevicePower: sel.DevicePower,
	}, nil
}

func (c *Controller) datasetContext() (map[string]any, error) {
	snap := c.cursor.Snapshot()
	if snap.Total == 0 {
		return nil, ErrNoDataset
	}
	if !snap.HasRow {
		return nil, ErrNoCurrentRow
	}
	return map[string]any{
		VarPumpAddress:     snap.Current.Pump,
		VarLedAddress:      snap.Current.Led,
		VarDmx2VfdAddress:  snap.Current.Dmx2Vfd,
		VarCurrentRowIndex: snap.Index,
		VarTotalRows:       snap.Total,
	}, nil
}

// finished runs on the worker goroutine once a run ends. Panel updates go
// through the queue in a fixed order.
func (c *Controller) finished(run *macro.Run) {
	c.panel.Post(func(m *panel.Model) { m.SetActivity(panel.ActivityIdle) })
	c.panel.Post(func(m *panel.Model) { m.SetControlsEnabled(true) })
	c.postDatasetStatus()
	c.postNavigation()

	level := panel.LevelInfo
	switch {
	case run.Status == macro.RunFailed:
		level = panel.LevelError
	case run.Status == macro.RunStopped || run.StepsFailed > 0:
		level = panel.LevelWarning
	}
	msg := fmt.Sprintf("%s: %s", run.MacroName, run.Status)
	if len(run.Results) > 0 {
		msg += " | " + strings.Join(run.Results, " | ")
	}
	c.panel.Notify(level, msg)
}

// ToggleStop flips the stop signal and returns its new state.
func (c *Controller) ToggleStop() bool {
	on := c.stop.Toggle()
	c.reportStop(on)
	return on
}

// SetStop raises or clears the stop signal.
func (c *Controller) SetStop(on bool) {
	if on {
		c.stop.Set()
	} else {
		c.stop.Clear()
	}
	c.reportStop(on)
}

// Stopped reports the stop signal.
func (c *Controller) Stopped() bool {
	return c.stop.IsSet()
}

func (c *Controller) reportStop(on bool) {
	if on {
		c.logger.Warn("stop requested")
	} else {
		c.logger.Info("stop cleared")
	}
	c.panel.Post(func(m *panel.Model) { m.SetStopped(on) })
}

// Selection returns the device selection of a UID column category.
func (c *Controller) Selection(category macro.Category) (acs.Selection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sel, ok := c.selections[category]
	if !ok {
		return acs.Selection{}, fmt.Errorf("%w: %s", ErrNotSelectable, category)
	}
	return sel, nil
}

// Selections returns every UID column selection.
func (c *Controller) Selections() map[macro.Category]acs.Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[macro.Category]acs.Selection, len(c.selections))
	for k, v := range c.selections {
		out[k] = v
	}
	return out
}

// SetSelection stores a device selection. A power that the type does not
// offer is replaced by the type's first power; the stored value is
// returned.
func (c *Controller) SetSelection(category macro.Category, sel acs.Selection) (acs.Selection, error) {
	sel, ok := sel.Normalise()
	if !ok {
		return acs.Selection{}, fmt.Errorf("%w: %q", acs.ErrUnknownDeviceType, sel.DeviceType)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.selections[category]; !exists {
		return acs.Selection{}, fmt.Errorf("%w: %s", ErrNotSelectable, category)
	}
	c.selections[category] = sel
	c.logger.Info("device selection changed", "category", category, "type", sel.DeviceType, "power", sel.DevicePower)
	return sel, nil
}

// ImportFile loads a work-list and replaces the dataset. On failure the
// current dataset is kept.
func (c *Controller) ImportFile(path, sheet string) (int, error) {
	rows, err := dataset.LoadFile(path, sheet)
	if err != nil {
		c.logger.Error("dataset import failed", "path", path, "error", err)
		c.panel.Notify(panel.LevelError, "Dataset import failed: "+err.Error())
		return 0, err
	}
	c.ImportRows(rows)
	c.logger.Info("dataset imported", "path", path, "rows", len(rows))
	return len(rows), nil
}

// ImportRows replaces the dataset and rewinds the cursor.
func (c *Controller) ImportRows(rows []dataset.Row) {
	c.cursor.Import(rows)
	c.RefreshDataset()
	c.panel.Notify(panel.LevelInfo, fmt.Sprintf("Dataset imported: %d rows.", len(rows)))
}

// JumpTo moves the cursor to the first row whose field matches value.
func (c *Controller) JumpTo(field dataset.Field, value string) bool {
	found := c.cursor.JumpTo(field, value)
	if !found {
		c.logger.Debug("no dataset row matches", "field", field, "value", value)
	}
	c.RefreshDataset()
	return found
}

// SetAutoIncrement sets the dataset advance gate.
func (c *Controller) SetAutoIncrement(on bool) {
	c.cursor.SetAutoIncrement(on)
}

// Dataset returns the cursor state.
func (c *Controller) Dataset() dataset.Snapshot {
	return c.cursor.Snapshot()
}

// RefreshDataset posts the dataset status and navigation fields.
func (c *Controller) RefreshDataset() {
	c.postDatasetStatus()
	c.postNavigation()
}

func (c *Controller) postDatasetStatus() {
	status := c.cursor.Status()
	c.panel.Post(func(m *panel.Model) { m.SetDatasetStatus(status) })
}

func (c *Controller) postNavigation() {
	snap := c.cursor.Snapshot()
	var nav panel.Navigation
	if snap.HasRow {
		nav = panel.Navigation{
			No:      fmt.Sprint(snap.Index + 1),
			Pump:    snap.Current.Pump,
			Led:     snap.Current.Led,
			Dmx2Vfd: snap.Current.Dmx2Vfd,
		}
	}
	c.panel.Post(func(m *panel.Model) { m.SetNavigation(nav) })
}

// ClickConfiguration clicks an offset inside the target window. Errors are
// logged and returned; they never stop the process.
func (c *Controller) ClickConfiguration(ctx context.Context, x, y int) error {
	if c.clicker == nil {
		return acs.ErrNoWindow
	}
	if err := c.clicker.ClickConfiguration(ctx, x, y); err != nil {
		c.logger.Error("configuration click failed", "x", x, "y", y, "error", err)
		return err
	}
	return nil
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, ErrNoDataset):
		return "Please import a dataset first."
	case errors.Is(err, ErrNoCurrentRow):
		return "The dataset has no current row."
	default:
		return err.Error()
	}
}
