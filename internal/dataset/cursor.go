package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Row is one work-list entry. Values keep their spreadsheet text.
type Row struct {
	No      string `json:"no"`
	Pump    string `json:"pump"`
	Led     string `json:"led"`
	Dmx2Vfd string `json:"dmx2vfd"`
}

// Field names a Row column for JumpTo.
type Field string

// Searchable fields.
const (
	FieldNo      Field = "no"
	FieldPump    Field = "pump"
	FieldLed     Field = "led"
	FieldDmx2Vfd Field = "dmx2vfd"
)

// ParseField validates a field name.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldNo, FieldPump, FieldLed, FieldDmx2Vfd:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

func (r Row) value(f Field) string {
	switch f {
	case FieldPump:
		return r.Pump
	case FieldLed:
		return r.Led
	case FieldDmx2Vfd:
		return r.Dmx2Vfd
	default:
		return r.No
	}
}

// Snapshot is a consistent view of the cursor.
type Snapshot struct {
	Total         int  `json:"total_rows"`
	Index         int  `json:"current_row_index"`
	HasRow        bool `json:"has_row"`
	Current       Row  `json:"current"`
	AutoIncrement bool `json:"auto_increment"`
}

// Cursor is the dataset and its current position. Safe for concurrent use.
type Cursor struct {
	mu            sync.Mutex
	rows          []Row
	index         int
	autoIncrement bool
}

// NewCursor returns an empty cursor.
func NewCursor(autoIncrement bool) *Cursor {
	return &Cursor{autoIncrement: autoIncrement}
}

// Import replaces the dataset and rewinds to the first row.
func (c *Cursor) Import(rows []Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append([]Row(nil), rows...)
	c.index = 0
}

// Current returns the row under the cursor.
func (c *Cursor) Current() (Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

func (c *Cursor) currentLocked() (Row, bool) {
	if c.index < 0 || c.index >= len(c.rows) {
		return Row{}, false
	}
	return c.rows[c.index], true
}

// Index returns the zero-based cursor position.
func (c *Cursor) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Len returns the number of rows.
func (c *Cursor) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

// Rows returns a copy of the dataset.
func (c *Cursor) Rows() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Row(nil), c.rows...)
}

// SetAutoIncrement sets the advance gate.
func (c *Cursor) SetAutoIncrement(on bool) {
	c.mu.Lock()
	c.autoIncrement = on
	c.mu.Unlock()
}

// AutoIncrement reports the advance gate.
func (c *Cursor) AutoIncrement() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoIncrement
}

// Advance moves to the next row. It does nothing and returns false when
// auto-increment is off, the dataset is empty or the cursor is on the last
// row.
func (c *Cursor) Advance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.autoIncrement || len(c.rows) == 0 || c.index >= len(c.rows)-1 {
		return false
	}
	c.index++
	return true
}

// JumpTo moves to the first row whose field equals value and reports
// whether one was found. FieldNo addresses rows by 1-based position.
// Values that both parse as numbers are compared numerically, so "7" finds
// "7.0".
func (c *Cursor) JumpTo(field Field, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if field == FieldNo {
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > len(c.rows) {
			return false
		}
		c.index = n - 1
		return true
	}

	for i, r := range c.rows {
		if sameValue(r.value(field), value) {
			c.index = i
			return true
		}
	}
	return false
}

// Status describes the cursor for the operator.
func (c *Cursor) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.rows) == 0 {
		return "no dataset imported"
	}
	return fmt.Sprintf("row %d/%d", c.index+1, len(c.rows))
}

// Snapshot returns the cursor state in one locked read.
func (c *Cursor) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.currentLocked()
	return Snapshot{
		Total:         len(c.rows),
		Index:         c.index,
		HasRow:        ok,
		Current:       row,
		AutoIncrement: c.autoIncrement,
	}
}

func sameValue(a, b string) bool {
	a = strings.TrimSpace(a)
	if a == b {
		return true
	}
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	return errA == nil && errB == nil && fa == fb
}
