package macro

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Store and Runner.
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

// newMacroPrefix names macros created from the panel.
const newMacroPrefix = "New script"

// newStepName names steps added without a name.
const newStepName = "New block"

// Store is the in-memory macro document with write-through persistence.
//
// Every mutation works on a copy of the category, is validated and
// normalised, then saved; the cache changes only after the repository
// accepted the write.
type Store struct {
	repo   Repository
	logger Logger
	now    func() time.Time

	mu  sync.RWMutex
	doc Document
}

// NewStore creates a store over repo. Call Load before use.
func NewStore(repo Repository) *Store {
	return &Store{
		repo:   repo,
		logger: noopLogger{},
		now:    time.Now,
		doc:    defaultDocument(),
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Load reads the document from the repository.
//
// Corrupt data is replaced with defaults, which are persisted, and
// regenerated is reported true. Categories missing from the stored document
// get their default macro. Lists are normalised so each non-empty category
// has exactly one active macro.
func (s *Store) Load(ctx context.Context) (regenerated bool, err error) {
	doc, err := s.repo.Load(ctx)
	switch {
	case errors.Is(err, ErrCorrupt):
		s.logger.Warn("macro store corrupt, regenerating defaults", "error", err)
		doc, regenerated = defaultDocument(), true
	case err != nil:
		return false, fmt.Errorf("loading macros: %w", err)
	}

	defaults := defaultDocument()
	changed := regenerated
	for cat := range doc {
		if _, ok := validCategories[cat]; !ok {
			s.logger.Warn("dropping macros of unknown category", "category", cat)
			delete(doc, cat)
			changed = true
		}
	}
	for _, cat := range AllCategories() {
		if len(doc[cat]) == 0 {
			doc[cat] = defaults[cat]
			changed = true
		}
		normalise(doc[cat])
	}

	if changed {
		if err := s.repo.Save(ctx, doc); err != nil {
			return regenerated, fmt.Errorf("saving default macros: %w", err)
		}
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()

	s.logger.Info("macros loaded", "regenerated", regenerated)
	return regenerated, nil
}

// Document returns a copy of every category.
func (s *Store) Document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// List returns copies of the macros of category in order.
func (s *Store) List(category Category) ([]Macro, error) {
	if _, ok := validCategories[category]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.doc[category]
	out := make([]Macro, len(list))
	for i, m := range list {
		out[i] = m.Clone()
	}
	return out, nil
}

// Get returns a copy of the macro at index.
func (s *Store) Get(category Category, index int) (Macro, error) {
	list, err := s.List(category)
	if err != nil {
		return Macro{}, err
	}
	if index < 0 || index >= len(list) {
		return Macro{}, fmt.Errorf("%w: %s[%d]", ErrMacroNotFound, category, index)
	}
	return list[index], nil
}

// GetActive returns the active macro of category, or the first macro when
// none is flagged. It reports false for an empty or unknown category.
func (s *Store) GetActive(category Category) (Macro, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.doc[category]
	for _, m := range list {
		if m.Active {
			return m.Clone(), true
		}
	}
	if len(list) > 0 {
		return list[0].Clone(), true
	}
	return Macro{}, false
}

// SetActive makes the macro at index the only active one of its category.
func (s *Store) SetActive(ctx context.Context, category Category, index int) error {
	return s.mutate(ctx, category, func(list []Macro) ([]Macro, error) {
		if err := checkIndex(list, category, index); err != nil {
			return nil, err
		}
		for i := range list {
			list[i].Active = i == index
		}
		return list, nil
	})
}

// Create appends a macro named "New script N" with the lowest free N. It
// is active only when the category was empty.
func (s *Store) Create(ctx context.Context, category Category) (Macro, error) {
	var created Macro
	err := s.mutate(ctx, category, func(list []Macro) ([]Macro, error) {
		taken := make(map[string]bool, len(list))
		for _, m := range list {
			taken[m.Name] = true
		}
		name := ""
		for n := 1; ; n++ {
			name = fmt.Sprintf("%s %d", newMacroPrefix, n)
			if !taken[name] {
				break
			}
		}
		now := s.now().UTC()
		created = Macro{
			Name:      name,
			Active:    len(list) == 0,
			Steps:     []Step{{Name: newStepName, Code: DefaultStepCode}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		list = append(list, created)
		normalise(list)
		created = list[len(list)-1].Clone()
		return list, nil
	})
	if err != nil {
		return Macro{}, err
	}
	return created, nil
}

// Rename changes the name of the macro at index.
func (s *Store) Rename(ctx context.Context, category Category, index int, name string) error {
	name, err := ValidateName(name)
	if err != nil {
		return err
	}
	return s.mutate(ctx, category, func(list []Macro) ([]Macro, error) {
		if err := checkIndex(list, category, index); err != nil {
			return nil, err
		}
		list[index].Name = name
		list[index].UpdatedAt = s.now().UTC()
		return list, nil
	})
}

// Delete removes the macro at index. If it was active, the new first macro
// becomes active. The last macro of a category cannot be deleted.
func (s *Store) Delete(ctx context.Context, category Category, index int) error {
	return s.mutate(ctx, category, func(list []Macro) ([]Macro, error) {
		if err := checkIndex(list, category, index); err != nil {
			return nil, err
		}
		if len(list) == 1 {
			return nil, ErrLastMacro
		}
		return append(list[:index], list[index+1:]...), nil
	})
}

// AddStep appends a step to the macro at index and returns its position.
// An empty name uses the default step name.
func (s *Store) AddStep(ctx context.Context, category Category, index int, name string) (int, error) {
	if name == "" {
		name = newStepName
	}
	name, err := ValidateName(name)
	if err != nil {
		return 0, err
	}
	pos := 0
	err = s.editSteps(ctx, category, index, func(steps []Step) ([]Step, error) {
		steps = append(steps, Step{Name: name, Code: DefaultStepCode})
		pos = len(steps) - 1
		return steps, nil
	})
	return pos, err
}

// RenameStep changes the name of a step.
func (s *Store) RenameStep(ctx context.Context, category Category, index, step int, name string) error {
	name, err := ValidateName(name)
	if err != nil {
		return err
	}
	return s.editSteps(ctx, category, index, func(steps []Step) ([]Step, error) {
		if err := checkStep(steps, step); err != nil {
			return nil, err
		}
		steps[step].Name = name
		return steps, nil
	})
}

// UpdateStepCode replaces the code of a step.
func (s *Store) UpdateStepCode(ctx context.Context, category Category, index, step int, code string) error {
	return s.editSteps(ctx, category, index, func(steps []Step) ([]Step, error) {
		if err := checkStep(steps, step); err != nil {
			return nil, err
		}
		steps[step].Code = code
		return steps, nil
	})
}

// DeleteStep removes a step.
func (s *Store) DeleteStep(ctx context.Context, category Category, index, step int) error {
	return s.editSteps(ctx, category, index, func(steps []Step) ([]Step, error) {
		if err := checkStep(steps, step); err != nil {
			return nil, err
		}
		return append(steps[:step], steps[step+1:]...), nil
	})
}

// MoveStep swaps a step with its neighbour: delta -1 moves it up, +1 down.
// Moving past either end is a no-op.
func (s *Store) MoveStep(ctx context.Context, category Category, index, step, delta int) error {
	return s.editSteps(ctx, category, index, func(steps []Step) ([]Step, error) {
		if err := checkStep(steps, step); err != nil {
			return nil, err
		}
		target := step + 1
		if delta < 0 {
			target = step - 1
		}
		if delta == 0 || target < 0 || target >= len(steps) {
			return steps, nil
		}
		steps[step], steps[target] = steps[target], steps[step]
		return steps, nil
	})
}

// Export renders every category in the exchange JSON format.
func (s *Store) Export() ([]byte, error) {
	return EncodeDocument(s.Document())
}

// Import replaces the categories present in data. Categories that are
// missing or empty in data keep their current macros. Invalid input changes
// nothing.
func (s *Store) Import(ctx context.Context, data []byte) error {
	incoming, err := DecodeDocument(data)
	if err != nil {
		return err
	}
	for _, list := range incoming {
		for i := range list {
			list[i].Name = trimmed(list[i].Name)
		}
	}
	if err := ValidateDocument(incoming); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.Clone()
	now := s.now().UTC()
	for cat, list := range incoming {
		if len(list) == 0 {
			continue
		}
		for i := range list {
			if list[i].UpdatedAt.IsZero() {
				list[i].UpdatedAt = now
			}
		}
		normalise(list)
		next[cat] = list
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return fmt.Errorf("saving imported macros: %w", err)
	}
	s.doc = next
	s.logger.Info("macros imported", "categories", len(incoming))
	return nil
}

// ─── Mutation Helpers ───────────────────────────────────────────────────────

func (s *Store) mutate(ctx context.Context, category Category, fn func(list []Macro) ([]Macro, error)) error {
	if _, ok := validCategories[category]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.doc[category]
	work := make([]Macro, len(current))
	for i, m := range current {
		work[i] = m.Clone()
	}

	list, err := fn(work)
	if err != nil {
		return err
	}
	normalise(list)
	if err := validateList(list); err != nil {
		return err
	}

	next := s.doc.Clone()
	next[category] = list
	if err := s.repo.Save(ctx, next); err != nil {
		return fmt.Errorf("saving macros: %w", err)
	}
	s.doc = next
	return nil
}

func (s *Store) editSteps(ctx context.Context, category Category, index int, fn func(steps []Step) ([]Step, error)) error {
	return s.mutate(ctx, category, func(list []Macro) ([]Macro, error) {
		if err := checkIndex(list, category, index); err != nil {
			return nil, err
		}
		steps, err := fn(list[index].Steps)
		if err != nil {
			return nil, err
		}
		list[index].Steps = steps
		list[index].UpdatedAt = s.now().UTC()
		return list, nil
	})
}

func checkIndex(list []Macro, category Category, index int) error {
	if index < 0 || index >= len(list) {
		return fmt.Errorf("%w: %s[%d]", ErrMacroNotFound, category, index)
	}
	return nil
}

func checkStep(steps []Step, step int) error {
	if step < 0 || step >= len(steps) {
		return fmt.Errorf("%w: %d", ErrStepNotFound, step)
	}
	return nil
}

func trimmed(s string) string {
	name, err := ValidateName(s)
	if err != nil {
		return s
	}
	return name
}
