package macro

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxSteps      = 200
	maxCodeLength = 64 * 1024
)

var validCategories map[Category]struct{}

func init() {
	validCategories = make(map[Category]struct{}, len(AllCategories()))
	for _, c := range AllCategories() {
		validCategories[c] = struct{}{}
	}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if _, ok := validCategories[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// ValidateName checks a macro or step name and returns it trimmed.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return name, nil
}

// ValidateMacro checks a macro's name and steps.
func ValidateMacro(m *Macro) error {
	if m == nil {
		return ErrInvalidMacro
	}
	if _, err := ValidateName(m.Name); err != nil {
		return err
	}
	if len(m.Steps) > maxSteps {
		return fmt.Errorf("%w: exceeds maximum of %d steps", ErrInvalidMacro, maxSteps)
	}
	for i, s := range m.Steps {
		if _, err := ValidateName(s.Name); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if len(s.Code) > maxCodeLength {
			return fmt.Errorf("%w: step %q exceeds %d bytes of code", ErrInvalidMacro, s.Name, maxCodeLength)
		}
	}
	return nil
}

// ValidateDocument checks every category and macro of d.
func ValidateDocument(d Document) error {
	for cat, list := range d {
		if _, ok := validCategories[cat]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
		}
		if err := validateList(list); err != nil {
			return fmt.Errorf("category %s: %w", cat, err)
		}
	}
	return nil
}

func validateList(list []Macro) error {
	seen := make(map[string]bool, len(list))
	for i := range list {
		if err := ValidateMacro(&list[i]); err != nil {
			return err
		}
		name := strings.TrimSpace(list[i].Name)
		if seen[name] {
			return fmt.Errorf("%w: %q", ErrNameExists, name)
		}
		seen[name] = true
	}
	return nil
}

// normalise enforces the one-active invariant and fills IDs and step
// slices. The first active macro wins; with none active the first macro
// becomes active.
func normalise(list []Macro) {
	active := -1
	for i := range list {
		list[i].Name = strings.TrimSpace(list[i].Name)
		if list[i].ID == "" {
			list[i].ID = uuid.NewString()
		}
		if list[i].Steps == nil {
			list[i].Steps = []Step{}
		}
		if list[i].Active && active < 0 {
			active = i
		}
		list[i].Active = false
	}
	if len(list) == 0 {
		return
	}
	if active < 0 {
		active = 0
	}
	list[active].Active = true
}

// defaultDocument returns one active example macro per category.
func defaultDocument() Document {
	names := map[Category]string{
		CategoryUIDCol1:     "Default UID column 1",
		CategoryUIDCol2:     "Default UID column 2",
		CategoryAddress:     "Standard address write",
		CategoryTest:        "Standard test",
		CategoryAddressTest: "Write and test",
	}
	doc := make(Document, len(names))
	for _, cat := range AllCategories() {
		list := []Macro{{
			Name:   names[cat],
			Active: true,
			Steps:  []Step{{Name: "Example", Code: DefaultStepCode}},
		}}
		normalise(list)
		doc[cat] = list
	}
	return doc
}
