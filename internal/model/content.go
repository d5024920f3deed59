package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"instructapi/internal/formula"
)

// Languages supported for localized step text.
var Languages = []string{"en", "fr", "es", "de", "hi"}

// DefaultLanguage must always be present in a LocalizedText.
const DefaultLanguage = "en"

// LocalizedText maps a language code to text.
type LocalizedText map[string]string

// Validate checks that the default language is present and that every
// language code is supported.
func (t LocalizedText) Validate() error {
	if strings.TrimSpace(t[DefaultLanguage]) == "" {
		return fmt.Errorf("%q text is required", DefaultLanguage)
	}
	for lang := range t {
		if !supportedLanguage(lang) {
			return fmt.Errorf("unsupported language %q", lang)
		}
	}
	return nil
}

func supportedLanguage(lang string) bool {
	for _, l := range Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// PlaceholderType is the input widget of a step placeholder.
type PlaceholderType string

const (
	PlaceholderTextbox   PlaceholderType = "textbox"
	PlaceholderDropdown  PlaceholderType = "dropdown"
	PlaceholderRadio     PlaceholderType = "radio"
	PlaceholderAuto      PlaceholderType = "auto"
	PlaceholderHyperlink PlaceholderType = "hyperlink"
	PlaceholderDate      PlaceholderType = "date"
	PlaceholderTime      PlaceholderType = "time"
	PlaceholderDatetime  PlaceholderType = "datetime"
	PlaceholderImage     PlaceholderType = "image"
	PlaceholderGif       PlaceholderType = "gif"
	PlaceholderCheckbox  PlaceholderType = "checkbox"
)

func (p PlaceholderType) valid() bool {
	switch p {
	case PlaceholderTextbox, PlaceholderDropdown, PlaceholderRadio, PlaceholderAuto,
		PlaceholderHyperlink, PlaceholderDate, PlaceholderTime, PlaceholderDatetime,
		PlaceholderImage, PlaceholderGif, PlaceholderCheckbox:
		return true
	}
	return false
}

// Placeholder is an input field embedded in a step's text.
// Formula is only meaningful for auto placeholders; see package formula.
type Placeholder struct {
	Type     PlaceholderType `json:"type"`
	Default  string          `json:"default"`
	Value    string          `json:"value"`
	Options  []string        `json:"options,omitempty"`
	FromStep *int            `json:"from_step,omitempty"`
	Formula  string          `json:"formula,omitempty"`
}

// Step is one numbered step of a procedure.
type Step struct {
	Step           int                    `json:"step"`
	Text           LocalizedText          `json:"text"`
	Placeholders   map[string]Placeholder `json:"placeholders,omitempty"`
	HasPlaceholder bool                   `json:"has_placeholder"`
}

// ValidateSteps checks step numbering, text and placeholder definitions.
// Placeholders with an empty type are defaulted to textbox.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return errors.New("at least one step is required")
	}
	seen := make(map[int]struct{}, len(steps))
	for i := range steps {
		s := &steps[i]
		if s.Step <= 0 {
			return fmt.Errorf("step %d: number must be positive", i+1)
		}
		if _, dup := seen[s.Step]; dup {
			return fmt.Errorf("step %d: duplicate step number", s.Step)
		}
		seen[s.Step] = struct{}{}
		if err := s.Text.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", s.Step, err)
		}
		for key, ph := range s.Placeholders {
			if ph.Type == "" {
				ph.Type = PlaceholderTextbox
				s.Placeholders[key] = ph
			}
			if !ph.Type.valid() {
				return fmt.Errorf("step %d: placeholder %q: unknown type %q", s.Step, key, ph.Type)
			}
			if ph.FromStep != nil && (*ph.FromStep <= 0 || *ph.FromStep >= s.Step) {
				return fmt.Errorf("step %d: placeholder %q: from_step must reference an earlier step", s.Step, key)
			}
		}
		if len(s.Placeholders) > 0 {
			s.HasPlaceholder = true
		}
	}
	return checkFormulas(steps)
}

// checkFormulas parses every formula and makes sure it only references other
// placeholders of the same document. Auto placeholders whose inputs all carry
// a numeric value or default get their value computed.
func checkFormulas(steps []Step) error {
	known := map[string]bool{}
	values := map[string]float64{}
	for _, s := range steps {
		for key, ph := range s.Placeholders {
			known[key] = true
			if v, ok := ph.number(); ok && ph.Formula == "" {
				values[key] = v
			}
		}
	}

	for i := range steps {
		s := &steps[i]
		for key, ph := range s.Placeholders {
			if ph.Formula == "" {
				continue
			}
			expr, err := formula.Parse(ph.Formula)
			if err != nil {
				return fmt.Errorf("step %d: placeholder %q: %w", s.Step, key, err)
			}
			for _, ref := range expr.Keys() {
				if ref == key || !known[ref] {
					return fmt.Errorf("step %d: placeholder %q: formula references unknown placeholder %q", s.Step, key, ref)
				}
			}
			if ph.Type != PlaceholderAuto {
				continue
			}
			if v, err := expr.Eval(values); err == nil {
				ph.Value = strconv.FormatFloat(v, 'f', -1, 64)
				s.Placeholders[key] = ph
			}
		}
	}
	return nil
}

// number returns the numeric value of the placeholder, falling back to its default.
func (p Placeholder) number() (float64, bool) {
	raw := strings.TrimSpace(p.Value)
	if raw == "" {
		raw = strings.TrimSpace(p.Default)
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}

// InstructionContent is the payload of a master instruction.
type InstructionContent struct {
	InstructionName LocalizedText `json:"instruction_name"`
	Instructions    []Step        `json:"instructions"`
}

// Validate implements Content.
func (c InstructionContent) Validate() error {
	if err := c.InstructionName.Validate(); err != nil {
		return fmt.Errorf("instruction_name: %w", err)
	}
	return ValidateSteps(c.Instructions)
}

// ActivityContent is the payload of a master equipment activity.
type ActivityContent struct {
	ActivityName LocalizedText `json:"activity_name"`
	Activities   []Step        `json:"activities"`
}

// Validate implements Content.
func (c ActivityContent) Validate() error {
	if err := c.ActivityName.Validate(); err != nil {
		return fmt.Errorf("activity_name: %w", err)
	}
	return ValidateSteps(c.Activities)
}
