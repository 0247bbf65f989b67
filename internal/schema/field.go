// Package schema holds the user-editable list of fields to extract from each
// deck and derives the extraction contract the LLM response must satisfy.
package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var (
	ErrFieldNotFound = errors.New("schema field not found")
	ErrDuplicateID   = errors.New("duplicate schema field id")
)

// SchemaField is one column the user wants extracted.
type SchemaField struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Key is the lower camel case JSON property derived from the field name,
// e.g. "Round Size" -> "roundSize", "URL" -> "url".
func (f SchemaField) Key() string {
	return KeyFor(f.Name)
}

// KeyFor derives a contract key from a display name.
func KeyFor(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var sb strings.Builder
	for i, w := range words {
		lower := strings.ToLower(w)
		if i == 0 {
			sb.WriteString(lower)
			continue
		}
		runes := []rune(lower)
		runes[0] = unicode.ToUpper(runes[0])
		sb.WriteString(string(runes))
	}
	key := sb.String()
	if key != "" && unicode.IsDigit([]rune(key)[0]) {
		key = "field" + key
	}
	return key
}

// FieldUpdate is a partial edit; nil members are left unchanged.
type FieldUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// DefaultFields is the starter schema. Its keys match the six-field
// investment memo contract used when no schema is supplied.
func DefaultFields() []SchemaField {
	return []SchemaField{
		{ID: "1", Name: "Company", Description: "Company name"},
		{ID: "2", Name: "Description", Description: "Company description"},
		{ID: "3", Name: "URL", Description: "Company URL"},
		{ID: "4", Name: "Industry", Description: "Company industry"},
		{ID: "5", Name: "Traction", Description: "Summary of company traction, including revenue, users, and growth"},
		{ID: "6", Name: "Round Size", Description: "Looking for $xM in funding at $xM valuation"},
	}
}

type presetFile struct {
	Fields []SchemaField `yaml:"fields"`
}

// ParsePreset decodes a YAML schema preset. Fields without an id get a
// generated one.
func ParsePreset(data []byte) ([]SchemaField, error) {
	var pf presetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse schema preset: %w", err)
	}
	seen := make(map[string]bool, len(pf.Fields))
	for i := range pf.Fields {
		if pf.Fields[i].ID == "" {
			pf.Fields[i].ID = uuid.NewString()
		}
		if seen[pf.Fields[i].ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, pf.Fields[i].ID)
		}
		seen[pf.Fields[i].ID] = true
	}
	return pf.Fields, nil
}

// LoadPreset reads a YAML schema preset from disk.
func LoadPreset(path string) ([]SchemaField, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema preset: %w", err)
	}
	return ParsePreset(data)
}
