package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// NotAvailable is the sentinel for values missing from the source text.
const NotAvailable = "N/A"

// FileNameKey is the record property carrying the source file name. No
// field may derive the same key.
const FileNameKey = "fileName"

var (
	ErrEmptyContract = errors.New("schema has no named fields")
	ErrDuplicateKey  = errors.New("schema fields derive the same key")
	ErrInvalidName   = errors.New("schema field name has no letters or digits")
	ErrReservedKey   = errors.New("schema field key is reserved")
)

// Field is a named schema field resolved to its contract key.
type Field struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Contract is the immutable set of string properties an extraction must
// return, derived from the named fields of a schema in order.
type Contract struct {
	fields []Field
	output *jsonschema.Schema
	record *jsonschema.Schema
}

// Build derives a contract from fields. Fields with blank names are skipped.
func Build(fields []SchemaField) (*Contract, error) {
	c := &Contract{}
	seen := make(map[string]string, len(fields))
	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		key := KeyFor(name)
		switch {
		case key == "":
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
		case key == FileNameKey:
			return nil, fmt.Errorf("%w: %q", ErrReservedKey, name)
		}
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: %q and %q -> %s", ErrDuplicateKey, prev, name, key)
		}
		seen[key] = name
		c.fields = append(c.fields, Field{Key: key, Name: name, Description: strings.TrimSpace(f.Description)})
	}
	if len(c.fields) == 0 {
		return nil, ErrEmptyContract
	}

	var err error
	if c.output, err = compile(c.objectSchema(false)); err != nil {
		return nil, err
	}
	if c.record, err = compile(c.objectSchema(true)); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the contract of DefaultFields.
func Default() *Contract {
	c, err := Build(DefaultFields())
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Contract) Fields() []Field {
	out := make([]Field, len(c.fields))
	copy(out, c.fields)
	return out
}

func (c *Contract) Keys() []string {
	keys := make([]string, len(c.fields))
	for i, f := range c.fields {
		keys[i] = f.Key
	}
	return keys
}

// JSONSchema is the strict object schema sent as the LLM response format.
func (c *Contract) JSONSchema() map[string]any {
	return c.objectSchema(false)
}

// objectSchema builds the object schema; record variants also carry the
// file name and tolerate extra properties.
func (c *Contract) objectSchema(record bool) map[string]any {
	props := make(map[string]any, len(c.fields)+1)
	required := make([]string, 0, len(c.fields)+1)
	if record {
		props[FileNameKey] = map[string]any{"type": "string"}
		required = append(required, FileNameKey)
	}
	for _, f := range c.fields {
		p := map[string]any{"type": "string"}
		if f.Description != "" {
			p["description"] = f.Description
		}
		props[f.Key] = p
		required = append(required, f.Key)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": record,
	}
}

// DecodeOutput validates a raw LLM response against the contract and
// returns its values with blanks replaced by NotAvailable.
func (c *Contract) DecodeOutput(raw []byte) (map[string]string, error) {
	v, err := validate(c.output, raw)
	if err != nil {
		return nil, err
	}
	return c.Normalize(toStrings(v)), nil
}

// DecodeRecord validates one exported record object, returning its file
// name and contract values.
func (c *Contract) DecodeRecord(raw []byte) (string, map[string]string, error) {
	v, err := validate(c.record, raw)
	if err != nil {
		return "", nil, err
	}
	values := toStrings(v)
	return values[FileNameKey], c.Normalize(values), nil
}

// Normalize keeps only contract keys and fills missing or blank values
// with NotAvailable.
func (c *Contract) Normalize(values map[string]string) map[string]string {
	out := make(map[string]string, len(c.fields))
	for _, f := range c.fields {
		v := strings.TrimSpace(values[f.Key])
		if v == "" {
			v = NotAvailable
		}
		out[f.Key] = v
	}
	return out
}

func compile(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
}

func validate(s *jsonschema.Schema, raw []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return nil, fmt.Errorf("json does not match schema: %w", err)
	}
	obj, _ := v.(map[string]any)
	return obj, nil
}

func toStrings(obj map[string]any) map[string]string {
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
