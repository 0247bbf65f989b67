package schema

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Observer receives a copy of the field list after every change.
type Observer func(fields []SchemaField)

// Model is the ordered, editable field list of one session.
type Model struct {
	mu        sync.Mutex
	fields    []SchemaField
	observers []Observer
}

func NewModel(initial []SchemaField) *Model {
	return &Model{fields: slices.Clone(initial)}
}

// Subscribe registers fn for change notifications. Observers run
// synchronously after the change is applied, outside the model lock, so
// concurrent edits may notify out of order. Observers that keep derived
// state should read Fields rather than trust the copy they are given.
func (m *Model) Subscribe(fn Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

func (m *Model) Fields() []SchemaField {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.fields)
}

// Add appends f, assigning an id when it has none.
func (m *Model) Add(f SchemaField) (SchemaField, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	m.mu.Lock()
	if m.indexLocked(f.ID) >= 0 {
		m.mu.Unlock()
		return SchemaField{}, fmt.Errorf("%w: %s", ErrDuplicateID, f.ID)
	}
	m.fields = append(m.fields, f)
	m.notifyAndUnlock()
	return f, nil
}

func (m *Model) Remove(id string) error {
	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		return ErrFieldNotFound
	}
	m.fields = slices.Delete(m.fields, i, i+1)
	m.notifyAndUnlock()
	return nil
}

func (m *Model) Update(id string, u FieldUpdate) (SchemaField, error) {
	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		return SchemaField{}, ErrFieldNotFound
	}
	if u.Name != nil {
		m.fields[i].Name = *u.Name
	}
	if u.Description != nil {
		m.fields[i].Description = *u.Description
	}
	f := m.fields[i]
	m.notifyAndUnlock()
	return f, nil
}

// Replace swaps in a whole new field list.
func (m *Model) Replace(fields []SchemaField) error {
	seen := make(map[string]bool, len(fields))
	next := slices.Clone(fields)
	for i := range next {
		if next[i].ID == "" {
			next[i].ID = uuid.NewString()
		}
		if seen[next[i].ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, next[i].ID)
		}
		seen[next[i].ID] = true
	}
	m.mu.Lock()
	m.fields = next
	m.notifyAndUnlock()
	return nil
}

func (m *Model) indexLocked(id string) int {
	return slices.IndexFunc(m.fields, func(f SchemaField) bool { return f.ID == id })
}

// notifyAndUnlock must be called with mu held.
func (m *Model) notifyAndUnlock() {
	snapshot := slices.Clone(m.fields)
	observers := slices.Clone(m.observers)
	m.mu.Unlock()
	for _, fn := range observers {
		fn(slices.Clone(snapshot))
	}
}
