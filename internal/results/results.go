// Package results holds the records of the latest extraction run and renders
// them as a table.
package results

import (
	"encoding/json"
	"maps"
	"slices"
	"sync"

	"github.com/dgallion1/deckgest/internal/schema"
)

// Record is the extraction result of one file. It marshals flat:
// {"fileName": ..., "<key>": ..., ...}.
type Record struct {
	FileName string
	Values   map[string]string
}

func (r Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]string, len(r.Values)+1)
	maps.Copy(flat, r.Values)
	flat[schema.FileNameKey] = r.FileName
	return json.Marshal(flat)
}

// Value returns the value for key, or "N/A" when absent.
func (r Record) Value(key string) string {
	if v, ok := r.Values[key]; ok {
		return v
	}
	return schema.NotAvailable
}

// Aggregator holds the ordered records of the most recent run. Each run
// replaces the previous records wholesale.
type Aggregator struct {
	mu      sync.RWMutex
	records []Record
}

func (a *Aggregator) Replace(records []Record) {
	a.mu.Lock()
	a.records = slices.Clone(records)
	a.mu.Unlock()
}

func (a *Aggregator) Records() []Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.records)
}

func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}
