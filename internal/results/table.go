package results

import (
	"slices"

	"github.com/dgallion1/deckgest/internal/schema"
)

// URLKey is the contract key rendered as a link in the table view.
const URLKey = "url"

// viewOrder puts the columns investors scan first ahead of the rest.
var viewOrder = []string{"company", "industry", "roundSize", "url", "traction", "description"}

type Column struct {
	Key    string `json:"key" msgpack:"key"`
	Header string `json:"header" msgpack:"header"`
}

type Cell struct {
	Value string `json:"value" msgpack:"value"`
	Href  string `json:"href,omitempty" msgpack:"href,omitempty"`
}

type Row struct {
	Cells []Cell `json:"cells" msgpack:"cells"`
}

// Table is the interactive view of a run. Link cells exist only here,
// never in the spreadsheet.
type Table struct {
	Columns []Column `json:"columns" msgpack:"columns"`
	Rows    []Row    `json:"rows" msgpack:"rows"`
}

// BuildTable lays out records with a File Name column first, then the
// contract fields in view order.
func BuildTable(records []Record, c *schema.Contract) Table {
	fields := c.Fields()
	slices.SortStableFunc(fields, func(a, b schema.Field) int {
		return rank(a.Key) - rank(b.Key)
	})

	t := Table{
		Columns: make([]Column, 0, len(fields)+1),
		Rows:    make([]Row, 0, len(records)),
	}
	t.Columns = append(t.Columns, Column{Key: schema.FileNameKey, Header: "File Name"})
	for _, f := range fields {
		t.Columns = append(t.Columns, Column{Key: f.Key, Header: f.Name})
	}

	for _, r := range records {
		row := Row{Cells: make([]Cell, 0, len(t.Columns))}
		row.Cells = append(row.Cells, Cell{Value: r.FileName})
		for _, f := range fields {
			cell := Cell{Value: r.Value(f.Key)}
			if f.Key == URLKey && cell.Value != schema.NotAvailable {
				cell.Href = cell.Value
			}
			row.Cells = append(row.Cells, cell)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func rank(key string) int {
	if i := slices.Index(viewOrder, key); i >= 0 {
		return i
	}
	return len(viewOrder)
}
