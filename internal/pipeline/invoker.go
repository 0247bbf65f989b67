package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgallion1/deckgest/internal/extract"
	"github.com/dgallion1/deckgest/internal/results"
	"github.com/dgallion1/deckgest/internal/schema"
)

// Item is one extracted file handed to the invoker.
type Item struct {
	FileID   string
	FileName string
	Text     string
}

// Outcome is the result for one item: a record or an error, never both.
type Outcome struct {
	FileID   string
	FileName string
	Record   *results.Record
	Err      error
}

// BatchResult holds exactly one outcome per input item, in input order.
type BatchResult struct {
	Outcomes []Outcome
}

func (b BatchResult) Records() []results.Record {
	out := make([]results.Record, 0, len(b.Outcomes))
	for _, o := range b.Outcomes {
		if o.Record != nil {
			out = append(out, *o.Record)
		}
	}
	return out
}

func (b BatchResult) Failures() []Outcome {
	var out []Outcome
	for _, o := range b.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

func (b BatchResult) HasErrors() bool {
	return len(b.Failures()) > 0
}

// Invoker runs field extraction over a batch, one file at a time.
type Invoker struct {
	fields extract.FieldExtractor
	log    *slog.Logger
}

func NewInvoker(fields extract.FieldExtractor, log *slog.Logger) *Invoker {
	return &Invoker{fields: fields, log: log}
}

// Run processes items strictly in order with a single request in flight.
// A failure on one item is recorded and the batch moves on; once ctx is
// done the remaining items fail with the context error.
func (inv *Invoker) Run(ctx context.Context, items []Item, c *schema.Contract) BatchResult {
	start := time.Now()
	res := BatchResult{Outcomes: make([]Outcome, 0, len(items))}

	for i, it := range items {
		log := inv.log.With("file_id", it.FileID, "file_name", it.FileName, "index", i)
		out := Outcome{FileID: it.FileID, FileName: it.FileName}

		if err := ctx.Err(); err != nil {
			out.Err = err
			res.Outcomes = append(res.Outcomes, out)
			continue
		}

		values, err := inv.fields.ExtractFields(ctx, it.Text, c)
		if err != nil {
			log.Error("field extraction failed", "error", err)
			out.Err = err
		} else {
			out.Record = &results.Record{FileName: it.FileName, Values: c.Normalize(values)}
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	inv.log.Info("batch complete",
		"items", len(items),
		"failed", len(res.Failures()),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}
