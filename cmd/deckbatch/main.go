// Command deckbatch extracts investment memo fields from every PDF in a
// directory and writes them to one spreadsheet.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/dgallion1/deckgest/internal/config"
	"github.com/dgallion1/deckgest/internal/export"
	"github.com/dgallion1/deckgest/internal/pipeline"
	"github.com/dgallion1/deckgest/internal/schema"
)

func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir        = flag.String("dir", "", "directory of PDF decks to process (required)")
		out        = flag.String("out", "", "output XLSX path (defaults to <dir>/investment_memos.xlsx)")
		schemaFile = flag.String("schema", "", "YAML schema preset (defaults to SCHEMA_FILE or the built-in fields)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(*dir, export.FileName)
	}

	cfg, err := config.Load()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if *schemaFile != "" {
		cfg.SchemaFile = *schemaFile
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *dir, *out, log); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, dir, out string, log *slog.Logger) error {
	fields := schema.DefaultFields()
	if cfg.SchemaFile != "" {
		var err error
		if fields, err = schema.LoadPreset(cfg.SchemaFile); err != nil {
			return err
		}
	}

	uploads, err := readDecks(dir)
	if err != nil {
		return err
	}
	if len(uploads) == 0 {
		return fmt.Errorf("no PDF files in %s", dir)
	}

	deps, closeDeps := pipeline.NewDeps(cfg, nil, log)
	defer closeDeps()

	sess := pipeline.NewSession(deps, fields)
	defer sess.Close()

	_, rejected := sess.Add(uploads)
	for _, r := range rejected {
		log.Warn("skipping file", "file_name", r.FileName, "reason", r.Reason)
	}
	if err := sess.WaitIdle(ctx); err != nil {
		return err
	}
	for _, f := range sess.Files() {
		if f.Status == pipeline.StatusFailed {
			log.Warn("text extraction failed", "file_name", f.FileName)
		}
	}

	res, err := sess.Process(ctx)
	if err != nil {
		return err
	}
	for _, o := range res.Failures() {
		log.Warn("field extraction failed", "file_name", o.FileName, "error", o.Err)
	}

	records, contract := sess.Results()
	data, err := export.NewExporter(log).WriteXLSX(records, contract)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	fmt.Printf("Wrote %d of %d decks to %s\n", len(records), len(uploads), out)
	return nil
}

// readDecks loads every .pdf file directly inside dir, sorted by name.
func readDecks(dir string) ([]pipeline.Upload, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var uploads []pipeline.Upload
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		uploads = append(uploads, pipeline.Upload{FileName: e.Name(), Data: data})
	}
	slices.SortFunc(uploads, func(a, b pipeline.Upload) int { return strings.Compare(a.FileName, b.FileName) })
	return uploads, nil
}
