package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/deckgest/internal/parser"
	"github.com/dgallion1/deckgest/internal/results"
	"github.com/dgallion1/deckgest/internal/schema"
)

var (
	ErrFileNotFound     = errors.New("file not found")
	ErrFileNotFailed    = errors.New("only failed files can be retried")
	ErrRunInProgress    = errors.New("a processing run is already in progress")
	ErrNothingToProcess = errors.New("no extracted files to process")
	ErrSessionClosed    = errors.New("session closed")
)

// Upload is one file offered at intake.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Rejection explains why an upload never became a tracked file.
type Rejection struct {
	FileName string `json:"fileName"`
	Reason   string `json:"reason"`
}

// Session owns the tracked files, the schema and the latest results of
// one user's extraction workflow.
type Session struct {
	ID        string
	CreatedAt time.Time

	deps    Deps
	log     *slog.Logger
	invoker *Invoker
	schema  *schema.Model
	results results.Aggregator

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	files           []*TrackedFile
	contract        *schema.Contract
	contractErr     error
	resultsContract *schema.Contract
	running         bool
	closed          bool
	inflight        int
	idle            chan struct{}
	touchedAt       time.Time
}

// NewSession starts an empty session with the given starter schema.
func NewSession(deps Deps, fields []schema.SchemaField) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	idle := make(chan struct{})
	close(idle)

	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		deps:      deps,
		log:       deps.Log.With("session_id", id),
		schema:    schema.NewModel(fields),
		ctx:       ctx,
		cancel:    cancel,
		idle:      idle,
		touchedAt: time.Now(),
	}
	s.invoker = NewInvoker(deps.Fields, s.log)
	s.contract, s.contractErr = schema.Build(fields)
	s.schema.Subscribe(s.onSchemaChange)
	return s
}

// onSchemaChange rebuilds the contract from the model's current fields,
// not the notified copy. Notifications from concurrent edits can arrive
// out of order, and the last one to take mu must still see the latest
// schema.
func (s *Session) onSchemaChange([]schema.SchemaField) {
	s.mu.Lock()
	c, err := schema.Build(s.schema.Fields())
	s.contract, s.contractErr = c, err
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("schema has no valid contract", "error", err)
	}
}

// Schema is the session's editable field list.
func (s *Session) Schema() *schema.Model {
	return s.schema
}

// Contract returns the contract derived from the current schema.
func (s *Session) Contract() (*schema.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contract, s.contractErr
}

// Add filters uploads to PDFs, registers each as pending and starts its
// extraction. Non-PDF uploads are rejected and never tracked.
func (s *Session) Add(uploads []Upload) ([]FileSnapshot, []Rejection) {
	var (
		accepted []*TrackedFile
		rejected []Rejection
	)
	for _, u := range uploads {
		if !parser.IsPDF(u.FileName, u.ContentType, u.Data) {
			rejected = append(rejected, Rejection{FileName: u.FileName, Reason: "only PDF files are supported"})
			continue
		}
		accepted = append(accepted, newTrackedFile(uuid.NewString(), u.FileName, parser.PDFContentType, u.Data))
	}
	if len(rejected) > 0 {
		s.log.Warn("rejected non-PDF uploads", "count", len(rejected))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		for _, f := range accepted {
			rejected = append(rejected, Rejection{FileName: f.FileName, Reason: ErrSessionClosed.Error()})
		}
		return nil, rejected
	}
	s.files = append(s.files, accepted...)
	s.touchedAt = time.Now()
	for _, f := range accepted {
		s.startLocked(f)
	}
	s.mu.Unlock()

	snaps := make([]FileSnapshot, len(accepted))
	for i, f := range accepted {
		snaps[i] = f.Snapshot()
	}
	return snaps, rejected
}

// startLocked launches extraction of f under its own cancellable context.
// Caller holds mu.
func (s *Session) startLocked(f *TrackedFile) {
	ctx, cancel := context.WithCancel(s.ctx)
	f.setCancel(cancel)
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++
	go s.extract(ctx, cancel, f)
}

func (s *Session) extract(ctx context.Context, cancel context.CancelFunc, f *TrackedFile) {
	defer s.done()
	defer cancel()
	log := s.log.With("file_id", f.ID, "file_name", f.FileName)

	if err := s.deps.Pool.Acquire(ctx, 1); err != nil {
		s.finish(f, "", err, log)
		return
	}
	defer s.deps.Pool.Release(1)

	if ctx.Err() != nil {
		s.finish(f, "", ctx.Err(), log)
		return
	}
	f.setStatus(StatusExtracting)
	start := time.Now()
	text, err := s.deps.Extractor.ExtractText(ctx, f.Data(), f.FileName)
	if err == nil && strings.TrimSpace(text) == "" {
		err = parser.ErrEmptyText
	}
	log = log.With("elapsed_ms", time.Since(start).Milliseconds())
	s.finish(f, text, err, log)
}

// finish applies an extraction result unless the file was removed in the
// meantime, in which case the result is discarded.
func (s *Session) finish(f *TrackedFile, text string, err error, log *slog.Logger) {
	if !s.tracked(f) {
		log.Info("discarding result for removed file")
		return
	}
	if err != nil {
		log.Error("text extraction failed", "error", err)
		f.markFailed()
		return
	}
	f.markExtracted(text)
	log.Info("text extracted", "chars", len(text))
}

func (s *Session) done() {
	s.mu.Lock()
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
	s.mu.Unlock()
}

func (s *Session) tracked(f *TrackedFile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.files, f)
}

// WaitIdle blocks until no extraction is pending or running.
func (s *Session) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Remove drops a file and cancels its in-flight extraction.
func (s *Session) Remove(id string) error {
	s.mu.Lock()
	i := slices.IndexFunc(s.files, func(f *TrackedFile) bool { return f.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return ErrFileNotFound
	}
	f := s.files[i]
	s.files = slices.Delete(s.files, i, i+1)
	s.touchedAt = time.Now()
	s.mu.Unlock()

	f.abort()
	s.log.Info("file removed", "file_id", id)
	return nil
}

// Retry restarts extraction of a failed file.
func (s *Session) Retry(id string) (FileSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.findLocked(id)
	if f == nil {
		return FileSnapshot{}, ErrFileNotFound
	}
	if s.closed {
		return FileSnapshot{}, ErrSessionClosed
	}
	if !f.reset() {
		return FileSnapshot{}, ErrFileNotFailed
	}
	s.startLocked(f)
	return f.Snapshot(), nil
}

func (s *Session) Files() []FileSnapshot {
	s.mu.Lock()
	files := slices.Clone(s.files)
	s.mu.Unlock()

	out := make([]FileSnapshot, len(files))
	for i, f := range files {
		out[i] = f.Snapshot()
	}
	return out
}

func (s *Session) File(id string) (*TrackedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.findLocked(id); f != nil {
		return f, nil
	}
	return nil, ErrFileNotFound
}

func (s *Session) findLocked(id string) *TrackedFile {
	for _, f := range s.files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// Process runs field extraction over every extracted file, in upload
// order, and replaces the session results with the new records. Failed
// and still-extracting files are skipped.
func (s *Session) Process(ctx context.Context) (BatchResult, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return BatchResult{}, ErrSessionClosed
	case s.running:
		s.mu.Unlock()
		return BatchResult{}, ErrRunInProgress
	case s.contractErr != nil:
		err := s.contractErr
		s.mu.Unlock()
		return BatchResult{}, err
	}
	contract := s.contract
	var items []Item
	for _, f := range s.files {
		if f.Status() == StatusExtracted {
			items = append(items, Item{FileID: f.ID, FileName: f.FileName, Text: f.Text()})
		}
	}
	if len(items) == 0 {
		s.mu.Unlock()
		return BatchResult{}, ErrNothingToProcess
	}
	s.running = true
	s.touchedAt = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.touchedAt = time.Now()
		s.mu.Unlock()
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.log.Info("processing batch", "files", len(items))
	res := s.invoker.Run(runCtx, items, contract)

	s.mu.Lock()
	s.results.Replace(res.Records())
	s.resultsContract = contract
	s.mu.Unlock()
	return res, nil
}

// Results returns the records of the latest run with the contract they
// were produced under. The contract is nil before the first run.
func (s *Session) Results() ([]results.Record, *schema.Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results.Records(), s.resultsContract
}

// SessionSnapshot is a JSON-safe summary of a session.
type SessionSnapshot struct {
	ID          string               `json:"id"`
	CreatedAt   time.Time            `json:"createdAt"`
	Files       []FileSnapshot       `json:"files"`
	Schema      []schema.SchemaField `json:"schema"`
	ResultCount int                  `json:"resultCount"`
	Processing  bool                 `json:"processing"`
}

func (s *Session) Snapshot() SessionSnapshot {
	files := s.Files()
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SessionSnapshot{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		Files:       files,
		Schema:      s.schema.Fields(),
		ResultCount: s.results.Len(),
		Processing:  running,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.touchedAt = time.Now()
	s.mu.Unlock()
}

// expired reports whether the session has been idle longer than ttl.
// A session with a run or extraction in flight never expires.
func (s *Session) expired(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.running && s.inflight == 0 && now.Sub(s.touchedAt) > ttl
}

// Close cancels all in-flight work. Further uploads are rejected.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.log.Info("session closed")
}
