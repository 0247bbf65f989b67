package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/semaphore"

	"github.com/dgallion1/deckgest/internal/config"
	"github.com/dgallion1/deckgest/internal/export"
	"github.com/dgallion1/deckgest/internal/extract"
	"github.com/dgallion1/deckgest/internal/pipeline"
	"github.com/dgallion1/deckgest/internal/schema"
)

var pdf = []byte("%PDF-1.7\nfake")

const deckText = "# Acme Inc\n\nAcme Inc raises $5M seed for warehouse robots."

func textFor(fileName string) string {
	return deckText + "\n\nSource: " + fileName
}

// stubText returns textFor(name) for every file unless the name is in fail.
type stubText struct {
	fail map[string]bool
}

func (s *stubText) ExtractText(ctx context.Context, data []byte, fileName string) (string, error) {
	if s.fail[fileName] {
		return "", errors.New("llamaparse: status 500")
	}
	return textFor(fileName), nil
}

// stubFields answers with fixed values and fails any text containing
// failOn. It records the contracts it was called with.
type stubFields struct {
	values map[string]string
	failOn string

	mu        sync.Mutex
	contracts []*schema.Contract
}

func (s *stubFields) ExtractFields(ctx context.Context, text string, c *schema.Contract) (map[string]string, error) {
	s.mu.Lock()
	s.contracts = append(s.contracts, c)
	s.mu.Unlock()
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return nil, errors.New("openai: status 500")
	}
	return s.values, nil
}

func acmeFields() *stubFields {
	return &stubFields{values: map[string]string{"company": "Acme Inc", "roundSize": "$5M seed"}}
}

func newTestServer(t *testing.T, text *stubText, fields *stubFields) (*Server, *pipeline.SessionStore) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := pipeline.Deps{
		Extractor: text,
		Fields:    fields,
		Pool:      semaphore.NewWeighted(2),
		Log:       log,
	}
	store := pipeline.NewSessionStore(deps, schema.DefaultFields(), time.Hour)
	t.Cleanup(func() { store.Stop(context.Background()) })

	cfg := config.Config{MaxUploadBytes: 1 << 20, OpenAIModel: "gpt-test"}
	return NewServer(store, extract.NewLLMStats(time.Hour), log, cfg), store
}

type part struct {
	field, name string
	data        []byte
}

func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, h http.Handler, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return do(t, h, method, path, body, "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["code"]
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubText{}, acmeFields())
	rec := do(t, srv, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name       string
		parts      []part
		fail       map[string]bool
		wantStatus int
		wantCode   string
	}{
		{name: "pdf", parts: []part{{"file", "pitch.pdf", pdf}}, wantStatus: http.StatusOK},
		{name: "no file", parts: nil, wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "wrong field", parts: []part{{"upload", "pitch.pdf", pdf}}, wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "not a pdf", parts: []part{{"file", "notes.txt", []byte("hello")}}, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "provider error", parts: []part{{"file", "bad.pdf", pdf}}, fail: map[string]bool{"bad.pdf": true}, wantStatus: http.StatusInternalServerError, wantCode: "UPSTREAM_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &stubText{fail: tt.fail}, acmeFields())
			body, ct := multipartBody(t, tt.parts...)
			rec := do(t, srv, http.MethodPost, "/api/extract", body, ct)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
				return
			}
			assert.Equal(t, textFor("pitch.pdf"), decode[map[string]string](t, rec)["text"])
		})
	}
}

func TestProcess(t *testing.T) {
	srv, _ := newTestServer(t, &stubText{}, acmeFields())

	rec := doJSON(t, srv, http.MethodPost, "/api/process", map[string]string{
		"text":     "Acme Inc raises $5M seed...",
		"fileName": "pitch.pdf",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]string{
		"fileName":    "pitch.pdf",
		"company":     "Acme Inc",
		"description": "N/A",
		"url":         "N/A",
		"industry":    "N/A",
		"traction":    "N/A",
		"roundSize":   "$5M seed",
	}, resp.Data)
}

func TestProcessCustomSchema(t *testing.T) {
	fields := &stubFields{values: map[string]string{"founder": "Ada"}}
	srv, _ := newTestServer(t, &stubText{}, fields)

	rec := doJSON(t, srv, http.MethodPost, "/api/process", map[string]any{
		"text":     "Ada founded Acme.",
		"fileName": "pitch.pdf",
		"schema":   []schema.SchemaField{{ID: "a", Name: "Founder"}, {ID: "b", Name: "Company"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := decode[struct {
		Data map[string]string `json:"data"`
	}](t, rec).Data
	assert.Equal(t, "Ada", data["founder"])
	assert.Equal(t, "N/A", data["company"])
	assert.NotContains(t, data, "roundSize")
	require.Len(t, fields.contracts, 1)
	assert.Equal(t, []string{"founder", "company"}, fields.contracts[0].Keys())
}

func TestProcessErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"empty text", map[string]string{"text": "  ", "fileName": "a.pdf"}, http.StatusBadRequest, "BAD_REQUEST"},
		{"duplicate keys", map[string]any{"text": "x", "schema": []schema.SchemaField{{ID: "1", Name: "URL"}, {ID: "2", Name: "url"}}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"empty schema", map[string]any{"text": "x", "schema": []schema.SchemaField{}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"llm failure", map[string]string{"text": "boom", "fileName": "a.pdf"}, http.StatusInternalServerError, "UPSTREAM_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &stubText{}, &stubFields{failOn: "boom"})
			rec := doJSON(t, srv, http.MethodPost, "/api/process", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		srv, _ := newTestServer(t, &stubText{}, acmeFields())
		rec := do(t, srv, http.MethodPost, "/api/process", strings.NewReader("{"), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func readSheet(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	return rows
}

var defaultHeader = []string{"File Name", "Company", "Description", "URL", "Industry", "Traction", "Round Size"}

func TestDownloadPitchScenario(t *testing.T) {
	srv, _ := newTestServer(t, &stubText{}, acmeFields())

	record := map[string]string{
		"fileName": "pitch.pdf", "company": "Acme Inc", "description": "N/A", "url": "N/A",
		"industry": "N/A", "traction": "N/A", "roundSize": "$5M seed",
	}
	rec := doJSON(t, srv, http.MethodPost, "/api/download", []map[string]string{record})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=investment_memos.xlsx", rec.Header().Get("Content-Disposition"))

	rows := readSheet(t, rec.Body.Bytes())
	require.Len(t, rows, 2)
	assert.Equal(t, defaultHeader, rows[0])
	assert.Equal(t, "pitch.pdf", rows[1][0])
	assert.Equal(t, "Acme Inc", rows[1][1])
	assert.Equal(t, "$5M seed", rows[1][6])
}

func TestDownloadEmptyListIsHeaderOnly(t *testing.T) {
	srv, _ := newTestServer(t, &stubText{}, acmeFields())
	rec := do(t, srv, http.MethodPost, "/api/download", strings.NewReader("[]"), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rows := readSheet(t, rec.Body.Bytes())
	require.Len(t, rows, 1)
	assert.Equal(t, defaultHeader, rows[0])
}

func TestDownloadWithSchema(t *testing.T) {
	srv, _ := newTestServer(t, &stubText{}, acmeFields())
	rec := doJSON(t, srv, http.MethodPost, "/api/download", map[string]any{
		"schema":  []schema.SchemaField{{ID: "1", Name: "Founder"}},
		"records": []map[string]string{{"fileName": "a.pdf", "founder": "Ada"}, {"fileName": "b.pdf", "founder": ""}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rows := readSheet(t, rec.Body.Bytes())
	assert.Equal(t, [][]string{{"File Name", "Founder"}, {"a.pdf", "Ada"}, {"b.pdf", "N/A"}}, rows)
}

func TestDownloadErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"malformed", "{not json", http.StatusBadRequest, "BAD_REQUEST"},
		{"object without records", `{"schema":[]}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"missing field", `[{"fileName":"a.pdf","company":"Acme"}]`, http.StatusInternalServerError, "VALIDATION_ERROR"},
		{"non-string value", `[{"fileName":"a.pdf","company":1,"description":"","url":"","industry":"","traction":"","roundSize":""}]`, http.StatusInternalServerError, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &stubText{}, acmeFields())
			rec := do(t, srv, http.MethodPost, "/api/download", strings.NewReader(tt.body), "application/json")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestLLMStats(t *testing.T) {
	srv, _ := newTestServer(t, &stubText{}, acmeFields())
	rec := do(t, srv, http.MethodGet, "/api/stats/llm", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gpt-test", decode[map[string]any](t, rec)["model"])
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"pitch.pdf":          "pitch.pdf",
		"../../etc/passwd":   "passwd",
		`C:\decks\pitch.pdf`: "pitch.pdf",
		"":                   "unnamed",
		"a..b.pdf":           "a_b.pdf",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}
