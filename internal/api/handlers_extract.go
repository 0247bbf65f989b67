package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/deckgest/internal/export"
	"github.com/dgallion1/deckgest/internal/parser"
	"github.com/dgallion1/deckgest/internal/pipeline"
	"github.com/dgallion1/deckgest/internal/results"
	"github.com/dgallion1/deckgest/internal/schema"
)

const multipartMemory = 32 << 20

var errFileTooLarge = errors.New("file too large")

// handleExtract turns one uploaded PDF into text.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, newBadRequest("No file provided"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, newBadRequest("No file provided"))
		return
	}
	up, err := s.readUpload(headers[0])
	if err != nil {
		writeError(w, newBadRequest(err.Error()))
		return
	}
	if !parser.IsPDF(up.FileName, up.ContentType, up.Data) {
		writeError(w, newValidationError("Only PDF files are supported"))
		return
	}

	text, err := s.sessions.Deps().ExtractText(r.Context(), up.Data, up.FileName)
	if err != nil {
		s.log.Error("pdf extraction failed", "file_name", up.FileName, "error", err)
		writeError(w, newUpstreamError("Failed to process PDF"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

type processRequest struct {
	Text     string               `json:"text"`
	FileName string               `json:"fileName"`
	Schema   []schema.SchemaField `json:"schema,omitempty"`
}

func (req processRequest) validate() *APIError {
	if strings.TrimSpace(req.Text) == "" {
		return newBadRequest("No text provided")
	}
	return nil
}

// contract resolves the request schema; an absent schema means the
// default investment memo contract.
func contractFor(fields []schema.SchemaField) (*schema.Contract, *APIError) {
	if fields == nil {
		return schema.Default(), nil
	}
	c, err := schema.Build(fields)
	if err != nil {
		return nil, newValidationError(err.Error())
	}
	return c, nil
}

// handleProcess extracts one structured record from text.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, newBadRequest("Invalid request body"))
		return
	}
	if apiErr := req.validate(); apiErr != nil {
		writeError(w, apiErr)
		return
	}
	c, apiErr := contractFor(req.Schema)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	values, err := s.sessions.Deps().Fields.ExtractFields(r.Context(), req.Text, c)
	if err != nil {
		s.log.Error("field extraction failed", "file_name", req.FileName, "error", err)
		writeError(w, newUpstreamError("Error processing text"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    results.Record{FileName: req.FileName, Values: c.Normalize(values)},
	})
}

type downloadRequest struct {
	Schema  []schema.SchemaField `json:"schema,omitempty"`
	Records []json.RawMessage    `json:"records"`
}

// decodeDownload accepts either a bare array of records or an object
// carrying the schema the records were extracted under.
func decodeDownload(body []byte) (downloadRequest, error) {
	var req downloadRequest
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err := json.Unmarshal(trimmed, &req.Records)
		return req, err
	}
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return req, err
	}
	if req.Records == nil {
		return req, errors.New("records is required")
	}
	return req, nil
}

// handleDownload validates records and returns them as a spreadsheet.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	if err != nil {
		writeError(w, newBadRequest("Invalid request body"))
		return
	}
	// A body that is not JSON or lacks records is the caller's fault and
	// gets a 400. Records that do not match the contract keep the route's
	// historical 500.
	req, err := decodeDownload(body)
	if err != nil {
		writeError(w, newBadRequest("Invalid request body"))
		return
	}
	c, apiErr := contractFor(req.Schema)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	records := make([]results.Record, 0, len(req.Records))
	for i, raw := range req.Records {
		fileName, values, err := c.DecodeRecord(raw)
		if err != nil {
			s.log.Error("invalid download record", "index", i, "error", err)
			writeError(w, &APIError{Status: http.StatusInternalServerError, Code: "VALIDATION_ERROR", Message: "Invalid record data"})
			return
		}
		records = append(records, results.Record{FileName: fileName, Values: values})
	}
	s.writeWorkbook(w, records, c)
}

func (s *Server) writeWorkbook(w http.ResponseWriter, records []results.Record, c *schema.Contract) {
	data, err := s.exporter.WriteXLSX(records, c)
	if err != nil {
		s.log.Error("xlsx export failed", "error", err)
		writeError(w, newInternalError("Error generating Excel file"))
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", export.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// readUpload reads one multipart file, capped at MaxUploadBytes.
func (s *Server) readUpload(fh *multipart.FileHeader) (pipeline.Upload, error) {
	name := sanitizeFilename(fh.Filename)
	f, err := fh.Open()
	if err != nil {
		return pipeline.Upload{}, fmt.Errorf("failed to open %s", name)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return pipeline.Upload{}, fmt.Errorf("failed to read %s", name)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return pipeline.Upload{}, fmt.Errorf("%w: %s", errFileTooLarge, name)
	}
	return pipeline.Upload{
		FileName:    name,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
