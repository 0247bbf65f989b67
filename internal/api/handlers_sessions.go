package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/deckgest/internal/pipeline"
	"github.com/dgallion1/deckgest/internal/preview"
	"github.com/dgallion1/deckgest/internal/results"
)

// session resolves {sessionID}, writing a 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*pipeline.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.sessions.Get(id)
	if err != nil {
		writeError(w, newNotFound("session", id))
		return nil, false
	}
	return sess, true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Delete(id); err != nil {
		writeError(w, newNotFound("session", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadFiles accepts any number of files under "files" or "file".
// Accepted PDFs start extracting immediately; the response does not wait.
func (s *Server) handleUploadFiles(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, newBadRequest("invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		writeError(w, newBadRequest("No file provided"))
		return
	}

	var (
		uploads  []pipeline.Upload
		rejected []pipeline.Rejection
	)
	for _, fh := range headers {
		up, err := s.readUpload(fh)
		if err != nil {
			rejected = append(rejected, pipeline.Rejection{FileName: sanitizeFilename(fh.Filename), Reason: err.Error()})
			continue
		}
		uploads = append(uploads, up)
	}

	accepted, refused := sess.Add(uploads)
	rejected = append(rejected, refused...)
	if accepted == nil {
		accepted = []pipeline.FileSnapshot{}
	}
	if rejected == nil {
		rejected = []pipeline.Rejection{}
	}

	status := http.StatusAccepted
	if len(accepted) == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{
		"accepted": accepted,
		"rejected": rejected,
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": sess.Files()})
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	fileID := chi.URLParam(r, "fileID")
	if err := sess.Remove(fileID); err != nil {
		writeError(w, newNotFound("file", fileID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetryFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Retry(chi.URLParam(r, "fileID"))
	if err != nil {
		writeError(w, fromDomainError(err))
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// handleFileText previews a file's extracted text as markdown, html or
// plain text.
func (s *Server) handleFileText(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	format, err := preview.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, newValidationError(err.Error()))
		return
	}
	fileID := chi.URLParam(r, "fileID")
	f, err := sess.File(fileID)
	if err != nil {
		writeError(w, newNotFound("file", fileID))
		return
	}
	if f.Status() != pipeline.StatusExtracted {
		writeError(w, newConflict("file has no extracted text"))
		return
	}

	p, err := preview.Render(f.Text(), format)
	if err != nil {
		s.log.Error("preview render failed", "file_id", fileID, "error", err)
		writeError(w, newInternalError("failed to render preview"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fileId":   f.ID,
		"fileName": f.FileName,
		"preview":  p,
	})
}

type processFailure struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

// handleProcessSession runs field extraction over the session's extracted
// files. With ?wait=true it first waits for pending extractions.
func (s *Server) handleProcessSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		if err := sess.WaitIdle(r.Context()); err != nil {
			writeError(w, newConflict("request cancelled while waiting for extraction"))
			return
		}
	}

	res, err := sess.Process(r.Context())
	if err != nil {
		writeError(w, fromDomainError(err))
		return
	}

	records, contract := sess.Results()
	failed := make([]processFailure, 0)
	for _, o := range res.Failures() {
		failed = append(failed, processFailure{FileID: o.FileID, FileName: o.FileName, Error: "Error processing text"})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"processed": len(res.Records()),
		"failed":    failed,
		"hasErrors": res.HasErrors(),
		"results":   results.BuildTable(records, contract),
	})
}
