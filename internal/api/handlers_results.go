package api

import (
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dgallion1/deckgest/internal/pipeline"
	"github.com/dgallion1/deckgest/internal/results"
	"github.com/dgallion1/deckgest/internal/schema"
)

const msgpackContentType = "application/msgpack"

// latestResults returns the records of the last run. Before any run the
// current contract frames an empty result set.
func latestResults(sess *pipeline.Session) ([]results.Record, *schema.Contract, error) {
	records, c := sess.Results()
	if c != nil {
		return records, c, nil
	}
	c, err := sess.Contract()
	if err != nil {
		return nil, nil, err
	}
	return []results.Record{}, c, nil
}

func wantsMsgpack(r *http.Request) bool {
	return r.URL.Query().Get("format") == "msgpack" ||
		strings.Contains(r.Header.Get("Accept"), msgpackContentType)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	records, c, err := latestResults(sess)
	if err != nil {
		writeError(w, fromDomainError(err))
		return
	}
	table := results.BuildTable(records, c)

	if !wantsMsgpack(r) {
		writeJSON(w, http.StatusOK, table)
		return
	}
	data, err := msgpack.Marshal(table)
	if err != nil {
		s.log.Error("msgpack encode failed", "session_id", sess.ID, "error", err)
		writeError(w, newInternalError("failed to encode msgpack"))
		return
	}
	w.Header().Set("Content-Type", msgpackContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleExport downloads the latest results as a spreadsheet.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	records, c, err := latestResults(sess)
	if err != nil {
		writeError(w, fromDomainError(err))
		return
	}
	s.writeWorkbook(w, records, c)
}
