package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/deckgest/internal/pipeline"
	"github.com/dgallion1/deckgest/internal/schema"
)

// schemaResponse pairs the editable fields with the contract they derive.
// An unusable schema is still returned, with the reason in ContractError.
type schemaResponse struct {
	Fields        []schema.SchemaField `json:"fields"`
	Contract      []schema.Field       `json:"contract"`
	ContractError string               `json:"contractError,omitempty"`
}

func schemaView(sess *pipeline.Session) schemaResponse {
	resp := schemaResponse{Fields: sess.Schema().Fields(), Contract: []schema.Field{}}
	c, err := sess.Contract()
	if err != nil {
		resp.ContractError = err.Error()
		return resp
	}
	resp.Contract = c.Fields()
	return resp
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, schemaView(sess))
}

type replaceSchemaRequest struct {
	Fields []schema.SchemaField `json:"fields"`
}

func (req replaceSchemaRequest) validate() *APIError {
	if req.Fields == nil {
		return newValidationError("fields is required")
	}
	return nil
}

func (s *Server) handleReplaceSchema(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req replaceSchemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, newBadRequest("Invalid request body"))
		return
	}
	if apiErr := req.validate(); apiErr != nil {
		writeError(w, apiErr)
		return
	}
	if err := sess.Schema().Replace(req.Fields); err != nil {
		writeError(w, fromDomainError(err))
		return
	}
	writeJSON(w, http.StatusOK, schemaView(sess))
}

type addFieldRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleAddField(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req addFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, newBadRequest("Invalid request body"))
		return
	}
	f, err := sess.Schema().Add(schema.SchemaField{Name: req.Name, Description: req.Description})
	if err != nil {
		writeError(w, fromDomainError(err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"field":  f,
		"schema": schemaView(sess),
	})
}

func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req schema.FieldUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, newBadRequest("Invalid request body"))
		return
	}
	fieldID := chi.URLParam(r, "fieldID")
	f, err := sess.Schema().Update(fieldID, req)
	if err != nil {
		writeError(w, newNotFound("schema field", fieldID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"field":  f,
		"schema": schemaView(sess),
	})
}

func (s *Server) handleRemoveField(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	fieldID := chi.URLParam(r, "fieldID")
	if err := sess.Schema().Remove(fieldID); err != nil {
		writeError(w, newNotFound("schema field", fieldID))
		return
	}
	writeJSON(w, http.StatusOK, schemaView(sess))
}
