package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/deckgest/internal/schema"
)

func contractKeys(resp schemaResponse) []string {
	keys := make([]string, len(resp.Contract))
	for i, f := range resp.Contract {
		keys[i] = f.Key
	}
	return keys
}

func TestSchemaEditing(t *testing.T) {
	srv, _ := newTestServer(t, &stubText{}, acmeFields())
	base := "/api/sessions/" + createSession(t, srv) + "/schema"

	rec := do(t, srv, http.MethodGet, base, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[schemaResponse](t, rec)
	assert.Len(t, resp.Fields, 6)
	assert.Equal(t, []string{"company", "description", "url", "industry", "traction", "roundSize"}, contractKeys(resp))

	rec = doJSON(t, srv, http.MethodPost, base+"/fields", addFieldRequest{Name: "Founder", Description: "Founder names"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode[struct {
		Field  schema.SchemaField `json:"field"`
		Schema schemaResponse     `json:"schema"`
	}](t, rec)
	assert.NotEmpty(t, added.Field.ID)
	assert.Equal(t, "founder", added.Schema.Contract[6].Key)

	name := "Website"
	rec = doJSON(t, srv, http.MethodPatch, base+"/fields/3", schema.FieldUpdate{Name: &name})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	keys := contractKeys(decode[struct {
		Schema schemaResponse `json:"schema"`
	}](t, rec).Schema)
	assert.Contains(t, keys, "website")
	assert.NotContains(t, keys, "url")

	rec = doJSON(t, srv, http.MethodPatch, base+"/fields/missing", schema.FieldUpdate{Name: &name})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodDelete, base+"/fields/"+added.Field.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[schemaResponse](t, rec).Fields, 6)

	rec = do(t, srv, http.MethodDelete, base+"/fields/"+added.Field.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchemaConflictBlocksProcessing(t *testing.T) {
	srv, _ := newTestServer(t, &stubText{}, acmeFields())
	id := createSession(t, srv)
	base := "/api/sessions/" + id

	rec := doJSON(t, srv, http.MethodPost, base+"/schema/fields", addFieldRequest{Name: "company"})
	require.Equal(t, http.StatusCreated, rec.Code)
	dup := decode[struct {
		Field  schema.SchemaField `json:"field"`
		Schema schemaResponse     `json:"schema"`
	}](t, rec)
	assert.NotEmpty(t, dup.Schema.ContractError)
	assert.Empty(t, dup.Schema.Contract)

	body, ct := multipartBody(t, part{"files", "one.pdf", pdf})
	rec = do(t, srv, http.MethodPost, base+"/files", body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, srv, http.MethodPost, base+"/process?wait=true", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = do(t, srv, http.MethodDelete, base+"/schema/fields/"+dup.Field.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[schemaResponse](t, rec).ContractError)

	rec = do(t, srv, http.MethodPost, base+"/process", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestReplaceSchemaDrivesResults(t *testing.T) {
	fields := &stubFields{values: map[string]string{"founder": "Ada"}}
	srv, _ := newTestServer(t, &stubText{}, fields)
	base := "/api/sessions/" + createSession(t, srv)

	rec := doJSON(t, srv, http.MethodPut, base+"/schema", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPut, base+"/schema", replaceSchemaRequest{Fields: []schema.SchemaField{
		{ID: "a", Name: "Founder"},
		{ID: "a", Name: "Sector"},
	}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = doJSON(t, srv, http.MethodPut, base+"/schema", replaceSchemaRequest{Fields: []schema.SchemaField{
		{Name: "Founder", Description: "Founder names"},
		{Name: "  "},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[schemaResponse](t, rec)
	assert.Len(t, resp.Fields, 2)
	assert.Equal(t, []string{"founder"}, contractKeys(resp))

	body, ct := multipartBody(t, part{"files", "one.pdf", pdf})
	rec = do(t, srv, http.MethodPost, base+"/files", body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, srv, http.MethodPost, base+"/process?wait=true", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	proc := decode[processResponse](t, rec)
	require.Len(t, proc.Results.Columns, 2)
	assert.Equal(t, "founder", proc.Results.Columns[1].Key)
	assert.Equal(t, "Ada", proc.Results.Rows[0].Cells[1].Value)

	rec = do(t, srv, http.MethodGet, base+"/export", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [][]string{{"File Name", "Founder"}, {"one.pdf", "Ada"}}, readSheet(t, rec.Body.Bytes()))
}
