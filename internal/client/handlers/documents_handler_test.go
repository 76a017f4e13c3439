package handlers

import (
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docboxhq/docbox/internal/client/sync"
)

func TestDocumentsCreateAndGet(t *testing.T) {
	r, _ := newTestRouter(t, &stubBackend{})

	w := doJSON(t, r, http.MethodPost, "/v1/documents", &CreateDocumentRequest{
		Folder:  "notes",
		Title:   "Hello",
		Payload: json.RawMessage(`{"body":"hi"}`),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	created := decode[sync.DocumentRecord](t, w)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.LocalChanges)

	w = doJSON(t, r, http.MethodGet, "/v1/documents/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[sync.DocumentRecord](t, w)
	assert.Equal(t, "Hello", got.Title)
}

func TestDocumentsCreateRequiresTitle(t *testing.T) {
	r, _ := newTestRouter(t, &stubBackend{})

	w := doJSON(t, r, http.MethodPost, "/v1/documents", map[string]any{"folder": "notes"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentsListGlobFilter(t *testing.T) {
	r, engine := newTestRouter(t, &stubBackend{})
	seedDoc(t, engine, "d1", "notes")
	seedDoc(t, engine, "d2", "work/reports")

	w := doJSON(t, r, http.MethodGet, "/v1/documents?glob=work/**", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ListDocumentsResponse](t, w)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "d2", resp.Documents[0].ID)

	w = doJSON(t, r, http.MethodGet, "/v1/documents?glob=work/[", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentsUpdateAndVersions(t *testing.T) {
	r, engine := newTestRouter(t, &stubBackend{})
	seedDoc(t, engine, "d1", "notes")

	w := doJSON(t, r, http.MethodPatch, "/v1/documents/d1", map[string]any{
		"payload": map[string]any{"body": "edited"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	rec := decode[sync.DocumentRecord](t, w)
	assert.True(t, rec.LocalChanges)

	w = doJSON(t, r, http.MethodGet, "/v1/documents/d1/versions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	vr := decode[DocumentVersionsResponse](t, w)
	assert.Equal(t, "d1", vr.DocumentID)
}

func TestDocumentsNotFound(t *testing.T) {
	r, _ := newTestRouter(t, &stubBackend{})

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/v1/documents/ghost"},
		{http.MethodDelete, "/v1/documents/ghost"},
		{http.MethodGet, "/v1/documents/ghost/versions"},
	} {
		w := doJSON(t, r, req.method, req.path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, req.path)
	}

	w := doJSON(t, r, http.MethodPatch, "/v1/documents/ghost", map[string]any{"payload": map[string]any{}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentsDelete(t *testing.T) {
	r, engine := newTestRouter(t, &stubBackend{})
	seedDoc(t, engine, "d1", "notes")

	w := doJSON(t, r, http.MethodDelete, "/v1/documents/d1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, engine.GetDocument("d1"))
	assert.Equal(t, 1, engine.Status().PendingActions)
}
