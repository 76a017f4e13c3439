package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docboxhq/docbox/internal/client/sync"
)

func forceConflict(t *testing.T, engine *sync.Engine, backend *stubBackend, id string) {
	t.Helper()
	backend.conflictAll = true
	require.NoError(t, engine.ApplyLocalEdit(id, &sync.EditRequest{Payload: json.RawMessage(`{"body":"mine"}`)}))
	require.NoError(t, engine.SyncNow(context.Background()))
	backend.conflictAll = false
	require.Equal(t, sync.ConflictPending, engine.GetDocument(id).Conflict)
}

func TestConflictsListAndResolveRemote(t *testing.T) {
	backend := &stubBackend{}
	r, engine := newTestRouter(t, backend)
	seedDoc(t, engine, "d1", "notes")
	forceConflict(t, engine, backend, "d1")

	w := doJSON(t, r, http.MethodGet, "/v1/conflicts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ListConflictsResponse](t, w)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, "d1", resp.Conflicts[0].DocumentID)
	assert.Equal(t, int64(9), resp.Conflicts[0].RemoteVersion)

	w = doJSON(t, r, http.MethodPost, "/v1/conflicts/d1/resolve",
		&ResolveConflictRequest{Resolution: "remote"})
	require.Equal(t, http.StatusOK, w.Code)

	rec := engine.GetDocument("d1")
	assert.Equal(t, sync.ConflictResolved, rec.Conflict)
	assert.JSONEq(t, `{"body":"remote"}`, string(rec.Payload))
	assert.Equal(t, int64(9), rec.BaseVersion)
}

func TestConflictsResolveMergeWithPayload(t *testing.T) {
	backend := &stubBackend{}
	r, engine := newTestRouter(t, backend)
	seedDoc(t, engine, "d1", "notes")
	forceConflict(t, engine, backend, "d1")

	w := doJSON(t, r, http.MethodPost, "/v1/conflicts/d1/resolve", &ResolveConflictRequest{
		Resolution:    "merge",
		MergedPayload: json.RawMessage(`{"body":"both"}`),
	})
	require.Equal(t, http.StatusOK, w.Code)

	rec := engine.GetDocument("d1")
	assert.Equal(t, sync.ConflictResolved, rec.Conflict)
	assert.JSONEq(t, `{"body":"both"}`, string(rec.Payload))

	// the merged payload replays like any local edit
	require.NoError(t, engine.SyncNow(context.Background()))
	assert.Equal(t, 0, engine.Status().PendingActions)
}

func TestConflictsResolveValidation(t *testing.T) {
	r, engine := newTestRouter(t, &stubBackend{})
	seedDoc(t, engine, "d1", "notes")

	w := doJSON(t, r, http.MethodPost, "/v1/conflicts/d1/resolve",
		&ResolveConflictRequest{Resolution: "coinflip"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/conflicts/ghost/resolve",
		&ResolveConflictRequest{Resolution: "local"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
