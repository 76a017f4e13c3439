package handlers

import (
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docboxhq/docbox/internal/client/sync"
)

func TestSyncPendingAndNow(t *testing.T) {
	r, engine := newTestRouter(t, &stubBackend{})
	seedDoc(t, engine, "d1", "notes")
	require.NoError(t, engine.ApplyLocalEdit("d1", &sync.EditRequest{Payload: json.RawMessage(`{"a":1}`)}))

	w := doJSON(t, r, http.MethodGet, "/v1/sync/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decode[PendingActionsResponse](t, w)
	require.Len(t, pending.Actions, 1)
	assert.Equal(t, sync.ActionUpdate, pending.Actions[0].Type)

	w = doJSON(t, r, http.MethodPost, "/v1/sync/now", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/sync/pending", nil)
	pending = decode[PendingActionsResponse](t, w)
	assert.Empty(t, pending.Actions)

	rec := engine.GetDocument("d1")
	assert.Equal(t, int64(2), rec.BaseVersion)
}
