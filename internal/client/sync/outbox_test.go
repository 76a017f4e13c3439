package sync

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	return NewOutbox(newMemStore())
}

func TestOutboxPreservesEnqueueOrder(t *testing.T) {
	o := newTestOutbox(t)

	a1, err := o.Enqueue(ActionCreate, "d1", json.RawMessage(`{}`), 0)
	require.NoError(t, err)
	a2, err := o.Enqueue(ActionUpdate, "d1", json.RawMessage(`{}`), 1)
	require.NoError(t, err)
	a3, err := o.Enqueue(ActionUpdate, "d2", json.RawMessage(`{}`), 4)
	require.NoError(t, err)

	got := o.Unsynced()
	require.Len(t, got, 3)
	assert.Equal(t, []string{a1.ID, a2.ID, a3.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestOutboxCompactRemovesOnlySynced(t *testing.T) {
	o := newTestOutbox(t)

	a1, _ := o.Enqueue(ActionUpdate, "d1", nil, 1)
	a2, _ := o.Enqueue(ActionUpdate, "d2", nil, 1)
	a3, _ := o.Enqueue(ActionUpdate, "d3", nil, 1)

	require.NoError(t, o.MarkSynced(a1.ID))
	require.NoError(t, o.MarkSynced(a3.ID))

	// synced entries survive until compaction; a crash here loses nothing
	assert.Equal(t, 1, o.Pending())
	require.NotNil(t, o.Get(a1.ID))
	assert.True(t, o.Get(a1.ID).Synced)

	require.NoError(t, o.Compact())
	assert.Nil(t, o.Get(a1.ID))
	assert.Nil(t, o.Get(a3.ID))

	got := o.Unsynced()
	require.Len(t, got, 1)
	assert.Equal(t, a2.ID, got[0].ID)
}

func TestOutboxRetryCountsUpWithoutCeiling(t *testing.T) {
	o := newTestOutbox(t)
	a, _ := o.Enqueue(ActionUpdate, "d1", nil, 1)

	for i := 0; i < 7; i++ {
		require.NoError(t, o.Retry(a.ID))
	}

	assert.Equal(t, 7, o.Get(a.ID).RetryCount)
	assert.Equal(t, 1, o.Pending())
	assert.Equal(t, 1, o.StuckCount(5))
	assert.Equal(t, 0, o.StuckCount(8))
}

func TestOutboxRebaseTargetsUnsyncedOfOneDocument(t *testing.T) {
	o := newTestOutbox(t)

	a1, _ := o.Enqueue(ActionUpdate, "d1", nil, 1)
	a2, _ := o.Enqueue(ActionUpdate, "d1", nil, 1)
	a3, _ := o.Enqueue(ActionUpdate, "d2", nil, 1)
	require.NoError(t, o.MarkSynced(a1.ID))

	require.NoError(t, o.Rebase("d1", 7))

	assert.Equal(t, int64(1), o.Get(a1.ID).BaseVersion)
	assert.Equal(t, int64(7), o.Get(a2.ID).BaseVersion)
	assert.Equal(t, int64(1), o.Get(a3.ID).BaseVersion)
}

func TestOutboxRewriteDocumentID(t *testing.T) {
	o := newTestOutbox(t)
	a1, _ := o.Enqueue(ActionCreate, "tmp-1", nil, 0)
	a2, _ := o.Enqueue(ActionUpdate, "tmp-1", nil, 0)

	o.RewriteDocumentID("tmp-1", "doc-9")

	assert.Equal(t, "doc-9", o.Get(a1.ID).DocumentID)
	assert.Equal(t, "doc-9", o.Get(a2.ID).DocumentID)
	assert.Equal(t, 2, o.PendingFor("doc-9"))
	assert.Equal(t, 0, o.PendingFor("tmp-1"))
}

func TestOutboxDropForKeepsOtherDocuments(t *testing.T) {
	o := newTestOutbox(t)
	o.Enqueue(ActionUpdate, "d1", nil, 1)
	o.Enqueue(ActionUpdate, "d1", nil, 1)
	keep, _ := o.Enqueue(ActionUpdate, "d2", nil, 1)

	require.NoError(t, o.DropFor("d1"))

	got := o.Unsynced()
	require.Len(t, got, 1)
	assert.Equal(t, keep.ID, got[0].ID)
}

func TestOutboxLoadRestoresOrder(t *testing.T) {
	store := newMemStore()
	o := NewOutbox(store)
	a1, _ := o.Enqueue(ActionCreate, "d1", nil, 0)
	a2, _ := o.Enqueue(ActionUpdate, "d1", nil, 0)

	state, err := store.Load()
	require.NoError(t, err)

	o2 := NewOutbox(store)
	o2.load(state)

	got := o2.Unsynced()
	require.Len(t, got, 2)
	assert.Equal(t, a1.ID, got[0].ID)
	assert.Equal(t, a2.ID, got[1].ID)
}
