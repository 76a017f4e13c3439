package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docboxhq/docbox/internal/docsdk"
)

// memStore keeps everything in maps. Engine tests care about orchestration,
// not SQL; SqliteStore has its own tests.
type memStore struct {
	mu       sync.Mutex
	docs     map[string]*DocumentRecord
	versions map[string][]*DocumentVersion
	actions  map[string]*QueuedAction
	order    []string
	lastSync *time.Time
}

func newMemStore() *memStore {
	return &memStore{
		docs:     make(map[string]*DocumentRecord),
		versions: make(map[string][]*DocumentVersion),
		actions:  make(map[string]*QueuedAction),
	}
}

func (m *memStore) Load() (*PersistedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := &PersistedState{Schema: schemaVersion, LastSync: m.lastSync}
	for _, d := range m.docs {
		state.Documents = append(state.Documents, d.clone())
	}
	for _, vs := range m.versions {
		for _, v := range vs {
			cp := *v
			state.Versions = append(state.Versions, &cp)
		}
	}
	for _, id := range m.order {
		if a, ok := m.actions[id]; ok {
			cp := *a
			state.Actions = append(state.Actions, &cp)
		}
	}
	return state, nil
}

func (m *memStore) PutDocument(doc *DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc.clone()
	return nil
}

func (m *memStore) DeleteDocument(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memStore) PutVersion(v *DocumentVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.versions[v.DocumentID] = append(m.versions[v.DocumentID], &cp)
	return nil
}

func (m *memStore) DeleteVersions(documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.versions, documentID)
	return nil
}

func (m *memStore) PutAction(a *QueuedAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.actions[a.ID]; !ok {
		m.order = append(m.order, a.ID)
	}
	cp := *a
	m.actions[a.ID] = &cp
	return nil
}

func (m *memStore) DeleteAction(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actions, id)
	return nil
}

func (m *memStore) RenameDocument(oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.docs[oldID]; ok {
		d.ID = newID
		m.docs[newID] = d
		delete(m.docs, oldID)
	}
	if vs, ok := m.versions[oldID]; ok {
		for _, v := range vs {
			v.DocumentID = newID
		}
		m.versions[newID] = vs
		delete(m.versions, oldID)
	}
	for _, a := range m.actions {
		if a.DocumentID == oldID {
			a.DocumentID = newID
		}
	}
	return nil
}

func (m *memStore) SetLastSync(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSync = &t
	return nil
}

func (m *memStore) Size() (int64, error) { return 4096, nil }

func (m *memStore) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]*DocumentRecord)
	m.versions = make(map[string][]*DocumentVersion)
	m.actions = make(map[string]*QueuedAction)
	m.order = nil
	m.lastSync = nil
	return nil
}

func (m *memStore) Close() error { return nil }

var _ Store = (*memStore)(nil)

// fakeBackend dispatches to per-test hooks and records the call sequence.
type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	createFn func(folder, title string, payload json.RawMessage) (*CreateResult, error)
	updateFn func(id string, baseVersion int64, payload json.RawMessage) (int64, error)
	deleteFn func(id string) error
	getFn    func(id string) (json.RawMessage, int64, error)
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBackend) CreateDocument(_ context.Context, folder, title string, payload json.RawMessage) (*CreateResult, error) {
	b.record("create " + title)
	if b.createFn == nil {
		return nil, errors.New("unexpected CreateDocument")
	}
	return b.createFn(folder, title, payload)
}

func (b *fakeBackend) UpdateDocument(_ context.Context, id string, baseVersion int64, payload json.RawMessage) (int64, error) {
	b.record(fmt.Sprintf("update %s@%d", id, baseVersion))
	if b.updateFn == nil {
		return 0, errors.New("unexpected UpdateDocument")
	}
	return b.updateFn(id, baseVersion, payload)
}

func (b *fakeBackend) DeleteDocument(_ context.Context, id string) error {
	b.record("delete " + id)
	if b.deleteFn == nil {
		return errors.New("unexpected DeleteDocument")
	}
	return b.deleteFn(id)
}

func (b *fakeBackend) GetDocument(_ context.Context, id string) (json.RawMessage, int64, error) {
	b.record("get " + id)
	if b.getFn == nil {
		return nil, 0, errors.New("unexpected GetDocument")
	}
	return b.getFn(id)
}

var _ Backend = (*fakeBackend)(nil)

func newTestEngine(t *testing.T, backend *fakeBackend, offline bool, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(newMemStore(), backend, NewMonitor(offline), opts...)
	require.NoError(t, err)
	return eng
}

func seedSyncedDoc(t *testing.T, eng *Engine, id string, version int64) {
	t.Helper()
	require.NoError(t, eng.UpsertDocument(&DocumentRecord{
		ID:          id,
		Folder:      "notes",
		Title:       "Doc " + id,
		Payload:     json.RawMessage(`{"body":"hello"}`),
		BaseVersion: version,
	}))
}

func TestCreateSyncAssignsCanonicalID(t *testing.T) {
	backend := &fakeBackend{
		createFn: func(folder, title string, payload json.RawMessage) (*CreateResult, error) {
			return &CreateResult{ID: "doc-1", Version: 1}, nil
		},
	}
	eng := newTestEngine(t, backend, false)

	rec, err := eng.CreateDocument("notes", "Hello", json.RawMessage(`{"body":"hi"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.ID, tempIDPrefix))
	assert.True(t, rec.LocalChanges)

	require.NoError(t, eng.SyncNow(context.Background()))

	assert.Nil(t, eng.GetDocument(rec.ID))
	got := eng.GetDocument("doc-1")
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.BaseVersion)
	assert.False(t, got.LocalChanges)
	assert.NotNil(t, got.LastSynced)
	assert.Equal(t, 0, eng.Status().PendingActions)

	vs := eng.Versions("doc-1")
	require.Len(t, vs, 1)
	assert.Equal(t, int64(1), vs[0].Number)
}

func TestOfflineQueuesAndFlushesWhenOnline(t *testing.T) {
	backend := &fakeBackend{
		createFn: func(folder, title string, payload json.RawMessage) (*CreateResult, error) {
			return &CreateResult{ID: "doc-1", Version: 1}, nil
		},
	}
	eng := newTestEngine(t, backend, true)

	_, err := eng.CreateDocument("notes", "Offline doc", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.ErrorIs(t, eng.SyncNow(context.Background()), ErrOffline)
	assert.Equal(t, 1, eng.Status().PendingActions)
	assert.Equal(t, 0, backend.callCount())

	eng.SetOfflineStatus(false)
	require.NoError(t, eng.SyncNow(context.Background()))
	assert.Equal(t, 0, eng.Status().PendingActions)
	assert.Equal(t, 1, backend.callCount())
}

func TestQueuedUpdatesReplayInOrder(t *testing.T) {
	var version int64 = 1
	backend := &fakeBackend{}
	backend.updateFn = func(id string, baseVersion int64, payload json.RawMessage) (int64, error) {
		if baseVersion != version {
			return 0, &docsdk.ConflictError{DocumentID: id, ServerVersion: version}
		}
		version++
		return version, nil
	}

	eng := newTestEngine(t, backend, false)
	seedSyncedDoc(t, eng, "d1", 1)

	body1 := `{"body":"first"}`
	body2 := `{"body":"second"}`
	require.NoError(t, eng.ApplyLocalEdit("d1", &EditRequest{Payload: json.RawMessage(body1)}))
	require.NoError(t, eng.ApplyLocalEdit("d1", &EditRequest{Payload: json.RawMessage(body2)}))
	assert.Equal(t, 2, eng.Status().PendingActions)

	require.NoError(t, eng.SyncNow(context.Background()))

	// the second update was rebased onto version 2 mid-batch, so neither
	// replay conflicted
	assert.Equal(t, []string{"update d1@1", "update d1@2"}, backend.calls)
	assert.Equal(t, 0, eng.Status().PendingActions)

	rec := eng.GetDocument("d1")
	require.NotNil(t, rec)
	assert.Equal(t, int64(3), rec.BaseVersion)
	assert.Equal(t, ConflictNone, rec.Conflict)
	assert.False(t, rec.LocalChanges)
}

func TestUpdateConflictMarksDocumentAndHalts(t *testing.T) {
	backend := &fakeBackend{
		updateFn: func(id string, baseVersion int64, payload json.RawMessage) (int64, error) {
			return 0, &docsdk.ConflictError{DocumentID: id, ServerVersion: 5}
		},
	}
	eng := newTestEngine(t, backend, false)
	seedSyncedDoc(t, eng, "d1", 1)

	require.NoError(t, eng.ApplyLocalEdit("d1", &EditRequest{Payload: json.RawMessage(`{"body":"mine"}`)}))
	require.NoError(t, eng.SyncNow(context.Background()))

	rec := eng.GetDocument("d1")
	require.NotNil(t, rec)
	assert.Equal(t, ConflictPending, rec.Conflict)
	assert.Equal(t, int64(5), rec.RemoteVersion)
	assert.Equal(t, []string{"d1"}, eng.Status().ConflictedIDs)
	assert.Equal(t, 1, eng.Status().PendingActions)

	// the conflicted document is skipped until resolved
	require.NoError(t, eng.SyncNow(context.Background()))
	assert.Equal(t, 1, backend.callCount())
}

func TestResolveLocalRebasesAndRepushes(t *testing.T) {
	conflicted := true
	backend := &fakeBackend{
		updateFn: func(id string, baseVersion int64, payload json.RawMessage) (int64, error) {
			if conflicted {
				return 0, &docsdk.ConflictError{DocumentID: id, ServerVersion: 5}
			}
			if baseVersion != 5 {
				return 0, &docsdk.ConflictError{DocumentID: id, ServerVersion: 5}
			}
			return 6, nil
		},
	}
	eng := newTestEngine(t, backend, false)
	seedSyncedDoc(t, eng, "d1", 1)

	require.NoError(t, eng.ApplyLocalEdit("d1", &EditRequest{Payload: json.RawMessage(`{"body":"mine"}`)}))
	require.NoError(t, eng.SyncNow(context.Background()))
	require.Equal(t, ConflictPending, eng.GetDocument("d1").Conflict)

	conflicted = false
	require.NoError(t, eng.ResolveConflict(context.Background(), "d1", ResolveLocal))

	rec := eng.GetDocument("d1")
	assert.Equal(t, ConflictResolved, rec.Conflict)
	assert.True(t, rec.LocalChanges)

	require.NoError(t, eng.SyncNow(context.Background()))
	rec = eng.GetDocument("d1")
	assert.Equal(t, int64(6), rec.BaseVersion)
	assert.False(t, rec.LocalChanges)
	assert.Equal(t, 0, eng.Status().PendingActions)
}

func TestResolveRemoteDiscardsLocalChanges(t *testing.T) {
	serverPayload := json.RawMessage(`{"body":"server wins"}`)
	backend := &fakeBackend{
		updateFn: func(id string, baseVersion int64, payload json.RawMessage) (int64, error) {
			return 0, &docsdk.ConflictError{DocumentID: id, ServerVersion: 9}
		},
		getFn: func(id string) (json.RawMessage, int64, error) {
			return serverPayload, 9, nil
		},
	}
	eng := newTestEngine(t, backend, false)
	seedSyncedDoc(t, eng, "d1", 1)

	require.NoError(t, eng.ApplyLocalEdit("d1", &EditRequest{Payload: json.RawMessage(`{"body":"mine"}`)}))
	require.NoError(t, eng.SyncNow(context.Background()))
	require.Equal(t, ConflictPending, eng.GetDocument("d1").Conflict)

	require.NoError(t, eng.ResolveConflict(context.Background(), "d1", ResolveRemote))

	rec := eng.GetDocument("d1")
	require.NotNil(t, rec)
	assert.JSONEq(t, string(serverPayload), string(rec.Payload))
	assert.Equal(t, int64(9), rec.BaseVersion)
	assert.False(t, rec.LocalChanges)
	assert.Equal(t, ConflictResolved, rec.Conflict)
	assert.Equal(t, 0, eng.Status().PendingActions)
}

func TestResolveWithoutPendingConflictIsNoOp(t *testing.T) {
	eng := newTestEngine(t, &fakeBackend{}, false)
	seedSyncedDoc(t, eng, "d1", 1)

	require.NoError(t, eng.ResolveConflict(context.Background(), "d1", ResolveRemote))
	assert.Equal(t, ConflictNone, eng.GetDocument("d1").Conflict)
}

func TestTransientFailureIncrementsRetry(t *testing.T) {
	backend := &fakeBackend{
		updateFn: func(id string, baseVersion int64, payload json.RawMessage) (int64, error) {
			return 0, errors.New("connection reset")
		},
	}
	eng := newTestEngine(t, backend, false, WithStuckThreshold(2))
	seedSyncedDoc(t, eng, "d1", 1)

	require.NoError(t, eng.ApplyLocalEdit("d1", &EditRequest{Payload: json.RawMessage(`{"body":"x"}`)}))

	require.NoError(t, eng.SyncNow(context.Background()))
	st := eng.Status()
	assert.Equal(t, 1, st.PendingActions)
	assert.Equal(t, 0, st.StuckActions)

	require.NoError(t, eng.SyncNow(context.Background()))
	st = eng.Status()
	assert.Equal(t, 1, st.PendingActions)
	assert.Equal(t, 1, st.StuckActions)

	actions := eng.PendingActions()
	require.Len(t, actions, 1)
	assert.Equal(t, 2, actions[0].RetryCount)
}

func TestDeleteOfMissingRemoteDocumentSucceeds(t *testing.T) {
	backend := &fakeBackend{
		deleteFn: func(id string) error {
			return &docsdk.APIError{Code: docsdk.CodeDocNotFound, Message: "gone"}
		},
	}
	eng := newTestEngine(t, backend, false)
	seedSyncedDoc(t, eng, "d1", 3)

	require.NoError(t, eng.RemoveDocument("d1"))
	require.NoError(t, eng.SyncNow(context.Background()))
	assert.Equal(t, 0, eng.Status().PendingActions)
	assert.Nil(t, eng.GetDocument("d1"))
}

func TestRemovingUnsentCreateDropsQueuedActions(t *testing.T) {
	backend := &fakeBackend{}
	eng := newTestEngine(t, backend, true)

	rec, err := eng.CreateDocument("notes", "Never synced", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, eng.ApplyLocalEdit(rec.ID, &EditRequest{Payload: json.RawMessage(`{"a":1}`)}))
	require.Equal(t, 2, eng.Status().PendingActions)

	require.NoError(t, eng.RemoveDocument(rec.ID))
	assert.Equal(t, 0, eng.Status().PendingActions)

	eng.SetOfflineStatus(false)
	require.NoError(t, eng.SyncNow(context.Background()))
	assert.Equal(t, 0, backend.callCount())
}

func TestIgnoredFolderStaysLocal(t *testing.T) {
	backend := &fakeBackend{}
	eng := newTestEngine(t, backend, false)

	rec, err := eng.CreateDocument("drafts/ideas", "Scratchpad", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NotNil(t, eng.GetDocument(rec.ID))
	assert.Equal(t, 0, eng.Status().PendingActions)

	require.NoError(t, eng.SyncNow(context.Background()))
	assert.Equal(t, 0, backend.callCount())
}

func TestConcurrentSyncCollapses(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	backend := &fakeBackend{
		updateFn: func(id string, baseVersion int64, payload json.RawMessage) (int64, error) {
			close(entered)
			<-release
			return baseVersion + 1, nil
		},
	}
	eng := newTestEngine(t, backend, false)
	seedSyncedDoc(t, eng, "d1", 1)
	require.NoError(t, eng.ApplyLocalEdit("d1", &EditRequest{Payload: json.RawMessage(`{"a":1}`)}))

	done := make(chan error, 1)
	go func() { done <- eng.SyncNow(context.Background()) }()

	<-entered
	assert.True(t, eng.Status().State.SyncInProgress)
	require.ErrorIs(t, eng.SyncNow(context.Background()), ErrSyncAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, eng.Status().State.SyncInProgress)
	assert.Equal(t, 1, backend.callCount())
}

func TestSyncUpdatesLastSyncTime(t *testing.T) {
	backend := &fakeBackend{}
	eng := newTestEngine(t, backend, false)

	require.Nil(t, eng.Status().State.LastSyncTime)
	require.NoError(t, eng.SyncNow(context.Background()))
	require.NotNil(t, eng.Status().State.LastSyncTime)
}

func TestListDocumentsGlobFilter(t *testing.T) {
	eng := newTestEngine(t, &fakeBackend{}, true)
	seedSyncedDoc(t, eng, "a", 1)
	require.NoError(t, eng.UpsertDocument(&DocumentRecord{ID: "b", Folder: "work/reports", Title: "Q3"}))
	require.NoError(t, eng.UpsertDocument(&DocumentRecord{ID: "c", Folder: "work/reports/2026", Title: "Q1"}))

	all, err := eng.ListDocuments("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	work, err := eng.ListDocuments("work/**")
	require.NoError(t, err)
	require.Len(t, work, 2)
	assert.Equal(t, "b", work[0].ID)
	assert.Equal(t, "c", work[1].ID)

	_, err = eng.ListDocuments("work/[")
	assert.Error(t, err)
}

func TestClearOfflineData(t *testing.T) {
	eng := newTestEngine(t, &fakeBackend{}, true)
	seedSyncedDoc(t, eng, "d1", 1)
	require.NoError(t, eng.ApplyLocalEdit("d1", &EditRequest{Payload: json.RawMessage(`{"a":1}`)}))

	require.NoError(t, eng.ClearOfflineData())

	st := eng.Status()
	assert.Equal(t, 0, st.PendingActions)
	assert.Nil(t, eng.GetDocument("d1"))
	assert.Nil(t, st.State.LastSyncTime)
}

func TestEngineRestartRecoversState(t *testing.T) {
	store := newMemStore()
	backend := &fakeBackend{}

	eng, err := NewEngine(store, backend, NewMonitor(true))
	require.NoError(t, err)
	seedSyncedDoc(t, eng, "d1", 2)
	require.NoError(t, eng.ApplyLocalEdit("d1", &EditRequest{Payload: json.RawMessage(`{"body":"queued"}`)}))

	// same store, fresh engine: the crash/restart path
	eng2, err := NewEngine(store, backend, NewMonitor(true))
	require.NoError(t, err)

	rec := eng2.GetDocument("d1")
	require.NotNil(t, rec)
	assert.True(t, rec.LocalChanges)
	assert.Equal(t, 1, eng2.Status().PendingActions)
}

func TestApplyRemoteChangeRefreshesCleanDocument(t *testing.T) {
	backend := &fakeBackend{
		getFn: func(id string) (json.RawMessage, int64, error) {
			return json.RawMessage(`{"body":"server"}`), 4, nil
		},
	}
	eng := newTestEngine(t, backend, false)
	seedSyncedDoc(t, eng, "d1", 1)

	require.NoError(t, eng.ApplyRemoteChange(context.Background(), "d1", 4, false))

	rec := eng.GetDocument("d1")
	assert.Equal(t, int64(4), rec.BaseVersion)
	assert.JSONEq(t, `{"body":"server"}`, string(rec.Payload))
	require.Len(t, eng.Versions("d1"), 1)

	// stale notification is a no-op
	require.NoError(t, eng.ApplyRemoteChange(context.Background(), "d1", 2, false))
	assert.Equal(t, int64(4), eng.GetDocument("d1").BaseVersion)

	// unknown document is a no-op
	require.NoError(t, eng.ApplyRemoteChange(context.Background(), "ghost", 1, false))
}

func TestApplyRemoteChangeConflictsDirtyDocument(t *testing.T) {
	eng := newTestEngine(t, &fakeBackend{}, true)
	seedSyncedDoc(t, eng, "d1", 1)
	require.NoError(t, eng.ApplyLocalEdit("d1", &EditRequest{Payload: json.RawMessage(`{"body":"mine"}`)}))

	require.NoError(t, eng.ApplyRemoteChange(context.Background(), "d1", 3, false))

	rec := eng.GetDocument("d1")
	assert.Equal(t, ConflictPending, rec.Conflict)
	assert.Equal(t, int64(3), rec.RemoteVersion)
	assert.JSONEq(t, `{"body":"mine"}`, string(rec.Payload))
}

func TestApplyRemoteChangeDelete(t *testing.T) {
	eng := newTestEngine(t, &fakeBackend{}, true)
	seedSyncedDoc(t, eng, "clean", 1)
	seedSyncedDoc(t, eng, "dirty", 1)
	require.NoError(t, eng.ApplyLocalEdit("dirty", &EditRequest{Payload: json.RawMessage(`{"a":1}`)}))

	require.NoError(t, eng.ApplyRemoteChange(context.Background(), "clean", 0, true))
	require.NoError(t, eng.ApplyRemoteChange(context.Background(), "dirty", 0, true))

	assert.Nil(t, eng.GetDocument("clean"))
	rec := eng.GetDocument("dirty")
	require.NotNil(t, rec)
	assert.Equal(t, ConflictPending, rec.Conflict)
}

func TestAutoSyncAfterOnlineTransition(t *testing.T) {
	synced := make(chan struct{})
	backend := &fakeBackend{
		updateFn: func(id string, baseVersion int64, payload json.RawMessage) (int64, error) {
			close(synced)
			return baseVersion + 1, nil
		},
	}
	eng := newTestEngine(t, backend, true, WithDebounce(10*time.Millisecond))
	seedSyncedDoc(t, eng, "d1", 1)
	require.NoError(t, eng.ApplyLocalEdit("d1", &EditRequest{Payload: json.RawMessage(`{"a":1}`)}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)

	eng.SetOfflineStatus(false)

	select {
	case <-synced:
	case <-time.After(2 * time.Second):
		t.Fatal("auto sync did not run after online transition")
	}
}
