// Package sync implements the offline-first document synchronization engine:
// a durable cache of documents, an outbox of pending mutations, and an
// orchestrator that replays the outbox against the backend when connectivity
// allows. Conflicts are detected as a side effect of replay, never by
// background diffing.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/docboxhq/docbox/internal/docsdk"
)

const (
	defaultDebounce       = 2 * time.Second
	defaultStuckThreshold = 5

	tempIDPrefix = "tmp-"
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running")
	ErrOffline            = errors.New("engine is offline")
)

// Engine owns the cache, the outbox and the reconciliation loop. It is the
// sole writer of synced flags and conflict status; payload edits arrive
// through the UI-facing mutation methods.
type Engine struct {
	store   Store
	backend Backend
	monitor *Monitor
	ignore  *IgnoreList
	cache   *Cache
	outbox  *Outbox

	// muSync serializes batches: a second SyncNow while one is running
	// collapses into a no-op
	muSync chan struct{}

	mu    syncStateMu
	nudge chan struct{}

	debounce       time.Duration
	stuckThreshold int
}

// Option configures the engine.
type Option func(*Engine)

// WithDebounce sets the delay between an online transition and the
// auto-triggered sync, absorbing flapping connections.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		e.debounce = d
	}
}

// WithIgnoreList replaces the default local-only folder patterns.
func WithIgnoreList(l *IgnoreList) Option {
	return func(e *Engine) {
		e.ignore = l
	}
}

// WithStuckThreshold sets the retry count at which an action is reported as
// stuck in Status. It is a reporting threshold only; actions are never
// dropped.
func WithStuckThreshold(n int) Option {
	return func(e *Engine) {
		e.stuckThreshold = n
	}
}

// NewEngine loads persisted state and wires the components together. The
// offline flag is re-derived from the monitor, never from storage.
func NewEngine(store Store, backend Backend, monitor *Monitor, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:          store,
		backend:        backend,
		monitor:        monitor,
		ignore:         NewIgnoreList(),
		cache:          NewCache(store),
		outbox:         NewOutbox(store),
		muSync:         make(chan struct{}, 1),
		nudge:          make(chan struct{}, 1),
		debounce:       defaultDebounce,
		stuckThreshold: defaultStuckThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}

	state, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load persisted state: %w", err)
	}
	e.cache.load(state)
	e.outbox.load(state)

	e.mu.set(func(s *State) {
		s.IsOffline = monitor.Offline()
		s.LastSyncTime = state.LastSync
	})

	return e, nil
}

// Start runs the auto-sync loop until ctx is cancelled: a debounced sync on
// every offline→online transition with pending work, and on every local
// mutation nudge while online.
func (e *Engine) Start(ctx context.Context) {
	transitions := e.monitor.Subscribe()

	go func() {
		var pending *time.Timer
		var timerC <-chan time.Time

		schedule := func() {
			if pending != nil {
				pending.Stop()
			}
			pending = time.NewTimer(e.debounce)
			timerC = pending.C
		}

		for {
			select {
			case <-ctx.Done():
				if pending != nil {
					pending.Stop()
				}
				return

			case offline := <-transitions:
				e.mu.set(func(s *State) { s.IsOffline = offline })
				if !offline && e.outbox.Pending() > 0 {
					schedule()
				}

			case <-e.nudge:
				if !e.monitor.Offline() && e.outbox.Pending() > 0 {
					schedule()
				}

			case <-timerC:
				timerC = nil
				pending = nil
				if err := e.SyncNow(ctx); err != nil &&
					!errors.Is(err, ErrSyncAlreadyRunning) &&
					!errors.Is(err, ErrOffline) &&
					!errors.Is(err, context.Canceled) {
					slog.Error("auto sync", "error", err)
				}
			}
		}
	}()
}

// Close releases the durable store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// SetOfflineStatus forwards a connectivity report to the monitor.
func (e *Engine) SetOfflineStatus(offline bool) {
	e.monitor.SetOfflineStatus(offline)
}

// ---- UI-facing mutations -------------------------------------------------

// CreateDocument registers a new local document under a temporary ID and
// queues its creation. The backend assigns the canonical ID on first sync.
func (e *Engine) CreateDocument(folder, title string, payload json.RawMessage) (*DocumentRecord, error) {
	rec := &DocumentRecord{
		ID:      tempIDPrefix + uuid.NewString(),
		Folder:  folder,
		Title:   title,
		Payload: payload,
	}
	if err := e.cache.insertLocal(rec); err != nil {
		return nil, err
	}

	if !e.ignore.ShouldIgnore(folder) {
		data, err := json.Marshal(&createData{Folder: folder, Title: title, Payload: payload})
		if err != nil {
			return nil, fmt.Errorf("encode create action: %w", err)
		}
		if _, err := e.outbox.Enqueue(ActionCreate, rec.ID, data, 0); err != nil {
			return nil, err
		}
		e.nudgeSync()
	}

	return e.cache.Get(rec.ID), nil
}

// ApplyLocalEdit merges a partial update into the cached record and queues
// the corresponding update action. Edits to unknown IDs are logged no-ops.
func (e *Engine) ApplyLocalEdit(id string, edit *EditRequest) error {
	applied, err := e.cache.ApplyEdit(id, edit)
	if err != nil || !applied {
		return err
	}

	rec := e.cache.Get(id)
	if e.ignore.ShouldIgnore(rec.Folder) {
		return nil
	}

	if _, err := e.outbox.Enqueue(ActionUpdate, id, rec.Payload, rec.BaseVersion); err != nil {
		return err
	}
	e.nudgeSync()
	return nil
}

// RemoveDocument deletes the record and its versions and queues the delete.
func (e *Engine) RemoveDocument(id string) error {
	rec := e.cache.Get(id)
	removed, err := e.cache.Remove(id)
	if err != nil || !removed {
		return err
	}

	if e.ignore.ShouldIgnore(rec.Folder) {
		return nil
	}
	if strings.HasPrefix(id, tempIDPrefix) {
		// the backend never saw this document, so there is nothing to
		// delete remotely
		e.dropUnsentCreate(id)
		return nil
	}

	if _, err := e.outbox.Enqueue(ActionDelete, id, nil, rec.BaseVersion); err != nil {
		return err
	}
	e.nudgeSync()
	return nil
}

// dropUnsentCreate cancels a document that never reached the backend: the
// queued create (and any updates) are dropped instead of replaying a create
// followed by a delete.
func (e *Engine) dropUnsentCreate(id string) bool {
	if e.outbox.PendingFor(id) == 0 {
		return false
	}
	if err := e.outbox.DropFor(id); err != nil {
		slog.Error("drop unsent create", "id", id, "error", err)
		return false
	}
	return true
}

// UpsertDocument inserts or replaces a record with canonical backend
// content. No action is queued; this is the re-hydration path.
func (e *Engine) UpsertDocument(doc *DocumentRecord) error {
	return e.cache.Upsert(doc)
}

// AppendVersion records one immutable version in the document's history.
func (e *Engine) AppendVersion(v *DocumentVersion) error {
	return e.cache.AppendVersion(v)
}

// GetDocument returns the cached record, or nil.
func (e *Engine) GetDocument(id string) *DocumentRecord {
	return e.cache.Get(id)
}

// ListDocuments returns cached records, optionally filtered by a folder
// glob (doublestar syntax).
func (e *Engine) ListDocuments(glob string) ([]*DocumentRecord, error) {
	docs := e.cache.List()
	if glob == "" {
		return docs, nil
	}
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("invalid folder glob %q", glob)
	}

	out := docs[:0]
	for _, d := range docs {
		if ok, _ := doublestar.Match(glob, d.Folder); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Versions returns the version history for a document, newest first.
func (e *Engine) Versions(id string) []*DocumentVersion {
	return e.cache.Versions(id)
}

// PendingActions returns the outbox contents awaiting replay.
func (e *Engine) PendingActions() []*QueuedAction {
	return e.outbox.Unsynced()
}

// ApplyRemoteChange ingests a push notification about a document that moved
// on the backend. Clean documents are refreshed (or dropped, on a remote
// delete); dirty documents are marked conflicted instead of overwritten.
func (e *Engine) ApplyRemoteChange(ctx context.Context, id string, version int64, deleted bool) error {
	rec := e.cache.Get(id)
	if rec == nil {
		return nil
	}

	if deleted {
		if rec.LocalChanges {
			return e.cache.MarkConflict(id, 0)
		}
		_, err := e.cache.Remove(id)
		return err
	}

	if version <= rec.BaseVersion {
		return nil
	}
	if rec.LocalChanges {
		return e.cache.MarkConflict(id, version)
	}

	payload, serverVersion, err := e.backend.GetDocument(ctx, id)
	if err != nil {
		if docsdk.IsNotFound(err) {
			_, rerr := e.cache.Remove(id)
			return rerr
		}
		return fmt.Errorf("refresh %s after remote change: %w", id, err)
	}

	if err := e.cache.Upsert(&DocumentRecord{
		ID:          id,
		Folder:      rec.Folder,
		Title:       rec.Title,
		Payload:     payload,
		BaseVersion: serverVersion,
	}); err != nil {
		return err
	}
	return e.cache.AppendVersion(&DocumentVersion{
		DocumentID: id,
		Number:     serverVersion,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	})
}

// ---- conflicts -----------------------------------------------------------

// MarkConflict flags a document as diverged. Idempotent.
func (e *Engine) MarkConflict(id string) error {
	return e.cache.MarkConflict(id, 0)
}

// ResolveConflict settles a pending conflict.
//
//   - local: keep the cached payload and re-attempt pushing it next cycle.
//   - remote: fetch the canonical copy, replace the cache record, drop the
//     document's queued actions.
//   - merge: the editor supplies the merged payload as a regular local
//     edit; this call rebases the queued actions and unblocks the document.
func (e *Engine) ResolveConflict(ctx context.Context, id string, resolution Resolution) error {
	rec := e.cache.Get(id)
	if rec == nil || rec.Conflict != ConflictPending {
		slog.Warn("resolve for document without pending conflict ignored", "id", id, "resolution", resolution)
		return nil
	}

	switch resolution {
	case ResolveLocal:
		if rec.RemoteVersion > 0 {
			if err := e.outbox.Rebase(id, rec.RemoteVersion); err != nil {
				return err
			}
		}
		if err := e.cache.setResolved(id, true); err != nil {
			return err
		}
		e.nudgeSync()
		return nil

	case ResolveRemote:
		payload, version, err := e.backend.GetDocument(ctx, id)
		if err != nil {
			if docsdk.IsNotFound(err) {
				// remote copy is gone; nothing canonical to restore
				if err := e.outbox.DropFor(id); err != nil {
					return err
				}
				_, err := e.cache.Remove(id)
				return err
			}
			return fmt.Errorf("fetch canonical copy of %s: %w", id, err)
		}

		if err := e.outbox.DropFor(id); err != nil {
			return err
		}
		if err := e.cache.Upsert(&DocumentRecord{
			ID:          id,
			Folder:      rec.Folder,
			Title:       rec.Title,
			Payload:     payload,
			BaseVersion: version,
		}); err != nil {
			return err
		}
		return e.cache.setResolved(id, false)

	case ResolveMerge:
		// the merged payload itself comes from the editor as a normal
		// local edit; here we only unblock the document
		if rec.RemoteVersion > 0 {
			if err := e.outbox.Rebase(id, rec.RemoteVersion); err != nil {
				return err
			}
		}
		if err := e.cache.setResolved(id, rec.LocalChanges); err != nil {
			return err
		}
		if rec.LocalChanges {
			e.nudgeSync()
		}
		return nil

	default:
		return fmt.Errorf("unknown resolution %q", resolution)
	}
}

// ---- sync batch ----------------------------------------------------------

// SyncNow drains the outbox against the backend. Exactly one batch runs at
// a time; a concurrent call returns ErrSyncAlreadyRunning. Per-action
// failures never abort the batch, only storage failures do.
func (e *Engine) SyncNow(ctx context.Context) error {
	select {
	case e.muSync <- struct{}{}:
	default:
		return ErrSyncAlreadyRunning
	}
	defer func() { <-e.muSync }()

	if e.monitor.Offline() {
		return ErrOffline
	}

	e.mu.set(func(s *State) { s.SyncInProgress = true })
	defer e.mu.set(func(s *State) { s.SyncInProgress = false })

	tstart := time.Now()
	actions := e.outbox.Unsynced()
	conflicted := mapset.NewSet[string]()
	skipped := mapset.NewSet[string]()
	var synced, retried int
	aborted := false

	for _, snap := range actions {
		if ctx.Err() != nil {
			aborted = true
			break
		}

		// re-read the live entry: an earlier action in this batch may
		// have rebased or retargeted it
		a := e.outbox.Get(snap.ID)
		if a == nil || a.Synced {
			continue
		}

		if e.cache.HasPendingConflict(a.DocumentID) || conflicted.Contains(a.DocumentID) {
			skipped.Add(a.DocumentID)
			continue
		}

		err, fatal := e.replay(ctx, a)
		switch {
		case err == nil:
			synced++

		case fatal:
			return err

		case docsdk.IsConflict(err) || (a.Type == ActionUpdate && docsdk.IsNotFound(err)):
			// the server copy moved on; not a transient failure, so no
			// retry: the action stays queued pending resolution
			serverVersion := int64(0)
			var ce *docsdk.ConflictError
			if errors.As(err, &ce) {
				serverVersion = ce.ServerVersion
			}
			if err := e.cache.MarkConflict(a.DocumentID, serverVersion); err != nil {
				return err
			}
			conflicted.Add(a.DocumentID)
			slog.Warn("sync", "op", a.Type, "document", a.DocumentID, "conflict", true, "serverVersion", serverVersion)

		case docsdk.IsTransient(err):
			if err := e.outbox.Retry(a.ID); err != nil {
				return err
			}
			retried++
			slog.Warn("sync", "op", a.Type, "document", a.DocumentID, "retry", a.RetryCount+1, "error", err)

		default:
			// permanent backend rejection outside the conflict taxonomy;
			// keep the action visible rather than dropping user data
			if err := e.outbox.Retry(a.ID); err != nil {
				return err
			}
			retried++
			slog.Error("sync", "op", a.Type, "document", a.DocumentID, "error", err)
		}
	}

	if err := e.outbox.Compact(); err != nil {
		return err
	}

	if !aborted {
		now := time.Now().UTC()
		if err := e.store.SetLastSync(now); err != nil {
			return err
		}
		e.mu.set(func(s *State) { s.LastSyncTime = &now })
	}

	if synced > 0 || retried > 0 || conflicted.Cardinality() > 0 {
		slog.Info("sync batch",
			"took", time.Since(tstart),
			"synced", synced,
			"retried", retried,
			"conflicts", conflicted.Cardinality(),
			"skipped", skipped.Cardinality(),
			"pending", e.outbox.Pending(),
		)
	}

	if aborted {
		return ctx.Err()
	}
	return nil
}

type createData struct {
	Folder  string          `json:"folder"`
	Title   string          `json:"title"`
	Payload json.RawMessage `json:"payload"`
}

// replay sends one action to the backend and applies the outcome. The
// second return marks storage failures, which abort the whole batch.
func (e *Engine) replay(ctx context.Context, a *QueuedAction) (error, bool) {
	switch a.Type {
	case ActionCreate:
		var cd createData
		if err := json.Unmarshal(a.Data, &cd); err != nil {
			return fmt.Errorf("decode create action %s: %w", a.ID, err), true
		}

		res, err := e.backend.CreateDocument(ctx, cd.Folder, cd.Title, cd.Payload)
		if err != nil {
			return err, false
		}

		if err := e.outbox.MarkSynced(a.ID); err != nil {
			return err, true
		}

		docID := a.DocumentID
		if res.ID != docID {
			// durable rename first, then memory
			if err := e.store.RenameDocument(docID, res.ID); err != nil {
				return err, true
			}
			e.cache.rename(docID, res.ID)
			e.outbox.RewriteDocumentID(docID, res.ID)
			slog.Info("sync", "op", a.Type, "document", res.ID, "tempId", docID)
			docID = res.ID
		}

		return e.finishReplay(docID, res.Version, cd.Payload), true

	case ActionUpdate:
		newVersion, err := e.backend.UpdateDocument(ctx, a.DocumentID, a.BaseVersion, a.Data)
		if err != nil {
			return err, false
		}

		if err := e.outbox.MarkSynced(a.ID); err != nil {
			return err, true
		}
		return e.finishReplay(a.DocumentID, newVersion, a.Data), true

	case ActionDelete:
		err := e.backend.DeleteDocument(ctx, a.DocumentID)
		if err != nil && !docsdk.IsNotFound(err) {
			return err, false
		}
		// deleting an already-gone document is a success
		return e.outbox.MarkSynced(a.ID), true

	default:
		return fmt.Errorf("unknown action type %q", a.Type), true
	}
}

// finishReplay records a confirmed write: rebase the document's remaining
// actions onto the new version, update the record and append the version to
// the history. All failures here are storage failures.
func (e *Engine) finishReplay(docID string, version int64, payload json.RawMessage) error {
	if err := e.outbox.Rebase(docID, version); err != nil {
		return err
	}
	if err := e.cache.applySyncSuccess(docID, version, e.outbox.PendingFor(docID) > 0); err != nil {
		return err
	}
	return e.cache.AppendVersion(&DocumentVersion{
		DocumentID: docID,
		Number:     version,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	})
}

// ---- status & teardown ---------------------------------------------------

// Status reports the live sync state plus queue and conflict visibility.
func (e *Engine) Status() Status {
	size, err := e.store.Size()
	if err != nil {
		slog.Error("query storage size", "error", err)
	}

	return Status{
		State:          e.mu.get(),
		PendingActions: e.outbox.Pending(),
		StuckActions:   e.outbox.StuckCount(e.stuckThreshold),
		ConflictedIDs:  e.cache.ConflictedIDs(),
		StorageBytes:   size,
	}
}

// ClearOfflineData destroys all persisted and cached state. Refused while a
// sync batch is running.
func (e *Engine) ClearOfflineData() error {
	select {
	case e.muSync <- struct{}{}:
	default:
		return ErrSyncAlreadyRunning
	}
	defer func() { <-e.muSync }()

	if err := e.store.Reset(); err != nil {
		return err
	}
	e.cache.reset()
	e.outbox.reset()
	e.mu.set(func(s *State) {
		s.LastSyncTime = nil
		s.IsOffline = e.monitor.Offline()
	})
	slog.Warn("offline data cleared")
	return nil
}

func (e *Engine) nudgeSync() {
	select {
	case e.nudge <- struct{}{}:
	default:
	}
}

// syncStateMu is the tiny guarded State holder; the engine is the only
// writer of SyncInProgress and LastSyncTime, the monitor loop of IsOffline.
type syncStateMu struct {
	mu    sync.RWMutex
	state State
}

func (m *syncStateMu) set(fn func(*State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
}

func (m *syncStateMu) get() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
