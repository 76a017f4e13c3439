package sync

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Cache is the table of locally known documents and their version history.
// All writes go through the Store; a failed write is returned as-is because
// losing durability silently would break the offline guarantee.
//
// The cache is safe for concurrent use, but field ownership is split: the
// orchestrator writes sync flags and conflict status, the UI path writes
// payloads, see the engine.
type Cache struct {
	mu       sync.RWMutex
	docs     map[string]*DocumentRecord
	versions map[string][]*DocumentVersion // sorted descending by number
	store    Store
}

func NewCache(store Store) *Cache {
	return &Cache{
		docs:     make(map[string]*DocumentRecord),
		versions: make(map[string][]*DocumentVersion),
		store:    store,
	}
}

// load seeds the cache from persisted state. Called once at engine start.
func (c *Cache) load(state *PersistedState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, doc := range state.Documents {
		c.docs[doc.ID] = doc
	}
	for _, v := range state.Versions {
		c.versions[v.DocumentID] = append(c.versions[v.DocumentID], v)
	}
	for id := range c.versions {
		sortVersions(c.versions[id])
	}
}

// Upsert inserts or replaces the record for doc.ID with canonical content.
// The record comes out clean: lastSynced now, no local changes. An existing
// conflict status is preserved; only the resolver clears it.
func (c *Cache) Upsert(doc *DocumentRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	rec := doc.clone()
	rec.LastSynced = &now
	rec.LocalChanges = false

	if prev, ok := c.docs[rec.ID]; ok {
		rec.Conflict = prev.Conflict
		rec.RemoteVersion = prev.RemoteVersion
	} else if rec.Conflict == "" {
		rec.Conflict = ConflictNone
	}

	if err := c.store.PutDocument(rec); err != nil {
		return err
	}
	c.docs[rec.ID] = rec
	return nil
}

// insertLocal registers a brand-new, not-yet-synced document (UI "add").
func (c *Cache) insertLocal(doc *DocumentRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := doc.clone()
	rec.LocalChanges = true
	rec.Conflict = ConflictNone

	if err := c.store.PutDocument(rec); err != nil {
		return err
	}
	c.docs[rec.ID] = rec
	return nil
}

// EditRequest is a partial update produced by the editor.
type EditRequest struct {
	Title   *string         `json:"title,omitempty"`
	Folder  *string         `json:"folder,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ApplyEdit merges a partial update into an existing record and flags it
// dirty. Editing an unknown ID is a caller error: logged, not fatal.
// The bool reports whether anything was applied.
func (c *Cache) ApplyEdit(id string, edit *EditRequest) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.docs[id]
	if !ok {
		slog.Warn("edit for unknown document ignored", "id", id)
		return false, nil
	}

	next := rec.clone()
	if edit.Title != nil {
		next.Title = *edit.Title
	}
	if edit.Folder != nil {
		next.Folder = *edit.Folder
	}
	if len(edit.Payload) > 0 {
		merged, err := mergePayload(next.Payload, edit.Payload)
		if err != nil {
			return false, fmt.Errorf("merge payload for %s: %w", id, err)
		}
		next.Payload = merged
	}
	next.LocalChanges = true

	if err := c.store.PutDocument(next); err != nil {
		return false, err
	}
	c.docs[id] = next
	return true, nil
}

// Remove deletes the record and all its cached versions. Unknown IDs are a
// logged no-op.
func (c *Cache) Remove(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[id]; !ok {
		slog.Warn("remove for unknown document ignored", "id", id)
		return false, nil
	}

	if err := c.store.DeleteDocument(id); err != nil {
		return false, err
	}
	if err := c.store.DeleteVersions(id); err != nil {
		return false, err
	}
	delete(c.docs, id)
	delete(c.versions, id)
	return true, nil
}

// Get returns a copy of the record, or nil when unknown.
func (c *Cache) Get(id string) *DocumentRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.docs[id]
	if !ok {
		return nil
	}
	return rec.clone()
}

// List returns copies of all records.
func (c *Cache) List() []*DocumentRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*DocumentRecord, 0, len(c.docs))
	for _, rec := range c.docs {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AppendVersion adds one version to the document's history, keeping the list
// sorted descending by number. Lists only grow; callers must not append the
// same version twice.
func (c *Cache) AppendVersion(v *DocumentVersion) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.PutVersion(v); err != nil {
		return err
	}
	c.versions[v.DocumentID] = append(c.versions[v.DocumentID], v)
	sortVersions(c.versions[v.DocumentID])
	return nil
}

// Versions returns the version history, newest first.
func (c *Cache) Versions(id string) []*DocumentVersion {
	c.mu.RLock()
	defer c.mu.RUnlock()

	vs := c.versions[id]
	out := make([]*DocumentVersion, len(vs))
	copy(out, vs)
	return out
}

// MarkConflict flags the document as diverged from the backend. Idempotent.
// remoteVersion is the server version learned from the rejected replay.
func (c *Cache) MarkConflict(id string, remoteVersion int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.docs[id]
	if !ok {
		slog.Warn("conflict mark for unknown document ignored", "id", id)
		return nil
	}

	next := rec.clone()
	next.Conflict = ConflictPending
	if remoteVersion > 0 {
		next.RemoteVersion = remoteVersion
	}

	if err := c.store.PutDocument(next); err != nil {
		return err
	}
	c.docs[id] = next
	return nil
}

// setResolved clears the pending flag and records the resolution outcome.
func (c *Cache) setResolved(id string, localChanges bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.docs[id]
	if !ok {
		slog.Warn("conflict resolve for unknown document ignored", "id", id)
		return nil
	}

	next := rec.clone()
	next.Conflict = ConflictResolved
	next.LocalChanges = localChanges

	if err := c.store.PutDocument(next); err != nil {
		return err
	}
	c.docs[id] = next
	return nil
}

// HasPendingConflict reports whether the document must be skipped by the
// auto-flush.
func (c *Cache) HasPendingConflict(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.docs[id]
	return ok && rec.Conflict == ConflictPending
}

// ConflictedIDs lists documents awaiting resolution.
func (c *Cache) ConflictedIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []string
	for id, rec := range c.docs {
		if rec.Conflict == ConflictPending {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// rename rewrites a temporary ID to the backend-assigned one in memory.
// The durable rewrite happens in Store.RenameDocument, driven by the engine.
func (c *Cache) rename(oldID, newID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.docs[oldID]; ok {
		rec.ID = newID
		c.docs[newID] = rec
		delete(c.docs, oldID)
	}
	if vs, ok := c.versions[oldID]; ok {
		for _, v := range vs {
			v.DocumentID = newID
		}
		c.versions[newID] = vs
		delete(c.versions, oldID)
	}
}

// applySyncSuccess records a confirmed replay: new base version, fresh
// lastSynced, and the dirty flag down only when nothing else is queued.
func (c *Cache) applySyncSuccess(id string, version int64, stillPending bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.docs[id]
	if !ok {
		// document was removed locally while its action synced
		return nil
	}

	next := rec.clone()
	next.BaseVersion = version
	next.LocalChanges = stillPending
	now := time.Now().UTC()
	next.LastSynced = &now

	if err := c.store.PutDocument(next); err != nil {
		return err
	}
	c.docs[id] = next
	return nil
}

// reset drops everything from memory. The store is reset by the engine.
func (c *Cache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = make(map[string]*DocumentRecord)
	c.versions = make(map[string][]*DocumentVersion)
}

func sortVersions(vs []*DocumentVersion) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].Number > vs[j].Number })
}

// mergePayload shallow-merges a partial JSON object into the existing
// payload. Non-object payloads are replaced wholesale.
func mergePayload(current, partial json.RawMessage) (json.RawMessage, error) {
	if len(current) == 0 {
		return partial, nil
	}

	var base map[string]json.RawMessage
	if err := json.Unmarshal(current, &base); err != nil {
		// current payload isn't an object; replace it
		return partial, nil
	}

	var patch map[string]json.RawMessage
	if err := json.Unmarshal(partial, &patch); err != nil {
		return partial, nil
	}

	for k, v := range patch {
		base[k] = v
	}
	return json.Marshal(base)
}
