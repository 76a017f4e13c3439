package sync

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/docboxhq/docbox/internal/db"
)

const schemaVersion = "1"

const schema = `
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    folder TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    payload BLOB,
    base_version INTEGER NOT NULL DEFAULT 0,
    local_changes INTEGER NOT NULL DEFAULT 0,
    last_synced TEXT,
    conflict_status TEXT NOT NULL DEFAULT 'none',
    remote_version INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS document_versions (
    document_id TEXT NOT NULL,
    number INTEGER NOT NULL,
    payload BLOB,
    created_at TEXT NOT NULL,
    PRIMARY KEY (document_id, number)
);

CREATE TABLE IF NOT EXISTS outbox (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    document_id TEXT NOT NULL,
    data BLOB,
    base_version INTEGER NOT NULL DEFAULT 0,
    timestamp TEXT NOT NULL,
    synced INTEGER NOT NULL DEFAULT 0,
    retry_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_outbox_document ON outbox(document_id);
CREATE INDEX IF NOT EXISTS idx_versions_document ON document_versions(document_id);
`

// PersistedState is everything the engine stores durably. Live-only fields
// (offline flag, sync-in-progress) are re-derived at start-up and never
// appear here.
type PersistedState struct {
	Schema    string             `json:"schema"`
	Documents []*DocumentRecord  `json:"documents"`
	Versions  []*DocumentVersion `json:"versions"`
	Actions   []*QueuedAction    `json:"actions"`
	LastSync  *time.Time         `json:"lastSync,omitempty"`
}

// Store is the durable layer underneath the cache and the outbox. Any write
// error breaks the offline guarantee, so callers treat failures as fatal.
type Store interface {
	Load() (*PersistedState, error)
	PutDocument(doc *DocumentRecord) error
	DeleteDocument(id string) error
	PutVersion(v *DocumentVersion) error
	DeleteVersions(documentID string) error
	PutAction(a *QueuedAction) error
	DeleteAction(id string) error
	RenameDocument(oldID, newID string) error
	SetLastSync(t time.Time) error
	Size() (int64, error)
	Reset() error
	Close() error
}

// SqliteStore persists engine state in a local SQLite database.
type SqliteStore struct {
	db *sqlx.DB
}

// NewSqliteStore opens (or creates) the store at path. Use ":memory:" in
// tests.
func NewSqliteStore(path string) (*SqliteStore, error) {
	// one writer; WAL readers don't block it
	sdb, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("open sync store: %w", err)
	}

	if _, err := sdb.Exec(schema); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("initialize sync store schema: %w", err)
	}

	if _, err := sdb.Exec(
		"INSERT INTO meta (key, value) VALUES ('schema_version', ?) ON CONFLICT(key) DO NOTHING",
		schemaVersion,
	); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("write schema version: %w", err)
	}

	if err := migrate(sdb); err != nil {
		sdb.Close()
		return nil, err
	}

	return &SqliteStore{db: sdb}, nil
}

// migrate brings an older on-disk schema up to schemaVersion. There is a
// single version so far, so anything else is a store from a newer build.
func migrate(sdb *sqlx.DB) error {
	var stored string
	if err := sdb.Get(&stored, "SELECT value FROM meta WHERE key = 'schema_version'"); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if stored != schemaVersion {
		return fmt.Errorf("sync store schema %q is not supported (want %q)", stored, schemaVersion)
	}
	return nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) Load() (*PersistedState, error) {
	state := &PersistedState{Schema: schemaVersion}

	type docRow struct {
		ID             string  `db:"id"`
		Folder         string  `db:"folder"`
		Title          string  `db:"title"`
		Payload        []byte  `db:"payload"`
		BaseVersion    int64   `db:"base_version"`
		LocalChanges   bool    `db:"local_changes"`
		LastSynced     *string `db:"last_synced"`
		ConflictStatus string  `db:"conflict_status"`
		RemoteVersion  int64   `db:"remote_version"`
	}

	var docs []docRow
	if err := s.db.Select(&docs, "SELECT * FROM documents"); err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	for _, r := range docs {
		rec := &DocumentRecord{
			ID:            r.ID,
			Folder:        r.Folder,
			Title:         r.Title,
			Payload:       r.Payload,
			BaseVersion:   r.BaseVersion,
			LocalChanges:  r.LocalChanges,
			Conflict:      ConflictStatus(r.ConflictStatus),
			RemoteVersion: r.RemoteVersion,
		}
		if r.LastSynced != nil {
			ts, err := time.Parse(time.RFC3339Nano, *r.LastSynced)
			if err != nil {
				return nil, fmt.Errorf("parse last_synced for %s: %w", r.ID, err)
			}
			rec.LastSynced = &ts
		}
		state.Documents = append(state.Documents, rec)
	}

	type verRow struct {
		DocumentID string `db:"document_id"`
		Number     int64  `db:"number"`
		Payload    []byte `db:"payload"`
		CreatedAt  string `db:"created_at"`
	}
	var vers []verRow
	if err := s.db.Select(&vers, "SELECT * FROM document_versions ORDER BY document_id, number DESC"); err != nil {
		return nil, fmt.Errorf("load versions: %w", err)
	}
	for _, r := range vers {
		ts, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse version created_at for %s: %w", r.DocumentID, err)
		}
		state.Versions = append(state.Versions, &DocumentVersion{
			DocumentID: r.DocumentID,
			Number:     r.Number,
			Payload:    r.Payload,
			CreatedAt:  ts,
		})
	}

	type actRow struct {
		Seq         int64  `db:"seq"`
		ID          string `db:"id"`
		Type        string `db:"type"`
		DocumentID  string `db:"document_id"`
		Data        []byte `db:"data"`
		BaseVersion int64  `db:"base_version"`
		Timestamp   string `db:"timestamp"`
		Synced      bool   `db:"synced"`
		RetryCount  int    `db:"retry_count"`
	}
	var acts []actRow
	if err := s.db.Select(&acts, "SELECT * FROM outbox ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("load outbox: %w", err)
	}
	for _, r := range acts {
		ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("parse action timestamp for %s: %w", r.ID, err)
		}
		state.Actions = append(state.Actions, &QueuedAction{
			ID:          r.ID,
			Type:        ActionType(r.Type),
			DocumentID:  r.DocumentID,
			Data:        r.Data,
			BaseVersion: r.BaseVersion,
			Timestamp:   ts,
			Synced:      r.Synced,
			RetryCount:  r.RetryCount,
		})
	}

	var lastSync string
	err := s.db.Get(&lastSync, "SELECT value FROM meta WHERE key = 'last_sync'")
	if err == nil && lastSync != "" {
		ts, perr := time.Parse(time.RFC3339Nano, lastSync)
		if perr != nil {
			return nil, fmt.Errorf("parse last_sync: %w", perr)
		}
		state.LastSync = &ts
	}

	return state, nil
}

func (s *SqliteStore) PutDocument(doc *DocumentRecord) error {
	var lastSynced *string
	if doc.LastSynced != nil {
		ts := doc.LastSynced.Format(time.RFC3339Nano)
		lastSynced = &ts
	}

	_, err := s.db.Exec(`
		INSERT INTO documents (id, folder, title, payload, base_version, local_changes, last_synced, conflict_status, remote_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			folder = excluded.folder,
			title = excluded.title,
			payload = excluded.payload,
			base_version = excluded.base_version,
			local_changes = excluded.local_changes,
			last_synced = excluded.last_synced,
			conflict_status = excluded.conflict_status,
			remote_version = excluded.remote_version`,
		doc.ID, doc.Folder, doc.Title, []byte(doc.Payload), doc.BaseVersion,
		doc.LocalChanges, lastSynced, string(doc.Conflict), doc.RemoteVersion,
	)
	if err != nil {
		return fmt.Errorf("put document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SqliteStore) DeleteDocument(id string) error {
	if _, err := s.db.Exec("DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func (s *SqliteStore) PutVersion(v *DocumentVersion) error {
	_, err := s.db.Exec(`
		INSERT INTO document_versions (document_id, number, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id, number) DO NOTHING`,
		v.DocumentID, v.Number, []byte(v.Payload), v.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put version %s@%d: %w", v.DocumentID, v.Number, err)
	}
	return nil
}

func (s *SqliteStore) DeleteVersions(documentID string) error {
	if _, err := s.db.Exec("DELETE FROM document_versions WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("delete versions for %s: %w", documentID, err)
	}
	return nil
}

func (s *SqliteStore) PutAction(a *QueuedAction) error {
	_, err := s.db.Exec(`
		INSERT INTO outbox (id, type, document_id, data, base_version, timestamp, synced, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			data = excluded.data,
			base_version = excluded.base_version,
			synced = excluded.synced,
			retry_count = excluded.retry_count`,
		a.ID, string(a.Type), a.DocumentID, []byte(a.Data), a.BaseVersion,
		a.Timestamp.Format(time.RFC3339Nano), a.Synced, a.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("put action %s: %w", a.ID, err)
	}
	return nil
}

func (s *SqliteStore) DeleteAction(id string) error {
	if _, err := s.db.Exec("DELETE FROM outbox WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete action %s: %w", id, err)
	}
	return nil
}

// RenameDocument rewrites a temporary client ID to the backend-assigned one
// across the document table, its versions and any queued actions.
func (s *SqliteStore) RenameDocument(oldID, newID string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("rename document %s: %w", oldID, err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"UPDATE documents SET id = ? WHERE id = ?",
		"UPDATE document_versions SET document_id = ? WHERE document_id = ?",
		"UPDATE outbox SET document_id = ? WHERE document_id = ?",
	} {
		if _, err := tx.Exec(stmt, newID, oldID); err != nil {
			return fmt.Errorf("rename document %s -> %s: %w", oldID, newID, err)
		}
	}

	return tx.Commit()
}

func (s *SqliteStore) SetLastSync(t time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO meta (key, value) VALUES ('last_sync', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		t.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set last sync: %w", err)
	}
	return nil
}

// Size reports the database footprint in bytes.
func (s *SqliteStore) Size() (int64, error) {
	var size int64
	if err := s.db.Get(&size, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()"); err != nil {
		return 0, fmt.Errorf("query store size: %w", err)
	}
	return size, nil
}

// Reset destroys all offline data. Only the explicit "clear offline data"
// operation calls this.
func (s *SqliteStore) Reset() error {
	for _, stmt := range []string{
		"DELETE FROM documents",
		"DELETE FROM document_versions",
		"DELETE FROM outbox",
		"DELETE FROM meta WHERE key = 'last_sync'",
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("reset store: %w", err)
		}
	}
	return nil
}

var _ Store = (*SqliteStore)(nil)
