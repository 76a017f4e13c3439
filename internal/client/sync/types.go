package sync

import (
	"time"

	"github.com/goccy/go-json"
)

// ActionType names a queued mutation.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// ConflictStatus tracks a document's divergence from the backend.
type ConflictStatus string

const (
	ConflictNone     ConflictStatus = "none"
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
)

// Resolution is the user's answer to a pending conflict.
type Resolution string

const (
	ResolveLocal  Resolution = "local"
	ResolveRemote Resolution = "remote"
	ResolveMerge  Resolution = "merge"
)

// DocumentRecord is one cached document. BaseVersion is the last server
// version this client synced against; RemoteVersion is only set while a
// conflict is pending and holds the server version learned from the
// rejected replay.
type DocumentRecord struct {
	ID            string          `json:"id"`
	Folder        string          `json:"folder"`
	Title         string          `json:"title"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	BaseVersion   int64           `json:"baseVersion"`
	LocalChanges  bool            `json:"localChanges"`
	LastSynced    *time.Time      `json:"lastSynced,omitempty"`
	Conflict      ConflictStatus  `json:"conflictStatus"`
	RemoteVersion int64           `json:"remoteVersion,omitempty"`
}

func (d *DocumentRecord) clone() *DocumentRecord {
	cp := *d
	if d.Payload != nil {
		cp.Payload = append(json.RawMessage(nil), d.Payload...)
	}
	if d.LastSynced != nil {
		ts := *d.LastSynced
		cp.LastSynced = &ts
	}
	return &cp
}

// DocumentVersion is one immutable entry in a document's history, recorded
// on every confirmed write.
type DocumentVersion struct {
	DocumentID string          `json:"documentId"`
	Number     int64           `json:"number"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// QueuedAction is one outbox entry. Synced entries survive until the next
// compaction so a crash between acknowledge and compact never loses work.
type QueuedAction struct {
	ID          string          `json:"id"`
	Type        ActionType      `json:"type"`
	DocumentID  string          `json:"documentId"`
	Data        json.RawMessage `json:"data,omitempty"`
	BaseVersion int64           `json:"baseVersion"`
	Timestamp   time.Time       `json:"timestamp"`
	Synced      bool            `json:"synced"`
	RetryCount  int             `json:"retryCount"`
}

// State is the engine's live condition.
type State struct {
	IsOffline      bool       `json:"isOffline"`
	SyncInProgress bool       `json:"syncInProgress"`
	LastSyncTime   *time.Time `json:"lastSyncTime,omitempty"`
}

// Status is the full report surfaced to the control plane and CLI.
type Status struct {
	State          State    `json:"state"`
	PendingActions int      `json:"pendingActions"`
	StuckActions   int      `json:"stuckActions"`
	ConflictedIDs  []string `json:"conflictedIds"`
	StorageBytes   int64    `json:"storageBytes"`
}
