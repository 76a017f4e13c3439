package sync

import (
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Outbox is the ordered log of pending mutations. Append order equals replay
// order; the global FIFO subsumes the per-document FIFO guarantee.
type Outbox struct {
	mu      sync.Mutex
	actions []*QueuedAction
	byID    map[string]*QueuedAction
	store   Store
}

func NewOutbox(store Store) *Outbox {
	return &Outbox{
		byID:  make(map[string]*QueuedAction),
		store: store,
	}
}

// load seeds the outbox from persisted state, preserving enqueue order.
func (o *Outbox) load(state *PersistedState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.actions = append(o.actions, state.Actions...)
	for _, a := range state.Actions {
		o.byID[a.ID] = a
	}
}

// Enqueue appends a new action: fresh id, current timestamp, unsynced, zero
// retries.
func (o *Outbox) Enqueue(typ ActionType, documentID string, data json.RawMessage, baseVersion int64) (*QueuedAction, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a := &QueuedAction{
		ID:          uuid.NewString(),
		Type:        typ,
		DocumentID:  documentID,
		Data:        data,
		BaseVersion: baseVersion,
		Timestamp:   time.Now().UTC(),
	}

	if err := o.store.PutAction(a); err != nil {
		return nil, err
	}
	o.actions = append(o.actions, a)
	o.byID[a.ID] = a
	return a, nil
}

// MarkSynced flags the action as accepted by the backend. The entry stays in
// the log until Compact so a crash in between cannot lose the success.
func (o *Outbox) MarkSynced(actionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.byID[actionID]
	if !ok {
		slog.Warn("mark synced for unknown action ignored", "id", actionID)
		return nil
	}

	a.Synced = true
	return o.store.PutAction(a)
}

// Retry bumps the retry counter, nothing else. The engine imposes no retry
// ceiling; hosts watch RetryCount and decide.
func (o *Outbox) Retry(actionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.byID[actionID]
	if !ok {
		slog.Warn("retry for unknown action ignored", "id", actionID)
		return nil
	}

	a.RetryCount++
	return o.store.PutAction(a)
}

// Compact removes every synced action. Call only after the batch outcome is
// durable; unsynced actions are never touched.
func (o *Outbox) Compact() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	kept := o.actions[:0]
	for _, a := range o.actions {
		if !a.Synced {
			kept = append(kept, a)
			continue
		}
		if err := o.store.DeleteAction(a.ID); err != nil {
			return err
		}
		delete(o.byID, a.ID)
	}
	o.actions = kept
	return nil
}

// Unsynced returns the pending actions in replay order.
func (o *Outbox) Unsynced() []*QueuedAction {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []*QueuedAction
	for _, a := range o.actions {
		if !a.Synced {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// Get returns a current copy of an action, or nil. Replays fetch the live
// entry right before sending so an earlier Rebase in the same batch is
// visible.
func (o *Outbox) Get(actionID string) *QueuedAction {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.byID[actionID]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// Pending is the number of unsynced actions (UI badge).
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, a := range o.actions {
		if !a.Synced {
			n++
		}
	}
	return n
}

// PendingFor counts unsynced actions targeting one document.
func (o *Outbox) PendingFor(documentID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, a := range o.actions {
		if !a.Synced && a.DocumentID == documentID {
			n++
		}
	}
	return n
}

// StuckCount counts unsynced actions at or past the retry threshold.
func (o *Outbox) StuckCount(threshold int) int {
	if threshold <= 0 {
		return 0
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, a := range o.actions {
		if !a.Synced && a.RetryCount >= threshold {
			n++
		}
	}
	return n
}

// RewriteDocumentID retargets queued actions after a create was assigned its
// canonical backend ID. In-memory only; the engine drives the durable rename.
func (o *Outbox) RewriteDocumentID(oldID, newID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, a := range o.actions {
		if a.DocumentID == oldID {
			a.DocumentID = newID
		}
	}
}

// Rebase updates the base version of remaining unsynced actions for a
// document after an earlier action advanced the server copy. Without this,
// the second of two queued updates would always read as a conflict.
func (o *Outbox) Rebase(documentID string, version int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, a := range o.actions {
		if a.Synced || a.DocumentID != documentID {
			continue
		}
		a.BaseVersion = version
		if err := o.store.PutAction(a); err != nil {
			return err
		}
	}
	return nil
}

// DropFor removes unsynced actions for a document whose local changes were
// discarded (remote conflict resolution).
func (o *Outbox) DropFor(documentID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	kept := o.actions[:0]
	for _, a := range o.actions {
		if !a.Synced && a.DocumentID == documentID {
			if err := o.store.DeleteAction(a.ID); err != nil {
				return err
			}
			delete(o.byID, a.ID)
			continue
		}
		kept = append(kept, a)
	}
	o.actions = kept
	return nil
}

// reset drops everything from memory. The store is reset by the engine.
func (o *Outbox) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions = nil
	o.byID = make(map[string]*QueuedAction)
}
