package sync

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var ErrSchemaMismatch = errors.New("snapshot schema mismatch")

// ExportState serializes the full engine state (documents, version
// histories, outbox, last sync time) into a portable snapshot. Connectivity
// and in-progress flags are runtime-only and never exported.
func (e *Engine) ExportState() ([]byte, error) {
	st := e.mu.get()

	snap := &PersistedState{
		Schema:    schemaVersion,
		Documents: e.cache.List(),
		Actions:   e.outbox.Unsynced(),
		LastSync:  st.LastSyncTime,
	}
	for _, d := range snap.Documents {
		snap.Versions = append(snap.Versions, e.cache.Versions(d.ID)...)
	}

	return json.Marshal(snap)
}

// ImportState replaces all engine state with the snapshot's contents.
// Refused while a sync batch is running. The store is reset first, so a
// decode failure before that point leaves current state untouched.
func (e *Engine) ImportState(data []byte) error {
	var snap PersistedState
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Schema != schemaVersion {
		return fmt.Errorf("%w: got %q, want %q", ErrSchemaMismatch, snap.Schema, schemaVersion)
	}

	select {
	case e.muSync <- struct{}{}:
	default:
		return ErrSyncAlreadyRunning
	}
	defer func() { <-e.muSync }()

	if err := e.store.Reset(); err != nil {
		return err
	}
	for _, d := range snap.Documents {
		if err := e.store.PutDocument(d); err != nil {
			return err
		}
	}
	for _, v := range snap.Versions {
		if err := e.store.PutVersion(v); err != nil {
			return err
		}
	}
	for _, a := range snap.Actions {
		if err := e.store.PutAction(a); err != nil {
			return err
		}
	}
	if snap.LastSync != nil {
		if err := e.store.SetLastSync(*snap.LastSync); err != nil {
			return err
		}
	}

	state, err := e.store.Load()
	if err != nil {
		return fmt.Errorf("reload imported state: %w", err)
	}
	e.cache.reset()
	e.outbox.reset()
	e.cache.load(state)
	e.outbox.load(state)
	e.mu.set(func(s *State) { s.LastSyncTime = state.LastSync })
	return nil
}
