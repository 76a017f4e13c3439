package sync

import (
	"context"

	"github.com/goccy/go-json"
)

// CreateResult is the backend's answer to a create: the canonical document
// ID and its first version.
type CreateResult struct {
	ID      string
	Version int64
}

// Backend is the remote document service the engine replays against. Errors
// are classified with the docsdk predicates: conflicts halt the document,
// transient failures increment the retry count, everything else is surfaced.
type Backend interface {
	CreateDocument(ctx context.Context, folder, title string, payload json.RawMessage) (*CreateResult, error)
	UpdateDocument(ctx context.Context, id string, baseVersion int64, payload json.RawMessage) (int64, error)
	DeleteDocument(ctx context.Context, id string) error
	GetDocument(ctx context.Context, id string) (json.RawMessage, int64, error)
}
