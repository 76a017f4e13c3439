package client

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/docboxhq/docbox/internal/client/sync"
	"github.com/docboxhq/docbox/internal/docsdk"
)

// sdkBackend adapts the document SDK to the engine's Backend interface. SDK
// errors pass through untouched so the engine's conflict/transient
// classification sees the original types.
type sdkBackend struct {
	docs *docsdk.DocumentsAPI
}

func (b *sdkBackend) CreateDocument(ctx context.Context, folder, title string, payload json.RawMessage) (*sync.CreateResult, error) {
	res, err := b.docs.Create(ctx, &docsdk.CreateDocumentRequest{
		Folder:  folder,
		Title:   title,
		Payload: payload,
	})
	if err != nil {
		return nil, err
	}
	return &sync.CreateResult{ID: res.ID, Version: res.Version}, nil
}

func (b *sdkBackend) UpdateDocument(ctx context.Context, id string, baseVersion int64, payload json.RawMessage) (int64, error) {
	res, err := b.docs.Update(ctx, id, &docsdk.UpdateDocumentRequest{
		BaseVersion: baseVersion,
		Payload:     payload,
	})
	if err != nil {
		return 0, err
	}
	return res.Version, nil
}

func (b *sdkBackend) DeleteDocument(ctx context.Context, id string) error {
	return b.docs.Delete(ctx, id)
}

func (b *sdkBackend) GetDocument(ctx context.Context, id string) (json.RawMessage, int64, error) {
	res, err := b.docs.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	return res.Payload, res.Version, nil
}

var _ sync.Backend = (*sdkBackend)(nil)
