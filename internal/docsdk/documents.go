package docsdk

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/imroc/req/v3"
)

const (
	v1Documents = "/api/v1/documents"
	v1Document  = "/api/v1/documents/{id}"
	v1Health    = "/api/v1/health"

	fetchCacheSize = 128
)

// DocumentsAPI exposes the backend document CRUD surface.
type DocumentsAPI struct {
	client *req.Client

	// canonical payload fetches are cached; conflict resolution tends to
	// re-read the same document several times in a row
	fetchCache *lru.Cache[string, *GetDocumentResponse]
}

func newDocumentsAPI(client *req.Client) *DocumentsAPI {
	cache, _ := lru.New[string, *GetDocumentResponse](fetchCacheSize)
	return &DocumentsAPI{
		client:     client,
		fetchCache: cache,
	}
}

// Create registers a new document; the backend assigns the canonical ID.
func (d *DocumentsAPI) Create(ctx context.Context, params *CreateDocumentRequest) (*CreateDocumentResponse, error) {
	var resp CreateDocumentResponse
	res, err := d.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&resp).
		Post(v1Documents)

	if err := handleAPIError(res, err, "document create"); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Update replaces the payload of a document. A 409 means the server copy
// advanced past baseVersion; the returned ConflictError carries the server's
// current version.
func (d *DocumentsAPI) Update(ctx context.Context, id string, params *UpdateDocumentRequest) (*UpdateDocumentResponse, error) {
	var resp UpdateDocumentResponse
	var errBody apiErrorBody

	res, err := d.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetHeader(HeaderBaseVersion, fmt.Sprintf("%d", params.BaseVersion)).
		SetBody(params).
		SetSuccessResult(&resp).
		SetErrorResult(&errBody).
		Put(v1Document)

	if err != nil {
		return nil, fmt.Errorf("http request error: document update: %w", err)
	}

	if res.IsErrorState() {
		d.fetchCache.Remove(id)
		if errBody.Code == CodeVersionConflict {
			return nil, &ConflictError{DocumentID: id, ServerVersion: errBody.ServerVersion}
		}
		return nil, fmt.Errorf("document update: %w", &APIError{
			Code:    orUnknown(errBody.Code),
			Message: errBody.Message,
			status:  res.StatusCode,
		})
	}

	d.fetchCache.Remove(id)
	return &resp, nil
}

// Delete removes a document by ID.
func (d *DocumentsAPI) Delete(ctx context.Context, id string) error {
	res, err := d.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Delete(v1Document)

	d.fetchCache.Remove(id)
	return handleAPIError(res, err, "document delete")
}

// Get fetches the canonical copy of a document.
func (d *DocumentsAPI) Get(ctx context.Context, id string) (*GetDocumentResponse, error) {
	if cached, ok := d.fetchCache.Get(id); ok {
		return cached, nil
	}

	var resp GetDocumentResponse
	res, err := d.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetSuccessResult(&resp).
		Get(v1Document)

	if err := handleAPIError(res, err, "document get"); err != nil {
		return nil, err
	}

	d.fetchCache.Add(id, &resp)
	return &resp, nil
}

// Invalidate drops a cached fetch. Called when a remote-change push makes
// the cached copy stale.
func (d *DocumentsAPI) Invalidate(id string) {
	d.fetchCache.Remove(id)
}

// Health probes the backend; used by the connectivity monitor.
func (d *DocumentsAPI) Health(ctx context.Context) error {
	res, err := d.client.R().
		SetContext(ctx).
		Get(v1Health)
	return handleAPIError(res, err, "health")
}

func orUnknown(code string) string {
	if code == "" {
		return CodeUnknownError
	}
	return code
}
