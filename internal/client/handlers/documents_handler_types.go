package handlers

import (
	"github.com/goccy/go-json"

	"github.com/docboxhq/docbox/internal/client/sync"
)

type CreateDocumentRequest struct {
	Folder  string          `json:"folder"`
	Title   string          `json:"title" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

type ListDocumentsResponse struct {
	Documents []*sync.DocumentRecord `json:"documents"`
}

type DocumentVersionsResponse struct {
	DocumentID string                  `json:"documentId"`
	Versions   []*sync.DocumentVersion `json:"versions"`
}
