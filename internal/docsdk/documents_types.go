package docsdk

import "github.com/goccy/go-json"

type CreateDocumentRequest struct {
	Folder  string          `json:"folder"`
	Title   string          `json:"title"`
	Payload json.RawMessage `json:"payload"`
}

type CreateDocumentResponse struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

type UpdateDocumentRequest struct {
	BaseVersion int64           `json:"baseVersion"`
	Payload     json.RawMessage `json:"payload"`
}

type UpdateDocumentResponse struct {
	Version int64 `json:"version"`
}

type GetDocumentResponse struct {
	ID      string          `json:"id"`
	Folder  string          `json:"folder"`
	Title   string          `json:"title"`
	Payload json.RawMessage `json:"payload"`
	Version int64           `json:"version"`
}

// wire body for error responses; carries the server version on conflicts
type apiErrorBody struct {
	Code          string `json:"code"`
	Message       string `json:"error"`
	ServerVersion int64  `json:"serverVersion,omitempty"`
}
