package handlers

import "github.com/goccy/go-json"

type ConflictInfo struct {
	DocumentID    string          `json:"documentId"`
	Title         string          `json:"title"`
	Folder        string          `json:"folder"`
	LocalPayload  json.RawMessage `json:"localPayload,omitempty"`
	BaseVersion   int64           `json:"baseVersion"`
	RemoteVersion int64           `json:"remoteVersion,omitempty"`
}

type ListConflictsResponse struct {
	Conflicts []*ConflictInfo `json:"conflicts"`
}

type ResolveConflictRequest struct {
	Resolution    string          `json:"resolution" binding:"required"`
	MergedPayload json.RawMessage `json:"mergedPayload,omitempty"`
}
