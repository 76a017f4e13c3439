package handlers

import "github.com/docboxhq/docbox/internal/client/sync"

type PendingActionsResponse struct {
	Actions []*sync.QueuedAction `json:"actions"`
}
