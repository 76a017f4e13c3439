package handlers

// StatusResponse is the control plane health/sync report.
type StatusResponse struct {
	Status         string   `json:"status"`
	Timestamp      string   `json:"ts"`
	Version        string   `json:"version"`
	Revision       string   `json:"revision"`
	IsOffline      bool     `json:"isOffline"`
	SyncInProgress bool     `json:"syncInProgress"`
	LastSyncTime   string   `json:"lastSyncTime,omitempty"`
	PendingActions int      `json:"pendingActions"`
	StuckActions   int      `json:"stuckActions"`
	Conflicts      []string `json:"conflicts"`
	StorageBytes   int64    `json:"storageBytes"`
	StorageHuman   string   `json:"storageHuman"`
}
