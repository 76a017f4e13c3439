package handlers

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/docboxhq/docbox/internal/client/sync"
	"github.com/docboxhq/docbox/internal/version"
)

// StatusHandler reports the engine and build state for UI polling.
type StatusHandler struct {
	engine *sync.Engine
}

func NewStatusHandler(engine *sync.Engine) *StatusHandler {
	return &StatusHandler{engine: engine}
}

func (h *StatusHandler) Status(ctx *gin.Context) {
	st := h.engine.Status()

	lastSync := ""
	if st.State.LastSyncTime != nil {
		lastSync = st.State.LastSyncTime.UTC().Format(time.RFC3339)
	}

	ctx.PureJSON(http.StatusOK, &StatusResponse{
		Status:         "ok",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Version:        version.Version,
		Revision:       version.Revision,
		IsOffline:      st.State.IsOffline,
		SyncInProgress: st.State.SyncInProgress,
		LastSyncTime:   lastSync,
		PendingActions: st.PendingActions,
		StuckActions:   st.StuckActions,
		Conflicts:      st.ConflictedIDs,
		StorageBytes:   st.StorageBytes,
		StorageHuman:   humanize.IBytes(uint64(st.StorageBytes)),
	})
}
