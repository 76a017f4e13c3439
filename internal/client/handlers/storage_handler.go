package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docboxhq/docbox/internal/client/sync"
)

// StorageHandler owns the destructive and snapshot surfaces of the store.
type StorageHandler struct {
	engine *sync.Engine
}

func NewStorageHandler(engine *sync.Engine) *StorageHandler {
	return &StorageHandler{engine: engine}
}

// Clear destroys all offline data: documents, versions, outbox, last sync.
func (h *StorageHandler) Clear(ctx *gin.Context) {
	if err := h.engine.ClearOfflineData(); err != nil {
		if errors.Is(err, sync.ErrSyncAlreadyRunning) {
			AbortWithError(ctx, http.StatusConflict, ErrCodeSyncBusy, err)
			return
		}
		AbortWithError(ctx, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &ControlPlaneResponse{Code: CodeOk})
}

// Export streams a full state snapshot for host-driven checkpoints.
func (h *StorageHandler) Export(ctx *gin.Context) {
	data, err := h.engine.ExportState()
	if err != nil {
		AbortWithError(ctx, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	ctx.Data(http.StatusOK, "application/json", data)
}

// Import replaces all engine state with an uploaded snapshot.
func (h *StorageHandler) Import(ctx *gin.Context) {
	data, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		AbortWithError(ctx, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	if err := h.engine.ImportState(data); err != nil {
		if errors.Is(err, sync.ErrSyncAlreadyRunning) {
			AbortWithError(ctx, http.StatusConflict, ErrCodeSyncBusy, err)
			return
		}
		// schema mismatch and decode failures are both the caller's snapshot
		AbortWithError(ctx, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &ControlPlaneResponse{Code: CodeOk})
}
