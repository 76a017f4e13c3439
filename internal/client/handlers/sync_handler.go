package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docboxhq/docbox/internal/client/sync"
)

type SyncHandler struct {
	engine *sync.Engine
}

func NewSyncHandler(engine *sync.Engine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// Pending lists the outbox contents awaiting replay, in replay order.
func (h *SyncHandler) Pending(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, &PendingActionsResponse{
		Actions: h.engine.PendingActions(),
	})
}

// Now triggers an immediate sync batch. Runs synchronously so the caller
// sees the post-batch state in the next status poll.
func (h *SyncHandler) Now(ctx *gin.Context) {
	err := h.engine.SyncNow(ctx.Request.Context())
	switch {
	case err == nil:
		ctx.PureJSON(http.StatusOK, &ControlPlaneResponse{Code: CodeOk})
	case errors.Is(err, sync.ErrSyncAlreadyRunning):
		AbortWithError(ctx, http.StatusConflict, ErrCodeSyncBusy, err)
	case errors.Is(err, sync.ErrOffline):
		AbortWithError(ctx, http.StatusServiceUnavailable, ErrCodeEngineOffline, err)
	default:
		AbortWithError(ctx, http.StatusInternalServerError, ErrCodeUnknownError, err)
	}
}
