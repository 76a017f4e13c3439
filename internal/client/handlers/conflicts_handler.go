package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docboxhq/docbox/internal/client/sync"
)

type ConflictsHandler struct {
	engine *sync.Engine
}

func NewConflictsHandler(engine *sync.Engine) *ConflictsHandler {
	return &ConflictsHandler{engine: engine}
}

// List returns every document awaiting resolution, including both sides'
// versions so an editor can offer a merge.
func (h *ConflictsHandler) List(ctx *gin.Context) {
	ids := h.engine.Status().ConflictedIDs

	conflicts := make([]*ConflictInfo, 0, len(ids))
	for _, id := range ids {
		rec := h.engine.GetDocument(id)
		if rec == nil {
			continue
		}
		conflicts = append(conflicts, &ConflictInfo{
			DocumentID:    id,
			Title:         rec.Title,
			Folder:        rec.Folder,
			LocalPayload:  rec.Payload,
			BaseVersion:   rec.BaseVersion,
			RemoteVersion: rec.RemoteVersion,
		})
	}

	ctx.PureJSON(http.StatusOK, &ListConflictsResponse{Conflicts: conflicts})
}

// Resolve settles one conflict with a local/remote/merge decision.
func (h *ConflictsHandler) Resolve(ctx *gin.Context) {
	id := ctx.Param("id")

	var req ResolveConflictRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		AbortWithError(ctx, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	resolution := sync.Resolution(req.Resolution)
	switch resolution {
	case sync.ResolveLocal, sync.ResolveRemote, sync.ResolveMerge:
	default:
		AbortWithError(ctx, http.StatusBadRequest, ErrCodeBadRequest,
			fmt.Errorf("unknown resolution %q", req.Resolution))
		return
	}

	if h.engine.GetDocument(id) == nil {
		AbortWithError(ctx, http.StatusNotFound, ErrCodeNotFound, errDocumentNotFound)
		return
	}

	// the merge decision carries the editor-computed payload as a local edit
	if resolution == sync.ResolveMerge && len(req.MergedPayload) > 0 {
		if err := h.engine.ApplyLocalEdit(id, &sync.EditRequest{Payload: req.MergedPayload}); err != nil {
			AbortWithError(ctx, http.StatusInternalServerError, ErrCodeUnknownError, err)
			return
		}
	}

	if err := h.engine.ResolveConflict(ctx.Request.Context(), id, resolution); err != nil {
		AbortWithError(ctx, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &ControlPlaneResponse{Code: CodeOk})
}
