package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docboxhq/docbox/internal/client/sync"
)

var errDocumentNotFound = errors.New("document not found")

// DocumentsHandler exposes the cached document table to UI consumers. All
// mutations are optimistic: they land in the cache and outbox immediately
// and replay on the next sync cycle.
type DocumentsHandler struct {
	engine *sync.Engine
}

func NewDocumentsHandler(engine *sync.Engine) *DocumentsHandler {
	return &DocumentsHandler{engine: engine}
}

func (h *DocumentsHandler) List(ctx *gin.Context) {
	docs, err := h.engine.ListDocuments(ctx.Query("glob"))
	if err != nil {
		AbortWithError(ctx, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &ListDocumentsResponse{Documents: docs})
}

func (h *DocumentsHandler) Get(ctx *gin.Context) {
	rec := h.engine.GetDocument(ctx.Param("id"))
	if rec == nil {
		AbortWithError(ctx, http.StatusNotFound, ErrCodeNotFound, errDocumentNotFound)
		return
	}

	ctx.PureJSON(http.StatusOK, rec)
}

func (h *DocumentsHandler) Create(ctx *gin.Context) {
	var req CreateDocumentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		AbortWithError(ctx, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	rec, err := h.engine.CreateDocument(req.Folder, req.Title, req.Payload)
	if err != nil {
		AbortWithError(ctx, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	ctx.PureJSON(http.StatusCreated, rec)
}

func (h *DocumentsHandler) Update(ctx *gin.Context) {
	id := ctx.Param("id")
	if h.engine.GetDocument(id) == nil {
		AbortWithError(ctx, http.StatusNotFound, ErrCodeNotFound, errDocumentNotFound)
		return
	}

	var edit sync.EditRequest
	if err := ctx.ShouldBindJSON(&edit); err != nil {
		AbortWithError(ctx, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	if err := h.engine.ApplyLocalEdit(id, &edit); err != nil {
		AbortWithError(ctx, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	ctx.PureJSON(http.StatusOK, h.engine.GetDocument(id))
}

func (h *DocumentsHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")
	if h.engine.GetDocument(id) == nil {
		AbortWithError(ctx, http.StatusNotFound, ErrCodeNotFound, errDocumentNotFound)
		return
	}

	if err := h.engine.RemoveDocument(id); err != nil {
		AbortWithError(ctx, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &ControlPlaneResponse{Code: CodeOk})
}

func (h *DocumentsHandler) Versions(ctx *gin.Context) {
	id := ctx.Param("id")
	if h.engine.GetDocument(id) == nil {
		AbortWithError(ctx, http.StatusNotFound, ErrCodeNotFound, errDocumentNotFound)
		return
	}

	ctx.PureJSON(http.StatusOK, &DocumentVersionsResponse{
		DocumentID: id,
		Versions:   h.engine.Versions(id),
	})
}
