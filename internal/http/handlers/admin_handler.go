// README: Admin handlers for the reconciliation sweep and thumbnail regeneration.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"opsconsole/internal/modules/lifecycle"
	"opsconsole/internal/modules/notify"
)

type ThumbnailRequester interface {
	RequestThumbnail(ctx context.Context, req notify.ThumbnailRequest) error
}

type AdminHandler struct {
	lifecycle  *lifecycle.Service
	thumbnails ThumbnailRequester
}

func NewAdminHandler(svc *lifecycle.Service, thumbnails ThumbnailRequester) *AdminHandler {
	return &AdminHandler{lifecycle: svc, thumbnails: thumbnails}
}

// Reconcile reports ongoing records already present in a terminal
// collection; ?apply=true deletes the ongoing copies.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	domain, ok := domainParam(c)
	if !ok {
		return
	}
	apply, _ := strconv.ParseBool(c.Query("apply"))
	rep, err := h.lifecycle.Reconcile(c.Request.Context(), domain, apply)
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rep)
}

func (h *AdminHandler) Thumbnail(c *gin.Context) {
	var req notify.ThumbnailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if h.thumbnails == nil {
		writeLifecycleError(c, notify.ErrDisabled)
		return
	}
	if err := h.thumbnails.RequestThumbnail(c.Request.Context(), req); err != nil {
		if errors.Is(err, notify.ErrInvalidRequest) || errors.Is(err, notify.ErrDisabled) {
			writeLifecycleError(c, err)
			return
		}
		writeError(c, http.StatusBadGateway, "thumbnail service unavailable")
		return
	}
	writeJSON(c, http.StatusAccepted, gin.H{"status": "queued"})
}
