package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/freelance-billing/billing"
)

// ResourceHandler exposes the guarded deletes of billing inputs.
type ResourceHandler struct {
	svc *billing.Service
}

func NewResourceHandler(svc *billing.Service) *ResourceHandler {
	return &ResourceHandler{svc: svc}
}

func (h *ResourceHandler) DeleteClient(c *gin.Context) {
	h.delete(c, h.svc.DeleteClient)
}

func (h *ResourceHandler) DeleteProject(c *gin.Context) {
	h.delete(c, h.svc.DeleteProject)
}

func (h *ResourceHandler) DeleteTimeEntry(c *gin.Context) {
	h.delete(c, h.svc.DeleteTimeEntry)
}

func (h *ResourceHandler) delete(c *gin.Context, del func(ctx context.Context, owner, id uint) error) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := del(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
