package tenant

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rustok/internal/logger"
	"rustok/pkg/errors"
	"rustok/pkg/logging"
)

type Handler struct {
	service *Service
	log     logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/tenants/resolve", h.resolve)
		v1.PUT("/tenants/:id", h.update)
	}
}

// resolve looks a tenant up by exactly one of ?id=, ?slug= or ?host=.
func (h *Handler) resolve(c *gin.Context) {
	key, ok := lookupFromQuery(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "exactly one of id, slug or host is required",
			"error_code": errors.ErrValidation.Code,
		})
		return
	}

	ctx := logging.WithCorrelationID(c.Request.Context(), c.GetString("request_id"))
	snap, err := h.service.Resolve(ctx, key)
	if err != nil {
		h.renderError(c, err)
		return
	}

	ctx = logging.WithTenantID(ctx, snap.ID.String())
	h.log.DebugwCtx(ctx, "tenant resolved", "kind", string(key.Kind))
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "tenant id must be a UUID",
			"error_code": errors.ErrValidation.Code,
		})
		return
	}

	var params UpdateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      err.Error(),
			"error_code": errors.ErrValidation.Code,
		})
		return
	}

	ctx := logging.WithCorrelationID(c.Request.Context(), c.GetString("request_id"))
	ctx = logging.WithTenantID(ctx, id.String())

	snap, err := h.service.Update(ctx, id, actorFromHeader(c), params)
	if err != nil {
		h.renderError(c, err)
		return
	}

	h.log.InfowCtx(ctx, "tenant updated", "slug", snap.Slug, "status", snap.Status)
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) renderError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.ErrorwCtx(c.Request.Context(), "tenant request failed",
			"path", c.Request.URL.Path,
			"error", err,
		)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

func lookupFromQuery(c *gin.Context) (LookupKey, bool) {
	var keys []LookupKey
	if v := c.Query("id"); v != "" {
		keys = append(keys, LookupKey{Kind: KindUUID, Value: v})
	}
	if v := c.Query("slug"); v != "" {
		keys = append(keys, BySlug(v))
	}
	if v := c.Query("host"); v != "" {
		keys = append(keys, ByHost(v))
	}
	if len(keys) != 1 {
		return LookupKey{}, false
	}
	return keys[0], true
}

func actorFromHeader(c *gin.Context) *uuid.UUID {
	raw := c.GetHeader("X-Actor-ID")
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
