package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"eventgate/internal/logger"
	"eventgate/internal/routing"
	"eventgate/pkg/errors"
	"eventgate/pkg/models"
)

type RouteCatalog interface {
	Validate(def models.RouteDefinition) error
	Definition(name string) (models.RouteDefinition, bool)
	ReloadRoutes(ctx context.Context) error
}

type RouteNotifier interface {
	PublishRouteEvent(ctx context.Context, action, routeName, changedBy string) error
}

const (
	HeaderChangedBy = "X-Changed-By"

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// RouteView is the read model of a registered route.
type RouteView struct {
	Name           string                  `json:"name"`
	EventTypes     []string                `json:"event_types"`
	SourceFilters  []string                `json:"source_filters"`
	Priority       string                  `json:"priority"`
	RetryBudget    int                     `json:"retry_budget"`
	TimeoutSeconds int                     `json:"timeout_seconds"`
	Enabled        bool                    `json:"enabled"`
	Condition      string                  `json:"condition,omitempty"`
	Definition     *models.RouteDefinition `json:"definition,omitempty"`
}

// RouteHandler manages route definitions. Writes need a repository; the
// router itself is only changed through a reload.
type RouteHandler struct {
	BaseHandler
	router   EventRouter
	catalog  RouteCatalog
	repo     routing.Repository
	notifier RouteNotifier
	audit    routing.AuditRepository
}

func NewRouteHandler(router EventRouter, catalog RouteCatalog, repo routing.Repository, notifier RouteNotifier, log logger.Logger) *RouteHandler {
	return &RouteHandler{
		BaseHandler: BaseHandler{Logger: log},
		router:      router,
		catalog:     catalog,
		repo:        repo,
		notifier:    notifier,
	}
}

// WithAudit records every stored change and enables the history endpoint.
func (h *RouteHandler) WithAudit(audit routing.AuditRepository) *RouteHandler {
	h.audit = audit
	return h
}

func (h *RouteHandler) RegisterRoutes(router *gin.Engine, middleware ...gin.HandlerFunc) {
	routes := router.Group("/api/v1/routes", middleware...)
	{
		routes.GET("", h.ListRoutes)
		routes.POST("/reload", h.ReloadRoutes)
		routes.GET("/:name", h.GetRoute)
		routes.PUT("/:name", h.PutRoute)
		routes.DELETE("/:name", h.DeleteRoute)
		routes.GET("/:name/history", h.GetRouteHistory)
	}
}

func (h *RouteHandler) view(r routing.Route) RouteView {
	v := RouteView{
		Name:           r.Name,
		EventTypes:     r.EventTypes,
		SourceFilters:  r.SourceFilters,
		Priority:       r.Priority.String(),
		RetryBudget:    r.RetryBudget,
		TimeoutSeconds: r.TimeoutSeconds,
		Enabled:        r.Enabled,
	}
	if r.Condition != nil {
		v.Condition = r.Condition.Expression()
	}
	if h.catalog != nil {
		if def, ok := h.catalog.Definition(r.Name); ok {
			v.Definition = &def
		}
	}
	return v
}

func (h *RouteHandler) ListRoutes(c *gin.Context) {
	routes := h.router.Routes()
	out := make([]RouteView, 0, len(routes))
	for _, r := range routes {
		out = append(out, h.view(r))
	}
	c.JSON(http.StatusOK, out)
}

func (h *RouteHandler) GetRoute(c *gin.Context) {
	name := c.Param("name")
	r, ok := h.router.GetRoute(name)
	if !ok {
		h.HandleError(c, errors.ErrNotFound.WithMessage("route not found: "+name))
		return
	}
	c.JSON(http.StatusOK, h.view(r))
}

func (h *RouteHandler) writable(c *gin.Context) bool {
	if h.repo == nil || h.catalog == nil {
		h.HandleError(c, errors.ErrServiceUnavailable.WithMessage("route storage is not configured"))
		return false
	}
	return true
}

// PutRoute creates or replaces a stored definition, then reloads.
func (h *RouteHandler) PutRoute(c *gin.Context) {
	if !h.writable(c) {
		return
	}

	var def models.RouteDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err))
		return
	}
	name := c.Param("name")
	if def.Name == "" {
		def.Name = name
	}
	if def.Name != name {
		h.HandleError(c, errors.ErrValidation.WithMessage("route name in body does not match path"))
		return
	}

	if err := h.catalog.Validate(def); err != nil {
		h.HandleError(c, errors.ErrValidation.WithMessage(err.Error()))
		return
	}

	ctx := c.Request.Context()
	old := h.stored(ctx, name)
	_, existed := h.router.GetRoute(name)
	if err := h.repo.UpsertDefinition(ctx, &def); err != nil {
		h.HandleError(c, err)
		return
	}

	action, status := models.ActionCreate, http.StatusCreated
	if existed || old != nil {
		action, status = models.ActionUpdate, http.StatusOK
	}
	h.record(c, action, name, old, &def)
	h.applied(c, action, name)

	if r, ok := h.router.GetRoute(name); ok {
		c.JSON(status, h.view(r))
		return
	}
	c.JSON(status, RouteView{Name: def.Name, Definition: &def})
}

func (h *RouteHandler) DeleteRoute(c *gin.Context) {
	if !h.writable(c) {
		return
	}

	name := c.Param("name")
	old := h.stored(c.Request.Context(), name)
	if err := h.repo.DeleteDefinition(c.Request.Context(), name); err != nil {
		h.HandleError(c, err)
		return
	}
	h.record(c, models.ActionDelete, name, old, nil)
	h.applied(c, models.ActionDelete, name)
	c.Status(http.StatusNoContent)
}

// GetRouteHistory lists recorded changes, newest first. ?limit caps the result.
func (h *RouteHandler) GetRouteHistory(c *gin.Context) {
	if h.audit == nil {
		h.HandleError(c, errors.ErrServiceUnavailable.WithMessage("route audit log is not configured"))
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.HandleError(c, errors.ErrValidation.WithMessage("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.audit.ListChanges(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		h.HandleError(c, errors.ErrInternal.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, entries)
}

// stored returns the persisted definition, or nil when there is none.
func (h *RouteHandler) stored(ctx context.Context, name string) *models.RouteDefinition {
	def, err := h.repo.GetDefinition(ctx, name)
	if err != nil {
		return nil
	}
	return def
}

func (h *RouteHandler) record(c *gin.Context, action, name string, old, updated *models.RouteDefinition) {
	if h.audit == nil {
		return
	}
	entry := &routing.AuditEntry{
		RouteName: name,
		Action:    action,
		OldValue:  old,
		NewValue:  updated,
		ChangedBy: c.GetHeader(HeaderChangedBy),
		IPAddress: c.ClientIP(),
	}
	if err := h.audit.RecordChange(c.Request.Context(), entry); err != nil {
		h.Logger.WarnwCtx(c.Request.Context(), "Failed to record route change", "route", name, "error", err)
	}
}

func (h *RouteHandler) ReloadRoutes(c *gin.Context) {
	if h.catalog == nil {
		h.HandleError(c, errors.ErrServiceUnavailable.WithMessage("route loader is not configured"))
		return
	}
	if err := h.catalog.ReloadRoutes(c.Request.Context()); err != nil {
		h.HandleError(c, errors.ErrInternal.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"routes": len(h.router.Routes())})
}

// applied reloads locally and tells other instances. Both are best effort
// once the definition is stored.
func (h *RouteHandler) applied(c *gin.Context, action, name string) {
	ctx := c.Request.Context()
	if err := h.catalog.ReloadRoutes(ctx); err != nil {
		h.Logger.WarnwCtx(ctx, "Reload after route change reported errors", "route", name, "error", err)
	}
	if h.notifier == nil {
		return
	}
	if err := h.notifier.PublishRouteEvent(ctx, action, name, c.GetHeader(HeaderChangedBy)); err != nil {
		h.Logger.WarnwCtx(ctx, "Failed to publish route change", "route", name, "error", err)
	}
}
