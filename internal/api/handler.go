package api

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"eventgate/internal/admission"
	"eventgate/internal/constants"
	"eventgate/internal/logger"
	"eventgate/internal/routing"
	"eventgate/pkg/errors"
)

const HeaderEventID = "X-Event-ID"

type EventRouter interface {
	RouteEvent(ctx context.Context, payload map[string]interface{}, source, eventType, eventID string, async bool) routing.ProcessedEvent
	GetStatistics() routing.Statistics
	Routes() []routing.Route
	GetRoute(name string) (routing.Route, bool)
}

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.Logger.WarnwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

// Handler serves event ingestion, statistics and admission inspection.
type Handler struct {
	BaseHandler
	router    EventRouter
	admission *admission.Registry
	stats     admission.StatsReader
}

func NewHandler(router EventRouter, registry *admission.Registry, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Logger: log},
		router:      router,
		admission:   registry,
	}
}

// WithStats enables GET /api/v1/admission/stats.
func (h *Handler) WithStats(stats admission.StatsReader) *Handler {
	h.stats = stats
	return h
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/events/:source/:event_type", h.IngestEvent)
		v1.GET("/stats", h.GetStatistics)

		adm := v1.Group("/admission")
		{
			adm.GET("", h.ListAdmissionEndpoints)
			adm.GET("/stats", h.GetAdmissionStats)
			adm.GET("/:endpoint/:key", h.GetAdmissionStatus)
			adm.POST("/:endpoint/:key/block", h.BlockSource)
			adm.POST("/:endpoint/:key/unblock", h.UnblockSource)
		}
	}
}

// IngestEvent admits and routes one webhook event. The body is the payload
// object. With ?sync=true the first handler attempt runs inline.
func (h *Handler) IngestEvent(c *gin.Context) {
	source := c.Param("source")
	eventType := c.Param("event_type")
	ctx := c.Request.Context()

	limiter := h.admission.Limiter(constants.EndpointWebhook)
	if ok, reason := limiter.Check(ctx, source); !ok {
		if st := limiter.Status(source); st.BlockedUntil != nil {
			secs := int(math.Ceil(time.Until(*st.BlockedUntil).Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
		}
		h.HandleError(c, errors.ErrRateLimited.WithMessage(reason).WithDetail("source", source))
		return
	}

	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.HandleError(c, errors.ErrValidation.WithMessage("request body must be a JSON object").WithCause(err))
		return
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	eventID := c.GetHeader(HeaderEventID)
	inline := c.Query("sync") == "true"

	ev := h.router.RouteEvent(ctx, payload, source, eventType, eventID, !inline)
	c.JSON(statusFor(ev), ev)
}

// statusFor maps the snapshot to a response code: 503 when the router could
// not take the event, 202 while work is still queued, 200 otherwise.
func statusFor(ev routing.ProcessedEvent) int {
	if err := routing.ErrorFor(ev); err != nil && errors.ToHTTPStatus(err) == http.StatusServiceUnavailable {
		return http.StatusServiceUnavailable
	}
	if ev.Status == routing.StatusPending || ev.Status == routing.StatusRetry {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func (h *Handler) GetStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.router.GetStatistics())
}

func (h *Handler) ListAdmissionEndpoints(c *gin.Context) {
	out := make(map[string]admission.Limits)
	for _, name := range h.admission.Endpoints() {
		if l, ok := h.admission.Lookup(name); ok {
			out[name] = l.Limits()
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetAdmissionStats(c *gin.Context) {
	if h.stats == nil {
		h.HandleError(c, errors.ErrServiceUnavailable.WithMessage("admission stats are not configured"))
		return
	}
	totals, err := h.stats.Totals(c.Request.Context())
	if err != nil {
		h.HandleError(c, errors.ErrServiceUnavailable.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, totals)
}

func (h *Handler) limiter(c *gin.Context) (*admission.RateLimiter, bool) {
	endpoint := c.Param("endpoint")
	l, ok := h.admission.Lookup(endpoint)
	if !ok {
		h.HandleError(c, errors.ErrNotFound.WithMessage("unknown admission endpoint: "+endpoint))
	}
	return l, ok
}

func (h *Handler) GetAdmissionStatus(c *gin.Context) {
	l, ok := h.limiter(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, l.Status(c.Param("key")))
}

type BlockRequest struct {
	DurationSeconds int    `json:"duration_seconds" binding:"required,min=1"`
	Reason          string `json:"reason"`
}

func (h *Handler) BlockSource(c *gin.Context) {
	l, ok := h.limiter(c)
	if !ok {
		return
	}

	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleError(c, errors.ErrValidation.WithCause(err))
		return
	}
	if req.Reason == "" {
		req.Reason = "blocked by operator"
	}

	key := c.Param("key")
	l.BlockSource(key, req.Reason, time.Duration(req.DurationSeconds)*time.Second)
	c.JSON(http.StatusOK, l.Status(key))
}

func (h *Handler) UnblockSource(c *gin.Context) {
	l, ok := h.limiter(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"unblocked": l.UnblockSource(c.Param("key"))})
}
