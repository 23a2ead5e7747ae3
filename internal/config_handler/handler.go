package config_handler

import (
	"context"
	"encoding/json"

	"eventgate/internal/logger"
	"eventgate/pkg/models"
)

type RouteReloader interface {
	ReloadRoutes(ctx context.Context) error
}

// Handler consumes config update envelopes and reloads routes when one
// addressed to this service arrives.
type Handler struct {
	expectedEventType   string
	expectedServiceType string
	reloader            RouteReloader
	logger              logger.Logger
}

func NewHandler(expectedEventType, expectedServiceType string, reloader RouteReloader, log logger.Logger) *Handler {
	return &Handler{
		expectedEventType:   expectedEventType,
		expectedServiceType: expectedServiceType,
		reloader:            reloader,
		logger:              log,
	}
}

func (h *Handler) HandleConfigUpdateEvent(ctx context.Context, env models.EventEnvelope) error {
	var event models.ConfigUpdateEvent
	raw, err := json.Marshal(env.Payload)
	if err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to marshal event payload", "error", err, "id", env.ID)
		return err
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to unmarshal config event", "error", err, "id", env.ID)
		return err
	}

	if event.EventType == "" {
		event.EventType = env.EventType
	}
	if event.EventType != h.expectedEventType {
		return nil
	}
	if event.ServiceType == "" {
		h.logger.WarnwCtx(ctx, "Config event missing service_type", "id", env.ID)
		return nil
	}
	if event.ServiceType != h.expectedServiceType {
		return nil
	}

	h.logger.InfowCtx(ctx, "Received config update event",
		"event_type", event.EventType,
		"action", event.Action,
		"route_name", event.RouteName,
		"changed_by", event.ChangedBy,
	)

	if err := h.reloader.ReloadRoutes(ctx); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to reload routes after config update", "error", err)
		return err
	}
	h.logger.InfowCtx(ctx, "Routes reloaded after config update", "action", event.Action)
	return nil
}
