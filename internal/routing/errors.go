package routing

import "errors"

var (
	ErrQueueFull    = errors.New("queue full")
	ErrRouterClosed = errors.New("router shutting down")
	ErrRouteInvalid = errors.New("invalid route")
)
