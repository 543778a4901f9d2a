package helpers

import (
	"context"
	"errors"
	"net/http"

	"auctioneer/internal/auctionerrors"
	"auctioneer/utils"
)

// MapErrorToHTTP maps coordinator errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, auctionerrors.ErrNotResolved):
		return http.StatusNotFound, "auction not resolved yet"
	case errors.Is(err, auctionerrors.ErrUnknownParticipant):
		return http.StatusNotFound, "participant not found"
	case errors.Is(err, auctionerrors.ErrCoordinatorStopped):
		return http.StatusServiceUnavailable, "auction server is shutting down"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "auction coordinator did not answer in time"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Debug(handlerName+": "+message, ctx)
}
