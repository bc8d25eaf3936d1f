// Package errors provides the coded error type shared by the server packages.
// Import it as apperrors to keep the standard library name free.
package errors

import "net/http"

// Code is a machine-readable error code. It is also the `code` field of a
// server-error event.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Move and request validation
	CodeValidation Code = "VALIDATION"
	CodeNotFound   Code = "NOT_FOUND"

	// Identity and access
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeAuthorization   Code = "AUTHORIZATION"

	// Lobby room membership
	CodeLobbyNotFound     Code = "LOBBY_NOT_FOUND"
	CodeLobbyAccessDenied Code = "LOBBY_ACCESS_DENIED"
	CodeInvalidLobbyCode  Code = "INVALID_LOBBY_CODE"

	CodeRateLimited   Code = "RATE_LIMITED"
	CodeSessionClosed Code = "SESSION_CLOSED"

	// Storage
	CodePersistence     Code = "PERSISTENCE"
	CodeStateCorruption Code = "STATE_CORRUPTION"
)

// HTTPStatus maps a code to the status returned by the HTTP surface.
// Client faults are 4xx; storage faults are 5xx.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeInvalidLobbyCode:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeAuthorization, CodeLobbyAccessDenied:
		return http.StatusForbidden
	case CodeNotFound, CodeLobbyNotFound:
		return http.StatusNotFound
	case CodeSessionClosed:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UserFacingKey is the client localization key for the code, or "" when the
// client shows a generic message.
func (c Code) UserFacingKey() string {
	switch c {
	case CodeLobbyNotFound:
		return "lobby.not_found"
	case CodeLobbyAccessDenied:
		return "lobby.access_denied"
	case CodeInvalidLobbyCode:
		return "lobby.invalid_code"
	case CodeRateLimited:
		return "connection.rate_limited"
	case CodeSessionClosed:
		return "session.closed"
	case CodeStateCorruption:
		return "session.restart_required"
	case CodeUnauthenticated:
		return "auth.required"
	}
	return ""
}
