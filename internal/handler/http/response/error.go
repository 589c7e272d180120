package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/auth"
	"github.com/cmlabs-hris/hris-presence-go/internal/domain/origin"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	// Auth errors
	case errors.Is(err, auth.ErrInvalidToken):
		Unauthorized(w, "Invalid or expired token")
	case errors.Is(err, auth.ErrTokenExpired):
		Unauthorized(w, "Token expired")
	case errors.Is(err, auth.ErrMissingUserClaim):
		Unauthorized(w, err.Error())
	case errors.Is(err, auth.ErrAdminPrivilegeRequired):
		Forbidden(w, "Admin privilege required")

	// Attendance domain errors
	case errors.Is(err, attendance.ErrAttendanceNotFound):
		NotFound(w, "No attendance recorded today")
	case errors.Is(err, attendance.ErrNotCheckedIn):
		Conflict(w, err.Error())
	case errors.Is(err, attendance.ErrUserMismatch):
		Forbidden(w, err.Error())
	case errors.Is(err, attendance.ErrInvalidTimestamp), errors.Is(err, attendance.ErrCheckOutBeforeIn):
		BadRequest(w, err.Error(), nil)

	// Origin domain errors
	case errors.Is(err, origin.ErrOriginNotFound):
		NotFound(w, "Origin has not been configured")

	// Default
	default:
		slog.Error("Unhandled error", "error", err)
		InternalServerError(w, "An unexpected error occurred")
	}
}

// Message returns the client-facing text for err, used where no HTTP status applies.
func Message(err error) string {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return validationErrs.Error()
	case errors.Is(err, attendance.ErrNotCheckedIn),
		errors.Is(err, attendance.ErrUserMismatch),
		errors.Is(err, attendance.ErrInvalidTimestamp),
		errors.Is(err, attendance.ErrCheckOutBeforeIn),
		errors.Is(err, attendance.ErrUnknownEvent),
		errors.Is(err, attendance.ErrMalformedEnvelope):
		return err.Error()
	default:
		return "An unexpected error occurred"
	}
}
