package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/usermgmt/internal/models"
	pkghttp "github.com/BradenHooton/usermgmt/pkg/http"
)

// Client-facing login messages.
const (
	MsgIncorrectCredentials = "Incorrect username or password."
	MsgAccountLocked        = "Account is locked."
)

// writeRequestError reports a body that could not be decoded or validated.
func writeRequestError(w http.ResponseWriter, err error) {
	var ve *RequestValidationError
	if errors.As(err, &ve) {
		pkghttp.WriteValidationError(w, ve.Details())
		return
	}
	pkghttp.WriteBadRequest(w, "Invalid request body")
}

// writeServiceError maps service-layer sentinels onto HTTP responses.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "User not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, conflictMessage(err))
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, clientMessage(err, models.ErrBadRequest))
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Operation not permitted")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Not authenticated")
	default:
		logger.Error("request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// clientMessage strips the sentinel prefix from a wrapped service error.
func clientMessage(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == sentinel.Error() {
		return "Invalid request"
	}
	return msg
}

func conflictMessage(err error) string {
	if strings.Contains(err.Error(), "nickname") {
		return "Nickname already taken"
	}
	return "Email already registered"
}
