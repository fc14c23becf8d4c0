package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	iferrors "github.com/tombee/ironflow/pkg/errors"
)

// WriteJSON writes a JSON response with the given status code and data.
// If encoding fails, it logs the error.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", slog.Any("error", err))
	}
}

// WriteError writes the JSON error envelope with the given status and message.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{
		"error": message,
	})
}

// WriteErrorDetails writes the error envelope with a details field.
func WriteErrorDetails(w http.ResponseWriter, status int, message, details string) {
	WriteJSON(w, status, map[string]string{
		"error":   message,
		"details": details,
	})
}

// StatusFor maps an error to an HTTP status code by its type: not-found
// errors to 404, validation and config errors to 400, everything else to 500.
func StatusFor(err error) int {
	var notFound *iferrors.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var validation *iferrors.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest
	}
	var config *iferrors.ConfigError
	if errors.As(err, &config) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// DecodeJSON decodes the request body into dst. An empty body is not an
// error; dst is left untouched. Oversized bodies surface as
// http.MaxBytesError from the MaxBytesReader installed by the middleware.
func DecodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
