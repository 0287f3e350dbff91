// Package respond writes the JSON envelope shared by every API endpoint:
// {success, message, data} on success and {success, message, errors} on failure.
package respond

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/apperr"
)

// MaxBodyBytes caps request bodies read by ReadBody.
const MaxBodyBytes = 1 << 20

type envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, envelope{Success: true, Message: message, Data: data})
}

// Fail writes a failure envelope with an explicit status.
func Fail(w http.ResponseWriter, status int, message string, errs ...string) {
	write(w, status, envelope{Success: false, Message: message, Errors: errs})
}

// Error maps a workflow error to its status and a client-safe message.
// Server-side failures are logged with their cause.
func Error(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		if log == nil {
			log = slog.Default()
		}
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	write(w, status, envelope{Success: false, Message: apperr.PublicMessage(err), Errors: apperr.FieldsOf(err)})
}

// ReadBody reads a size-limited request body.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("request body unreadable or larger than %d bytes", MaxBodyBytes))
	}
	return body, nil
}

// PathID parses the named path wildcard as a uuid.
func PathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperr.Validation(fmt.Sprintf("path parameter %s is not a valid id", name), name)
	}
	return id, nil
}
