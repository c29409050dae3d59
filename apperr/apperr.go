// Package apperr defines the error taxonomy shared by the store, the bot
// lifecycle core and the HTTP layer.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Type identifies a class of failure. Values are stable and appear in API
// error bodies.
type Type string

const (
	ValidationFailed       Type = "FailedValidation"
	IsBot                  Type = "IsBot"
	ReachedMaximumBots     Type = "ReachedMaximumBots"
	DuplicatePublicBotName Type = "DuplicatePublicBotName"
	UsernameTaken          Type = "UsernameTaken"
	InvalidOperation       Type = "InvalidOperation"
	NotFound               Type = "NotFound"
	Conflict               Type = "Conflict"
	InternalError          Type = "InternalError"
	Unauthorized           Type = "Unauthorized"
)

// Error carries a Type, a human readable message and an optional cause.
type Error struct {
	Type    Type
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Type)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on the Type alone, so callers can write
// errors.Is(err, apperr.New(apperr.NotFound, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Type == e.Type && (t.Message == "" || t.Message == e.Message)
	}
	return false
}

// New returns an error of the given type.
func New(t Type, message string) error {
	return &Error{Type: t, Message: message}
}

// Wrap returns an error of the given type wrapping cause.
func Wrap(t Type, message string, cause error) error {
	return &Error{Type: t, Message: message, Err: cause}
}

// Internal wraps a store or transport failure.
func Internal(message string, cause error) error {
	return Wrap(InternalError, message, cause)
}

// TypeOf returns the Type of the first *Error in err's chain, or
// InternalError if there is none.
func TypeOf(err error) Type {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return InternalError
}

// Has reports whether err carries type t.
func Has(err error, t Type) bool {
	return err != nil && TypeOf(err) == t
}

// Status maps an error to the HTTP status used by the REST layer.
func Status(err error) int {
	switch TypeOf(err) {
	case ValidationFailed, InvalidOperation:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case IsBot, ReachedMaximumBots, DuplicatePublicBotName:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict, UsernameTaken:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type body struct {
	Type  Type   `json:"type"`
	Error string `json:"error"`
}

// Write sends err to the client as {"type": ..., "error": ...} with the
// status from Status. Causes of internal errors are not exposed.
func Write(w http.ResponseWriter, err error) {
	b := body{Type: TypeOf(err)}
	var e *Error
	switch {
	case b.Type == InternalError:
		b.Error = "internal error"
	case errors.As(err, &e) && e.Message != "":
		b.Error = e.Message
	default:
		b.Error = string(b.Type)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(err))
	_ = json.NewEncoder(w).Encode(b)
}
