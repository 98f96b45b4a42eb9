package services

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories the engine surfaces. Handlers
// translate kinds to transport status codes; the services themselves never
// deal in HTTP.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindForbidden    Kind = "forbidden"
	KindInvalidState Kind = "invalid_state"
	KindValidation   Kind = "validation_failed"
	KindUnavailable  Kind = "unavailable"
)

// Conflict codes.
const (
	CodeAlreadyMember  = "AlreadyMember"
	CodeAlreadyVoted   = "AlreadyVoted"
	CodeAlreadyJoined  = "AlreadyJoined"
	CodeAlreadyHandled = "AlreadyHandled"
	CodeClanFull       = "ClanFull"
	CodeTaskFull       = "TaskFull"
	CodeRequestPending = "RequestPending"
	CodeInvitePending  = "InvitePending"
	CodeNameTaken      = "NameTaken"
)

// Error carries kind, a stable code and entity context so callers can render
// a user-facing message without re-querying.
type Error struct {
	Kind     Kind
	Code     string
	Message  string
	Entity   string
	EntityID string
}

func (e *Error) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s: %s (%s %s)", e.Kind, e.Message, e.Entity, e.EntityID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func notFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Code: "NotFound", Message: entity + " not found", Entity: entity, EntityID: id}
}

func conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: "Forbidden", Message: message}
}

func invalidState(entity, id, message string) *Error {
	return &Error{Kind: KindInvalidState, Code: "InvalidState", Message: message, Entity: entity, EntityID: id}
}

func validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: "ValidationFailed", Message: message}
}

func unavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Code: "Unavailable", Message: err.Error()}
}

// KindOf classifies any error returned by the engine. Unknown errors
// (storage failures and the like) map to Unavailable.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// CodeOf returns the stable error code, or "" for non-engine errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
