package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy for gateway requests
//
// Every rejection is terminal for its request and carries a short
// human-readable message plus an HTTP-equivalent status. Nothing here is
// retried transparently; retry is the caller's responsibility.

// Error is a gateway failure with an HTTP-equivalent status code.
type Error struct {
	Status  int    // HTTP-equivalent status
	Message string // Short human-readable message
}

func (e *Error) Error() string {
	return e.Message
}

// Sentinel constructors for the five failure classes.

// ErrUnauthenticated rejects a request with no identity, before the store is touched.
func ErrUnauthenticated() *Error {
	return &Error{Status: http.StatusUnauthorized, Message: "not signed in"}
}

// ErrUnauthorized rejects a whole batch or settings update from a non-owner.
func ErrUnauthorized() *Error {
	return &Error{Status: http.StatusForbidden, Message: "not the room owner"}
}

// ErrMalformed rejects a structurally invalid request.
func ErrMalformed(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

// ErrNotFound rejects a request naming a room (or owning relationship) that doesn't exist.
func ErrNotFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Message: msg}
}

// ErrDownstream surfaces a store write failure. Already-applied operations
// remain applied (no rollback).
func ErrDownstream(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: fmt.Sprintf("store write failed: %v", err)}
}

// StatusOf returns the HTTP-equivalent status for an error, or 500 for
// anything that is not a gateway Error.
func StatusOf(err error) int {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Status
	}
	return http.StatusInternalServerError
}
