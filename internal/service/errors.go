package service

import (
	"fmt"
	"net/http"
)

// RequestError is a failure that maps directly onto an HTTP response. It is
// only produced while parsing the inbound request; every other error from
// this package is an infrastructure failure.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

var (
	errMethodNotAllowed = &RequestError{Status: http.StatusMethodNotAllowed, Message: "Invalid request method"}
	errOriginForbidden  = &RequestError{Status: http.StatusForbidden, Message: "Origin not allowed"}
	errInvalidURL       = &RequestError{Status: http.StatusNotFound, Message: "Invalid request URL"}
)
