package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// errorClass decides whether a provider failure is worth another attempt.
type errorClass int

const (
	classTransient errorClass = iota
	classAuth
	classInvalid
	classFatal
)

func (c errorClass) String() string {
	switch c {
	case classTransient:
		return "transient"
	case classAuth:
		return "auth"
	case classInvalid:
		return "invalid"
	default:
		return "fatal"
	}
}

// classify maps a provider error onto a retry class. Network failures,
// per-attempt deadlines, 408, 429 and 5xx are transient; 401/403 are auth
// failures; 400/404/422 are caller errors; an open circuit and anything
// else fail fast.
func classify(err error) errorClass {
	if errors.Is(err, ErrCircuitOpen) {
		return classFatal
	}

	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode != 0 {
		return classifyStatus(pe.StatusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return classTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return classTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return classTransient
	}
	if pe != nil {
		// Transport failure without a status code.
		return classTransient
	}

	return classFatal
}

func classifyStatus(code int) errorClass {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return classAuth
	case code == http.StatusBadRequest, code == http.StatusNotFound, code == http.StatusUnprocessableEntity:
		return classInvalid
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return classTransient
	default:
		return classFatal
	}
}
