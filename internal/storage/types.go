package storage

import (
	"errors"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyExists indicates an insert-if-absent lost to an existing row.
	ErrAlreadyExists = errors.New("resource already exists")
)

// ListOptions pages through a conversation's messages in ascending
// chronological order.
type ListOptions struct {
	// Offset is the number of messages to skip.
	Offset int

	// Limit is the page size (default: 100, max: 500).
	Limit int
}

// Normalize applies defaults and bounds.
func (o *ListOptions) Normalize() {
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.Limit < 1 {
		o.Limit = 100
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
}

// Page is one page of results plus the offset of the next page.
type Page[T any] struct {
	Items []T

	// NextOffset is the offset to request next; HasMore reports whether that
	// request can return anything.
	NextOffset int
	HasMore    bool
}
