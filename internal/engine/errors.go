package engine

import (
	"errors"
	"fmt"
)

// QueryError represents a query rejected before execution.
//
// Query errors include:
//   - Version not queryable: the version is not Published
//   - Referenced option not found: an indicator, filter option,
//     geographic level, location or time period in the request does
//     not exist in the version
//   - Invalid sort: a sort term names an unknown field
//   - Invalid page: page or page size outside the accepted range
//
// QueryError includes structured fields so callers can report the
// offending reference back to the user.
type QueryError struct {
	// Code identifies the error category.
	Code QueryErrorCode

	// Message is a human-readable description.
	Message string

	// Refs lists the request references that caused the rejection,
	// rendered as the caller sent them (public ids, level codes,
	// "CODE|period" pairs, canonical location strings).
	Refs []string
}

// QueryErrorCode categorises query errors.
type QueryErrorCode string

const (
	// ErrCodeNotQueryable indicates the version is not Published.
	ErrCodeNotQueryable QueryErrorCode = "VERSION_NOT_QUERYABLE"

	// ErrCodeOptionNotFound indicates a referenced option does not
	// exist in the version.
	ErrCodeOptionNotFound QueryErrorCode = "REFERENCED_OPTION_NOT_FOUND"

	// ErrCodeInvalidSort indicates a sort term names an unknown field.
	ErrCodeInvalidSort QueryErrorCode = "INVALID_SORT"

	// ErrCodeInvalidPage indicates page or page size is out of range.
	ErrCodeInvalidPage QueryErrorCode = "INVALID_PAGE"

	// ErrCodeNoIndicators indicates the request projects nothing.
	ErrCodeNoIndicators QueryErrorCode = "NO_INDICATORS"
)

// Error implements the error interface.
func (e *QueryError) Error() string {
	if len(e.Refs) > 0 {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Refs)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsOptionNotFound reports whether err is a QueryError for a
// reference that does not exist in the version. Uses errors.As to
// handle wrapped errors.
func IsOptionNotFound(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Code == ErrCodeOptionNotFound
}

// IsNotQueryable reports whether err rejects the version's status.
func IsNotQueryable(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Code == ErrCodeNotQueryable
}

func optionNotFound(kind string, refs []string) *QueryError {
	return &QueryError{
		Code:    ErrCodeOptionNotFound,
		Message: fmt.Sprintf("unknown %s", kind),
		Refs:    refs,
	}
}
