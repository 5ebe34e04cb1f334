package lifecycle

import (
	"errors"
	"fmt"

	"github.com/openstats/factstore/internal/model"
)

// NotFoundError reports a dataset or version id the registry does not
// know.
type NotFoundError struct {
	Kind string // "dataset" | "version"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is (or wraps) a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// DeleteRefusedError reports a deletion attempt against a Published
// version without the force flag.
type DeleteRefusedError struct {
	DataSetVersionID string
	Status           model.VersionStatus
}

func (e *DeleteRefusedError) Error() string {
	return fmt.Sprintf("version %s is %s and cannot be deleted without force", e.DataSetVersionID, e.Status)
}

// UnresolvedMappingError reports a publish attempt while mapping
// flags remain unresolved.
type UnresolvedMappingError struct {
	DataSetVersionID string
	Unresolved       int
}

func (e *UnresolvedMappingError) Error() string {
	return fmt.Sprintf("version %s has %d unresolved mapping flags", e.DataSetVersionID, e.Unresolved)
}

// ProcessingError wraps a pipeline stage failure. The version has
// been transitioned to Failed and its directory removed by the time
// callers see this error.
type ProcessingError struct {
	DataSetVersionID string
	Stage            string
	Err              error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing version %s failed at %s: %v", e.DataSetVersionID, e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
