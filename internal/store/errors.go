package store

import (
	"errors"
	"fmt"

	"github.com/openstats/factstore/internal/model"
)

// NotReadyError reports that a dataset version's files are absent or
// unreadable. Callers can surface it as "try again later", as opposed
// to a validation error ("fix your request") or an empty result set
// (a valid, successful outcome).
type NotReadyError struct {
	DataSetID string
	Version   model.Version
	Reason    string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("dataset version not ready: %s %s: %s", e.DataSetID, e.Version, e.Reason)
}

// IsNotReady reports whether err is (or wraps) a *NotReadyError.
func IsNotReady(err error) bool {
	var nre *NotReadyError
	return errors.As(err, &nre)
}
