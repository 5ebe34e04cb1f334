package model

import (
	"fmt"
	"time"
)

// VersionStatus is the lifecycle state of a DataSetVersion.
type VersionStatus string

const (
	// StatusDraft is the initial state of a newly created version.
	StatusDraft VersionStatus = "Draft"

	// StatusProcessing covers metadata extraction and columnar file
	// writing.
	StatusProcessing VersionStatus = "Processing"

	// StatusMapping is entered by next versions while dimension
	// options are reconciled against the previous version.
	StatusMapping VersionStatus = "Mapping"

	// StatusPublished versions are queryable and immutable.
	StatusPublished VersionStatus = "Published"

	// StatusWithdrawn is an explicit administrative transition out of
	// Published. Withdrawn versions keep their files but reject
	// queries.
	StatusWithdrawn VersionStatus = "Withdrawn"

	// StatusFailed is terminal. Reached from Draft, Processing or
	// Mapping on any stage error.
	StatusFailed VersionStatus = "Failed"
)

// validTransitions enumerates the status machine. A transition absent
// from this map is illegal.
var validTransitions = map[VersionStatus][]VersionStatus{
	StatusDraft:      {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusMapping, StatusPublished, StatusFailed},
	StatusMapping:    {StatusPublished, StatusFailed},
	StatusPublished:  {StatusWithdrawn},
	StatusWithdrawn:  {},
	StatusFailed:     {},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to VersionStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsDeletable reports whether a version in this status may be deleted
// without the force flag. Published versions require forceDeleteAll.
func (s VersionStatus) IsDeletable() bool {
	return s != StatusPublished
}

// IsQueryable reports whether the version serves queries.
func (s VersionStatus) IsQueryable() bool {
	return s == StatusPublished
}

// DataSet is a named statistical data series with zero or more
// versions.
type DataSet struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Summary string    `json:"summary,omitempty"`
	Created time.Time `json:"created"`
}

// DataSetVersion is one immutable, semantically versioned snapshot of
// a dataset. Once Published its dimension metadata and columnar files
// never change; the only later transitions are Withdrawn and
// whole-version deletion.
type DataSetVersion struct {
	ID        string        `json:"id"`
	DataSetID string        `json:"dataSetId"`
	Version   Version       `json:"version"`
	Status    VersionStatus `json:"status"`

	// ReleaseFileID references the source release file this version
	// was generated from. Opaque to this core.
	ReleaseFileID string `json:"releaseFileId,omitempty"`

	// InstanceID is the idempotency key of the processing run that
	// created this version.
	InstanceID string `json:"instanceId,omitempty"`

	Created   time.Time `json:"created"`
	Published time.Time `json:"published,omitzero"`
}

// Transition moves the version to a new status, enforcing the status
// machine. Returns a *StateError on an illegal transition.
func (v *DataSetVersion) Transition(to VersionStatus, now time.Time) error {
	if !CanTransition(v.Status, to) {
		return &StateError{
			DataSetVersionID: v.ID,
			From:             v.Status,
			To:               to,
		}
	}
	if to == StatusPublished {
		v.Published = now
	}
	v.Status = to
	return nil
}

// StateError reports an illegal version status transition.
type StateError struct {
	DataSetVersionID string
	From             VersionStatus
	To               VersionStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s (version=%s)", e.From, e.To, e.DataSetVersionID)
}
