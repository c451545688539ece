package model

import "errors"

// Failure taxonomy shared by every component. All of them are local and
// non-fatal to the control loop; callers inspect them with errors.Is.
var (
	// ErrClockUnavailable means no trusted wall-clock reading exists, so
	// scheduling and alerting are suspended.
	ErrClockUnavailable = errors.New("clock unavailable")

	// ErrRemoteUnavailable means a single remote fetch failed (no link,
	// non-2xx status or timeout).
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrMalformedSchedule means a document failed to parse or lacks a
	// required field. Such documents are never persisted.
	ErrMalformedSchedule = errors.New("malformed schedule")

	// ErrNoDataAvailable is terminal for one resolve call: no local, remote
	// or stale record could be produced.
	ErrNoDataAvailable = errors.New("no schedule data available")

	// ErrStorageFailure wraps read/write faults on the storage volume.
	ErrStorageFailure = errors.New("storage failure")

	// ErrInvalidLocation is returned for location names that cannot be
	// mapped to a storage path.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrAlertActive is returned when a pattern is requested while another
	// alert is still running.
	ErrAlertActive = errors.New("alert already active")
)
