// Package sentinel holds the storage-level facts stores report. Services map
// them to coded domain errors; they never reach the HTTP layer unwrapped.
package sentinel

import "errors"

var (
	// ErrNotFound: no row for the id within the caller's organization. A row
	// owned by another organization is reported the same way.
	ErrNotFound = errors.New("not found")
	// ErrConflict: the expected version no longer matches, or the row is locked
	// by a concurrent unit of work.
	ErrConflict = errors.New("conflict")
)
