package util

import "errors"

// Clustering failure taxonomy
var (
	// ErrMatchSizeExceeded indicates a matched set grew past the cluster cap
	ErrMatchSizeExceeded = errors.New("match size exceeded")

	// ErrInvalidTitle indicates a record without a usable title
	ErrInvalidTitle = errors.New("invalid title")

	// ErrPersistenceConflict indicates the work upsert was rejected by the store
	ErrPersistenceConflict = errors.New("persistence conflict")

	// ErrIndexUnavailable indicates the search index could not be written
	ErrIndexUnavailable = errors.New("index unavailable")
)

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidRecord indicates a payload that cannot become a record
	ErrInvalidRecord = errors.New("invalid record")
)

// Failure kinds as reported in run summaries
const (
	KindMatchSizeExceeded   = "match_size_exceeded"
	KindInvalidTitle        = "invalid_title"
	KindPersistenceConflict = "persistence_conflict"
	KindIndexUnavailable    = "index_unavailable"
	KindUnknown             = "unknown"
)

// FailureKind maps an error onto the taxonomy.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrMatchSizeExceeded):
		return KindMatchSizeExceeded
	case errors.Is(err, ErrInvalidTitle):
		return KindInvalidTitle
	case errors.Is(err, ErrPersistenceConflict):
		return KindPersistenceConflict
	case errors.Is(err, ErrIndexUnavailable):
		return KindIndexUnavailable
	default:
		return KindUnknown
	}
}

// IsTerminalForRecord reports whether a record failing with err should still
// be marked clustered so it is not picked up again.
func IsTerminalForRecord(err error) bool {
	return errors.Is(err, ErrMatchSizeExceeded) || errors.Is(err, ErrInvalidTitle)
}
