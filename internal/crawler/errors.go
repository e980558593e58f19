package crawler

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateChecksum signals a unique-constraint conflict on document creation.
	ErrDuplicateChecksum = errors.New("duplicate checksum")
	// ErrSourceInactive is returned when a run is requested for a disabled source.
	ErrSourceInactive = errors.New("source inactive")
	// ErrDiscoveryFailed means the source could not be reached to list candidates.
	ErrDiscoveryFailed = errors.New("discovery failed")
	// ErrNetwork covers connection failures and timeouts.
	ErrNetwork = errors.New("network error")
	// ErrBlocked means an anti-bot signature was detected in the response.
	ErrBlocked = errors.New("blocked content")
	// ErrExtraction means required fields could not be located.
	ErrExtraction = errors.New("extraction failure")
	// ErrValidation means a located field failed validation (e.g. title too short).
	ErrValidation = errors.New("validation failure")
	// ErrUnknownAdapter is returned when a source names an unregistered adapter.
	ErrUnknownAdapter = errors.New("unknown source adapter")
)
