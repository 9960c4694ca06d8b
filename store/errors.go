package store

import "errors"

var (
	// ErrCorruptRecord indicates a persisted status record could not be
	// decoded. The ledger row needs operator attention.
	ErrCorruptRecord = errors.New("corrupt status record")
)
