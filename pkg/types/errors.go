package types

import "errors"

// Domain errors for type validation
var (
	// Schema errors
	ErrEmptyColumnKey    = errors.New("column key cannot be empty")
	ErrUnknownColumnType = errors.New("unknown column type")
	ErrDuplicateColumn   = errors.New("duplicate column key")

	// Result errors
	ErrUnknownSource = errors.New("unknown result source")
)
