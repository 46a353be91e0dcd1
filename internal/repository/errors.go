package repository

import "errors"

// Common repository errors
var (
	ErrNotFound         = errors.New("record not found")
	ErrCapacityConflict = errors.New("block capacity changed concurrently")
)
