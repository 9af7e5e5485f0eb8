package repository

import "errors"

// Sentinel kinds for request cache errors.
var (
	ErrInvalidParams  = errors.New("request params cannot be serialized")
	ErrUnknownBackend = errors.New("unknown cache backend")
	ErrBackend        = errors.New("cache backend failure")
	ErrCorruptEntry   = errors.New("cache entry cannot be decoded")
)
