package core

import "errors"

var (
	// ErrDocumentNotFound is returned when the persistence gateway has no record for an id.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrStoreUnavailable wraps transport failures of the cache or the persistence gateway.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrAuthenticationFailed is returned for missing or invalid credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrProtocolViolation is returned when a session references a room it has not joined.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrCacheMiss is returned by Cache.Get for absent or expired keys.
	ErrCacheMiss = errors.New("cache miss")
)
