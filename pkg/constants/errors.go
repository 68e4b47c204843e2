package constants

import "errors"

// Environment-caused failures. The cache never returns these across its
// public boundary; they are logged and the cache keeps its last-known-good
// state.
var (
	ErrNotFound  = errors.New("document not found")
	ErrTransient = errors.New("transient remote failure")
	ErrMalformed = errors.New("malformed document payload")
)

// Caller errors.
var (
	ErrNoIdentity        = errors.New("document has no identity")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrNotCached         = errors.New("document is not in the cache")
	ErrStoresClosed      = errors.New("stores are closed")
	ErrNoChangeFeed      = errors.New("gateway has no change feed")
)

// Connection errors.
var (
	ErrNoBaseURL = errors.New("base url not set")
	ErrNoSecret  = errors.New("secret not set")
	ErrNoCodec   = errors.New("codec is not set")
)
