package ingest

import "errors"

// ErrPersistence marks a storage failure the domain core could not recover
// from, including an exhausted conflict-retry loop. The occurrence was not
// durably recorded; the caller owns retry and backoff policy.
var ErrPersistence = errors.New("persistence failure")
