package domain

import "errors"

// ErrTransport indicates a retryable network failure (connection error,
// timeout, or a 5xx-class response). The downloader absorbs these up to its
// retry budget; they only surface once the budget is exhausted.
var ErrTransport = errors.New("transport error")

// ErrRangeAlreadySatisfied indicates a 416 response to a resume request.
// The full file is already on disk, so this is a success sentinel.
var ErrRangeAlreadySatisfied = errors.New("requested range already satisfied")

// ErrRetriesExhausted indicates the downloader gave up after its retry budget.
var ErrRetriesExhausted = errors.New("max retries reached")

// ErrIntegrityMismatch indicates the computed digest does not match the
// pointer descriptor, or the descriptor declared no hash at all.
var ErrIntegrityMismatch = errors.New("integrity mismatch")

// ErrPointerFetch indicates the pointer descriptor could not be retrieved.
// The verifier never retries this itself.
var ErrPointerFetch = errors.New("pointer fetch failed")

// ErrBadArchive indicates a corrupt or unreadable container file.
var ErrBadArchive = errors.New("bad archive")

// ErrRecursionLimit indicates nesting deeper than the configured bound,
// which is a misconfiguration or maliciously deep archive, never retryable.
var ErrRecursionLimit = errors.New("recursion limit exceeded")
