package types

import "errors"

// Error kinds surfaced by the search core. Callers classify with errors.Is.
var (
	// ErrValidation marks a bad query, field, limit or range parameter
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing contact or history entry
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks access to a contact owned by another user
	ErrUnauthorized = errors.New("not authorized")
	// ErrPrecondition marks a request that cannot run in the current state
	ErrPrecondition = errors.New("precondition failed")
	// ErrDependency marks a failed data store or embedding provider call
	ErrDependency = errors.New("dependency failed")
)

// ErrEmbeddingUnavailable is the single error class for embedding provider failures
var ErrEmbeddingUnavailable = &kindError{msg: "embedding unavailable", kind: ErrDependency}

// Domain validation errors
var (
	ErrInvalidContactID  = errors.New("invalid contact ID")
	ErrMissingOwner      = errors.New("contact owner is required")
	ErrMissingContact    = errors.New("contact is required")
	ErrInvalidRank       = errors.New("rank must be >= 1")
	ErrInvalidSimilarity = errors.New("similarity score must be between 0 and 1")
)

// kindError is a sentinel that also matches a broader kind
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }
