package lead

import "errors"

// Error taxonomy shared by every stage. Callers wrap these with %w.
var (
	ErrMalformedInput        = errors.New("malformed input")
	ErrTransientExternal     = errors.New("transient external failure")
	ErrAmbiguousVerification = errors.New("ambiguous verification")
	ErrQuotaExceeded         = errors.New("quota exceeded")
	ErrFatal                 = errors.New("fatal")
)

// UnresolvedReason explains why no verified contact was produced.
type UnresolvedReason string

const (
	NoDomain        UnresolvedReason = "no_domain"
	NoContact       UnresolvedReason = "no_contact"
	NoVerifiedEmail UnresolvedReason = "no_verified_email"
	Timeout         UnresolvedReason = "timeout"
)
