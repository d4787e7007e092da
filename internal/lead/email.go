package lead

import (
	"errors"
	"fmt"
	"time"
)

// VerificationState of an email candidate.
type VerificationState string

const (
	Unverified    VerificationState = "unverified"
	Deliverable   VerificationState = "deliverable"
	Undeliverable VerificationState = "undeliverable"
	Unknown       VerificationState = "unknown"
)

// Generation rules beyond the configurable patterns.
const (
	RuleFromWebpage       = "from-webpage"
	RuleFromCommitHistory = "from-commit-history"
)

var ErrVerificationFinal = errors.New("verification state already final")

// EmailCandidate is a guessed or discovered address for a contact.
type EmailCandidate struct {
	Address           string            `json:"address"`
	GenerationRule    string            `json:"generation_rule"`
	VerificationState VerificationState `json:"verification_state"`
	VerifiedAt        time.Time         `json:"verified_at,omitempty"`
}

// NewCandidate returns an unverified candidate.
func NewCandidate(address, rule string) *EmailCandidate {
	return &EmailCandidate{Address: address, GenerationRule: rule, VerificationState: Unverified}
}

// Verify moves the candidate out of Unverified. Any other transition is refused.
func (c *EmailCandidate) Verify(state VerificationState, at time.Time) error {
	if c.VerificationState != Unverified && c.VerificationState != "" {
		return fmt.Errorf("%s: %s -> %s: %w", c.Address, c.VerificationState, state, ErrVerificationFinal)
	}
	switch state {
	case Deliverable, Undeliverable, Unknown:
	default:
		return fmt.Errorf("invalid verification state %q", state)
	}
	c.VerificationState = state
	c.VerifiedAt = at
	return nil
}
