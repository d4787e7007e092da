// Package sender delivers drafted emails.
package sender

import (
	"context"
	"errors"
)

var (
	ErrBounced     = errors.New("recipient rejected")
	ErrRateLimited = errors.New("mail transport rate limited")
	ErrAuthFailed  = errors.New("mail transport authentication failed")
)

// Sender delivers one message and returns its Message-ID.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}
