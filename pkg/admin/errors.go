package admin

import "errors"

var (
	// ErrAuthorityDenied marks a caller that lacks the required ownership level.
	ErrAuthorityDenied = errors.New("authority denied")
	// ErrPlatformFailure wraps errors raised by the platform admin service.
	ErrPlatformFailure = errors.New("platform failure")
	// ErrInvalidParameter reports a caller contract violation.
	ErrInvalidParameter = errors.New("invalid parameter")
)
