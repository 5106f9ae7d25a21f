package spapi

import "errors"

var (
	// ErrForbidden means the credentials or role grants are wrong. Nothing
	// downstream can succeed, so callers abort the whole run.
	ErrForbidden = errors.New("spapi: access denied")

	// ErrBadRequest means this particular call was malformed or rejected.
	// Callers keep whatever partial data they already collected and move on.
	ErrBadRequest = errors.New("spapi: bad request")

	// ErrThrottled is surfaced only after the retry budget is exhausted.
	ErrThrottled = errors.New("spapi: request throttled")
)
