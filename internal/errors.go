package gateway

import "errors"

// Sentinel errors for the gateway domain.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTokenDisabled  = errors.New("token disabled")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrRateLimited    = errors.New("rate limited")
	ErrNoAvailableKey = errors.New("no available api key")
	ErrBadRequest     = errors.New("bad request")
)
