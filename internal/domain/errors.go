package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrUnsupportedEngine = errors.New("unsupported engine")
	ErrProviderFailure   = errors.New("provider failure")
)
