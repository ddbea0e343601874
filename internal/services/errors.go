package services

import "errors"

// Sentinel errors the handlers map onto HTTP statuses.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrValidation         = errors.New("validation failed")
	ErrAnalysisActive     = errors.New("analysis already in progress for this item")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)
