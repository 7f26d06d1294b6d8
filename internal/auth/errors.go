package auth

import "errors"

var (
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
)

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("invalid token")
