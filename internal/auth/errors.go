package auth

import "errors"

var (
	ErrUnauthorized = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrMissingRole  = errors.New("auth: invalid role")
	ErrNoSubject    = errors.New("auth: missing subject")
)
