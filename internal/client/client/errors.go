package client

import "errors"

var (
	ErrUnavailable      = errors.New("server unavailable")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrAlreadyExists    = errors.New("already registered")
	ErrPermissionDenied = errors.New("account is inactive")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotLoggedIn      = errors.New("not logged in")
)
