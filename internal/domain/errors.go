package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrOrderTerminal = errors.New("order already in terminal status")
)
