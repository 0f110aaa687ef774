package token

import "errors"

var (
	ErrExpired      = errors.New("access credential expired")
	ErrInvalidToken = errors.New("invalid access credential")
)
