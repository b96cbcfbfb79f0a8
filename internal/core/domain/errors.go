package domain

import "errors"

var (
	ErrTokenUnavailable = errors.New("authentication token unavailable")
	ErrTokenExpired     = errors.New("authentication token expired")
	ErrAuthRejected     = errors.New("authentication rejected by server")
	ErrClientClosed     = errors.New("session client closed")
	ErrUnknownFrameType = errors.New("unknown frame type")
	ErrInvalidPayload   = errors.New("invalid frame payload")
)
