package protocol

import "errors"

var (
	ErrParse          = errors.New("protocol: parse failed")
	ErrEmptyLine      = errors.New("protocol: empty line")
	ErrMissingCommand = errors.New("protocol: missing command")
	ErrLineTooLong    = errors.New("protocol: line exceeds maximum length")
	ErrInvalidMessage = errors.New("protocol: invalid message")
)
