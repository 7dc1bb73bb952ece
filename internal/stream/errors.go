package stream

import "errors"

// Stream errors
var (
	ErrNotFound           = errors.New("region source not found")
	ErrNotLoaded          = errors.New("region is not loaded")
	ErrHost               = errors.New("scene host failure")
	ErrParse              = errors.New("malformed agent state")
	ErrUnrecognizedAction = errors.New("unrecognized region action")
	ErrUnknownRegion      = errors.New("unknown region")
	ErrInvalidTable       = errors.New("invalid region table")
)
