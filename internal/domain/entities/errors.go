package entities

import "errors"

// Domain errors
var (
	// Source data errors
	ErrCallNotFound = errors.New("call not found")
	ErrNoSegments   = errors.New("no transcript segments for recording")

	// Job errors
	ErrJobNotFound             = errors.New("embedding job not found")
	ErrEmptyRecordingSelection = errors.New("no recordings selected")

	// Queue errors
	ErrTaskNotClaimed = errors.New("queue task could not be claimed")
)
