package types

import "errors"

// Record-related errors
var (
	// ErrEndBeforeStart is returned when a record's end timestamp precedes its start
	ErrEndBeforeStart = errors.New("end timestamp before start timestamp")

	// ErrUnknownWorkload is returned when a workload kind string is not recognized
	ErrUnknownWorkload = errors.New("unknown workload kind")
)
