package domain

import "errors"

var (
	// ErrInvalidPayload is returned when job data cannot be decoded
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrMaxAttemptsExceeded marks a job whose last permitted attempt failed
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")

	// ErrWorkerStarted is returned when Start is called twice
	ErrWorkerStarted = errors.New("worker already started")

	// ErrWorkerClosed is returned when starting a closed worker
	ErrWorkerClosed = errors.New("worker closed")
)
