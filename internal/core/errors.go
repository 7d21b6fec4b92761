// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors following the ADR-021 error handling pattern.
var (
	// Record store errors
	ErrDuplicateSequence = errors.New("framelat: duplicate sequence")
	ErrRecordNotFound    = errors.New("framelat: record not found")

	// Stage ingestion errors
	ErrUnknownStage = errors.New("framelat: unknown stage")

	// Acknowledgment channel errors
	ErrHandshakeFailed   = errors.New("framelat: handshake failed")
	ErrProtocolViolation = errors.New("framelat: protocol violation")
	ErrMalformedAck      = errors.New("framelat: malformed ack")
	ErrForeignDatagram   = errors.New("framelat: datagram from outside the session")
	ErrNotConnected      = errors.New("framelat: ack channel not connected")
	ErrChannelClosed     = errors.New("framelat: ack channel closed")

	// Latency / statistics errors
	ErrIncompleteRecord = errors.New("framelat: incomplete record")
	ErrEmptyDataset     = errors.New("framelat: empty dataset")

	// Configuration errors
	ErrConfigInvalid = errors.New("framelat: invalid configuration")
)

// FatalError marks a structural fault that must abort the run.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err so that IsFatal reports true. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err aborts the run: explicitly wrapped faults,
// duplicate sequence creation, handshake failures and protocol violations.
// Everything else is recoverable and only degrades the measurement.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return true
	}
	return errors.Is(err, ErrDuplicateSequence) ||
		errors.Is(err, ErrHandshakeFailed) ||
		errors.Is(err, ErrProtocolViolation)
}
