package types

import "errors"

// Sentinel errors shared across the pipeline.
var (
	// ErrIllegalTransition signals an approval-gate transition that the
	// state machine does not permit.
	ErrIllegalTransition = errors.New("illegal action state transition")

	// ErrActionNotFound signals a lookup for an unknown action id.
	ErrActionNotFound = errors.New("action not found")

	// ErrWrongCalendar signals a write targeting a calendar other than
	// the configured actions calendar.
	ErrWrongCalendar = errors.New("write refused: not the actions calendar")

	// ErrNoActionsCalendar signals a missing actions-calendar id; the
	// write path is disabled until it is configured.
	ErrNoActionsCalendar = errors.New("actions calendar id not configured")

	// ErrUnparsed signals a statement no pattern could parse.
	ErrUnparsed = errors.New("statement could not be parsed")

	// ErrStoreLocked signals that another process holds the store lock.
	ErrStoreLocked = errors.New("store is locked by another writer")
)
