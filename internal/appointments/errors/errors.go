package errors

import "errors"

// Sentinel errors for the appointments domain. The service layer maps these
// onto wire-level results or AppErrors.
var (
	ErrNotFound        = errors.New("appointment not found")
	ErrSlotTaken       = errors.New("slot already claimed")
	ErrVersionConflict = errors.New("appointment version conflict")
	ErrLockHeld        = errors.New("appointment lock held by another request")
	ErrAlreadyExists   = errors.New("appointment already exists")
)
