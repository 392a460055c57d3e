package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNotFlat          = errors.New("position already open")
	ErrNotOpen          = errors.New("no open position")
	ErrLockHeld         = errors.New("execution lock already held")
	ErrNoFill           = errors.New("neither leg filled")
	ErrOneSidedFill     = errors.New("one-sided fill, filled leg unwound")
	ErrExitUnconfirmed  = errors.New("exit fill not confirmed")
	ErrPositionMismatch = errors.New("live venue positions inconsistent with state")
)
