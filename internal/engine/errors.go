package engine

import "errors"

// Engine errors returned by session and registry operations.
var (
	// ErrAlreadyRunning is returned when starting a session whose control
	// loop is already active.
	ErrAlreadyRunning = errors.New("session already running")

	// ErrSessionNotFound is returned when a session ID is not registered.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPositionCapReached is returned when opening a position would
	// exceed the concurrent position limit.
	ErrPositionCapReached = errors.New("maximum open positions reached")

	// ErrInsufficientBalance is returned when the session balance is
	// depleted and no further positions can be opened.
	ErrInsufficientBalance = errors.New("insufficient balance")
)
