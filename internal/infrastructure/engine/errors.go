package engine

import "errors"

var (
	// ErrUnreachable marks transport-level failures talking to a node's
	// control API. Callers treat it as transient: empty result, no
	// sibling impact.
	ErrUnreachable = errors.New("engine: node unreachable")

	// ErrUserExists is returned when adding a user the engine already
	// knows. Callers resolve it by removing and re-adding.
	ErrUserExists = errors.New("engine: user already exists")

	// ErrNotRunning is returned by master operations that need a running
	// engine process.
	ErrNotRunning = errors.New("engine: not running")
)
