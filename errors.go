package ytrpc

import "errors"

// These are Go-API-level errors: failures that occur before a wire Status
// can be constructed at all (no Session to talk to, a malformed frame on the
// wire, duplicate service registration). They are distinct from Status,
// which is the wire-level outcome of a completed round trip.
var (
	// ErrNotRunning is returned by Client.Invoke after Client.Stop.
	ErrNotRunning = errors.New("ytrpc: not running")
	// ErrSessionClosed is returned by Client.Invoke, together with
	// Status{Ret: Unknown}, when the call's Session stops before a response
	// arrives.
	ErrSessionClosed = errors.New("ytrpc: session closed")
	// ErrBadMagic is returned when a frame's leading two bytes are not 'Y','T'.
	ErrBadMagic = errors.New("ytrpc: invalid frame magic")
	// ErrDuplicateFunc is returned by RegisterService when two services
	// register the same function name.
	ErrDuplicateFunc = errors.New("ytrpc: duplicate function registration")
	// ErrAlreadyStarted is returned by RegisterService called after Start.
	ErrAlreadyStarted = errors.New("ytrpc: register_service called after start")
)
