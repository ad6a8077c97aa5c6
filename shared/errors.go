package shared

import "errors"

var (
	ErrNoLogger              = errors.New("no logger provided")
	ErrNoConfig              = errors.New("no config provided")
	ErrNoStore               = errors.New("no store provided")
	ErrNoAPIKey              = errors.New("no API key provided")
	ErrSessionAlreadyRunning = errors.New("session already running")
	ErrCMHandlerAlreadySet   = errors.New("command handler already set")
	ErrTRHandlerAlreadySet   = errors.New("track remote handler already set")
	ErrWrongRole             = errors.New("operation not valid for session role")
	ErrNotConnected          = errors.New("session not connected")

	// Failure classes surfaced to the operator. Wrap them with
	// fmt.Errorf("%w: ...") and match with errors.Is.
	ErrSignalFormat     = errors.New("signal format error")
	ErrSignalRejected   = errors.New("signal rejected: a signal is already pending or accepted")
	ErrMediaAcquisition = errors.New("media acquisition error")
	ErrPeerTransport    = errors.New("peer transport error")
	ErrStorage          = errors.New("storage error")
	ErrCommandDecode    = errors.New("command decode error")

	ErrInvalidSolution = errors.New("problem and solution descriptions are required")
	ErrInvalidTicket   = errors.New("invalid ticket")
	ErrRecordingActive = errors.New("recording still active")
	ErrNotFound        = errors.New("not found")
	ErrNotApproved     = errors.New("command not approved by operator")
)
