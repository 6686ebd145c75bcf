package daemon

import "errors"

// Domain errors for the daemon package.
//
// Device failures are not wrapped in these: they reach the caller exactly as
// the Daemon returned them.
var (
	// ErrDaemonRequired is returned by New when Options.Daemon is nil.
	ErrDaemonRequired = errors.New("daemon: device capability is required")

	// ErrFactoryRequired is returned by New when Options.Factory is nil.
	ErrFactoryRequired = errors.New("daemon: board factory is required")

	// ErrHandlerRequired is returned by New when Options.OnEvent is nil.
	ErrHandlerRequired = errors.New("daemon: event handler is required")

	// ErrInvalidRequest is returned for a Request not built by one of the
	// request constructors.
	ErrInvalidRequest = errors.New("daemon: invalid request")

	// ErrQueueClosed is returned by Queue.Pop once the queue is closed and empty.
	ErrQueueClosed = errors.New("daemon: queue closed")
)
