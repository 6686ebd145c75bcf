package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrMQTTRequired is returned by NewBridge without an MQTT client.
	ErrMQTTRequired = errors.New("bridge: MQTT client is required")

	// ErrInvalidTopic is returned for a message on an unexpected topic.
	ErrInvalidTopic = errors.New("bridge: invalid topic")

	// ErrInvalidParameters is returned when command parameters are missing
	// or out of range.
	ErrInvalidParameters = errors.New("bridge: invalid parameters")

	// ErrUnknownCommand is returned for a command name the bridge does not know.
	ErrUnknownCommand = errors.New("bridge: unknown command")

	// ErrNotReady is returned when a command arrives before SetController.
	ErrNotReady = errors.New("bridge: controller not ready")

	// ErrStopped is returned for messages received after Stop.
	ErrStopped = errors.New("bridge: stopped")
)
