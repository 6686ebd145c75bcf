package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/boardd/internal/daemon"
)

// TopicPrefix is the root of every topic the bridge uses.
const TopicPrefix = "boardd"

// Command names accepted on boardd/command/{board}.
const (
	CommandSetKey        = "set_key"
	CommandSetColor      = "set_color"
	CommandSetBrightness = "set_brightness"
	CommandSetMode       = "set_mode"
	CommandLedSave       = "led_save"
	CommandSetMatrixRate = "set_matrix_rate"
	CommandRefresh       = "refresh"
)

// CommandMessage asks boardd to change a board.
// Topic: boardd/command/{board}
//
// Parameters per command:
//
//	set_key:         {"layer", "output", "input", "keycode"}
//	set_color:       {"index", "r", "g", "b"}
//	set_brightness:  {"index", "brightness"}
//	set_mode:        {"layer", "mode", "speed"}
//	set_matrix_rate: {"rate_ms"} (0 stops polling)
//	led_save, refresh: none
type CommandMessage struct {
	// ID correlates the command with its acknowledgment.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Command is the command name.
	Command string `json:"command"`

	// Parameters contains command-specific values.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	Source string `json:"source,omitempty"`
}

// MarshalJSON marshals a CommandMessage with an RFC3339 timestamp.
func (m *CommandMessage) MarshalJSON() ([]byte, error) {
	type Alias CommandMessage
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON unmarshals a CommandMessage. The timestamp is optional.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckCompleted means the command ran, or a newer command for the same
	// target superseded it.
	AckCompleted AckStatus = "completed"

	// AckFailed means the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout means no result arrived within the command timeout. The
	// command may still run later.
	AckTimeout AckStatus = "timeout"
)

// AckMessage reports the outcome of a command.
// Topic: boardd/ack/{board}
type AckMessage struct {
	CommandID string         `json:"command_id"`
	Timestamp time.Time      `json:"timestamp"`
	BoardID   daemon.BoardID `json:"board_id"`
	Command   string         `json:"command"`
	Status    AckStatus      `json:"status"`
	Error     *AckError      `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeDeviceError       = "DEVICE_ERROR"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeNotReady          = "NOT_READY"
)

// NewAckMessage creates a successful acknowledgment.
func NewAckMessage(board daemon.BoardID, cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		BoardID:   board,
		Command:   cmd.Command,
		Status:    status,
	}
}

// NewAckError creates a failed acknowledgment.
func NewAckError(board daemon.BoardID, cmd CommandMessage, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	ack := NewAckMessage(board, cmd, status)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// EventMessage announces a board being attached or detached.
// Topic: boardd/event/{board}
type EventMessage struct {
	BoardID   daemon.BoardID `json:"board_id"`
	Event     string         `json:"event"`
	Model     string         `json:"model,omitempty"`
	Version   string         `json:"version,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// StateMessage carries the latest key matrix of a board.
// Topic: boardd/state/{board}, QoS 1, retained.
type StateMessage struct {
	BoardID   daemon.BoardID `json:"board_id"`
	Timestamp time.Time      `json:"timestamp"`
	Matrix    daemon.Matrix  `json:"matrix"`
	Pressed   int            `json:"pressed"`
}

// NewStateMessage creates a state message for a matrix.
func NewStateMessage(board daemon.BoardID, m daemon.Matrix) StateMessage {
	return StateMessage{
		BoardID:   board,
		Timestamp: time.Now().UTC(),
		Matrix:    m,
		Pressed:   m.Pressed(),
	}
}

// CommandTopic returns the command topic of a board.
func CommandTopic(board daemon.BoardID) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, board)
}

// AckTopic returns the acknowledgment topic of a board.
func AckTopic(board daemon.BoardID) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, board)
}

// EventTopic returns the event topic of a board.
func EventTopic(board daemon.BoardID) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, board)
}

// StateTopic returns the retained state topic of a board.
func StateTopic(board daemon.BoardID) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, board)
}

// HealthTopic returns the bridge health topic.
func HealthTopic() string {
	return TopicPrefix + "/health"
}

// CommandSubscribeTopic returns the wildcard topic for all board commands.
func CommandSubscribeTopic() string {
	return TopicPrefix + "/command/+"
}

// parseCommandTopic extracts the board id from boardd/command/{board}.
func parseCommandTopic(topic string) (daemon.BoardID, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != commandTopicParts || parts[0] != TopicPrefix || parts[1] != "command" {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
	return daemon.ParseBoardID(parts[2])
}
