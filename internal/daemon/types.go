package daemon

import (
	"fmt"
	"strconv"
)

// BoardID identifies one board attached to the controller.
type BoardID uint64

// String returns the decimal form used in topics and log fields.
func (id BoardID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseBoardID parses the decimal form produced by BoardID.String.
func ParseBoardID(s string) (BoardID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing board id %q: %w", s, err)
	}
	return BoardID(v), nil
}

// RGB is an LED colour.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Matrix is a point-in-time read of which keys on a board are pressed.
//
// The zero value is the empty matrix. Data is row-major with Rows*Cols entries.
type Matrix struct {
	Rows uint8  `json:"rows"`
	Cols uint8  `json:"cols"`
	Data []bool `json:"data"`
}

// NewMatrix returns an all-released matrix of the given size.
func NewMatrix(rows, cols uint8) Matrix {
	return Matrix{
		Rows: rows,
		Cols: cols,
		Data: make([]bool, int(rows)*int(cols)),
	}
}

// Get reports whether the key at row/col is pressed.
// Out of range positions report false.
func (m Matrix) Get(row, col uint8) bool {
	if row >= m.Rows || col >= m.Cols {
		return false
	}
	i := int(row)*int(m.Cols) + int(col)
	if i >= len(m.Data) {
		return false
	}
	return m.Data[i]
}

// Pressed returns the number of pressed keys.
func (m Matrix) Pressed() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Equal compares two matrices by value.
func (m Matrix) Equal(other Matrix) bool {
	if m.Rows != other.Rows || m.Cols != other.Cols || len(m.Data) != len(other.Data) {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no memory with m.
func (m Matrix) Clone() Matrix {
	cpy := m
	if m.Data != nil {
		cpy.Data = make([]bool, len(m.Data))
		copy(cpy.Data, m.Data)
	}
	return cpy
}

// Daemon is the device capability owned by the worker.
//
// Implementations do not need to be safe for concurrent use: the worker is
// the only caller. Errors are domain errors and are passed back to callers
// verbatim.
type Daemon interface {
	// KeymapSet maps the key at (layer, output, input) to a keycode.
	KeymapSet(board BoardID, layer, output, input uint8, value uint16) error

	// SetColor sets the colour of LED index (0xFF addresses all LEDs).
	SetColor(board BoardID, index uint8, color RGB) error

	// SetBrightness sets the brightness of LED index.
	SetBrightness(board BoardID, index uint8, brightness int32) error

	// SetMode sets the LED animation mode and speed of a layer.
	SetMode(board BoardID, layer, mode, speed uint8) error

	// LedSave persists the current LED settings to the board's EEPROM.
	LedSave(board BoardID) error

	// MatrixGet reads the current key matrix.
	MatrixGet(board BoardID) (Matrix, error)

	// Model returns the board model identifier (e.g. "system76/launch_1").
	Model(board BoardID) (string, error)

	// Version returns the firmware version string.
	Version(board BoardID) (string, error)

	// Refresh re-enumerates the attached boards.
	Refresh() error

	// Boards lists the attached boards in device order.
	Boards() ([]BoardID, error)
}

// Board is the handle surfaced to the application for an attached board.
// Construction is delegated to a BoardFactory.
type Board interface {
	ID() BoardID
}

// BoardFactory builds the handle for a newly attached board.
//
// NewBoard runs on the worker goroutine. d may be queried during the call but
// must not be retained: later device access has to go through c. matrices
// receives every matrix change detected by the poll loop and is closed when
// the board is removed or the worker stops.
type BoardFactory interface {
	NewBoard(d Daemon, c *Client, id BoardID, matrices *Queue[Matrix]) (Board, error)
}

// BoardFactoryFunc adapts a function to BoardFactory.
type BoardFactoryFunc func(d Daemon, c *Client, id BoardID, matrices *Queue[Matrix]) (Board, error)

// NewBoard implements BoardFactory.
func (f BoardFactoryFunc) NewBoard(d Daemon, c *Client, id BoardID, matrices *Queue[Matrix]) (Board, error) {
	return f(d, c, id, matrices)
}

// Logger defines the logging interface used by the worker.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
