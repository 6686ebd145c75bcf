package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/boardd/internal/daemon"
)

// AllLEDs addresses every LED of a board in SetColor and SetBrightness.
const AllLEDs uint8 = 0xFF

// Default layout of boards created by NewDummy.
const (
	DefaultRows   uint8 = 6
	DefaultCols   uint8 = 16
	DefaultLayers uint8 = 4
	DefaultLEDs   uint8 = 16

	dummyModel   = "dummy/board"
	dummyVersion = "0.0.0-dummy"
)

// Dummy operations accepted by SetError.
const (
	OpKeymap     = "keymap"
	OpColor      = "color"
	OpBrightness = "brightness"
	OpMode       = "mode"
	OpLedSave    = "led_save"
	OpMatrix     = "matrix"
	OpRefresh    = "refresh"
	OpBoards     = "boards"
)

// DummyConfig configures a Dummy device.
type DummyConfig struct {
	// Boards lists the ids of boards plugged in at start.
	Boards []daemon.BoardID

	// Rows and Cols size the key matrix. Default: 6x16.
	Rows uint8
	Cols uint8

	// Layers is the number of keymap layers. Default: 4.
	Layers uint8

	// LEDs is the number of addressable LEDs. Default: 16.
	LEDs uint8
}

type keyPos struct {
	layer, output, input uint8
}

type ledMode struct {
	mode, speed uint8
}

// dummyBoard is the in-memory state of one simulated board.
type dummyBoard struct {
	keymap     map[keyPos]uint16
	colors     []daemon.RGB
	brightness []int32
	modes      []ledMode
	saves      int
	matrix     daemon.Matrix
}

// Dummy is an in-memory daemon.Daemon for development and tests.
//
// Plugged boards only become visible through Boards after the next Refresh,
// the way a real controller only reports hardware changes on enumeration.
//
// Thread Safety: All methods are safe for concurrent use, so tests may press
// keys or plug boards while the worker polls.
type Dummy struct {
	mu  sync.Mutex
	cfg DummyConfig

	boards  map[daemon.BoardID]*dummyBoard
	plugged []daemon.BoardID
	visible []daemon.BoardID

	errs map[string]error
}

// NewDummy creates a Dummy with cfg.Boards plugged in. Call Refresh to make
// them visible.
func NewDummy(cfg DummyConfig) *Dummy {
	if cfg.Rows == 0 {
		cfg.Rows = DefaultRows
	}
	if cfg.Cols == 0 {
		cfg.Cols = DefaultCols
	}
	if cfg.Layers == 0 {
		cfg.Layers = DefaultLayers
	}
	if cfg.LEDs == 0 {
		cfg.LEDs = DefaultLEDs
	}

	d := &Dummy{
		cfg:    cfg,
		boards: make(map[daemon.BoardID]*dummyBoard),
		errs:   make(map[string]error),
	}
	for _, id := range cfg.Boards {
		d.plugLocked(id)
	}
	return d
}

// Plug attaches a board. It is reported after the next Refresh.
func (d *Dummy) Plug(id daemon.BoardID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plugLocked(id)
}

// Unplug detaches a board. It disappears from Boards after the next Refresh,
// but device calls for it fail immediately.
func (d *Dummy) Unplug(id daemon.BoardID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.boards, id)
	for i, p := range d.plugged {
		if p == id {
			d.plugged = append(d.plugged[:i], d.plugged[i+1:]...)
			break
		}
	}
}

func (d *Dummy) plugLocked(id daemon.BoardID) {
	if _, ok := d.boards[id]; ok {
		return
	}
	d.boards[id] = &dummyBoard{
		keymap:     make(map[keyPos]uint16),
		colors:     make([]daemon.RGB, d.cfg.LEDs),
		brightness: make([]int32, d.cfg.LEDs),
		modes:      make([]ledMode, d.cfg.Layers),
		matrix:     daemon.NewMatrix(d.cfg.Rows, d.cfg.Cols),
	}
	d.plugged = append(d.plugged, id)
}

// PressKey sets the pressed state of a key in the board's matrix.
func (d *Dummy) PressKey(id daemon.BoardID, row, col uint8, pressed bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.boardLocked(id)
	if err != nil {
		return err
	}
	if row >= d.cfg.Rows || col >= d.cfg.Cols {
		return fmt.Errorf("%w: key %d,%d", ErrOutOfRange, row, col)
	}
	b.matrix.Data[int(row)*int(d.cfg.Cols)+int(col)] = pressed
	return nil
}

// SetError makes every call of op fail with err. A nil err clears it.
func (d *Dummy) SetError(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err == nil {
		delete(d.errs, op)
		return
	}
	d.errs[op] = err
}

// KeymapSet implements daemon.Daemon.
func (d *Dummy) KeymapSet(id daemon.BoardID, layer, output, input uint8, value uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.mutateLocked(OpKeymap, id)
	if err != nil {
		return err
	}
	if layer >= d.cfg.Layers || output >= d.cfg.Rows || input >= d.cfg.Cols {
		return fmt.Errorf("%w: key %d/%d/%d", ErrOutOfRange, layer, output, input)
	}
	b.keymap[keyPos{layer, output, input}] = value
	return nil
}

// SetColor implements daemon.Daemon. Index AllLEDs sets every LED.
func (d *Dummy) SetColor(id daemon.BoardID, index uint8, color daemon.RGB) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.mutateLocked(OpColor, id)
	if err != nil {
		return err
	}
	if index == AllLEDs {
		for i := range b.colors {
			b.colors[i] = color
		}
		return nil
	}
	if int(index) >= len(b.colors) {
		return fmt.Errorf("%w: led %d", ErrOutOfRange, index)
	}
	b.colors[index] = color
	return nil
}

// SetBrightness implements daemon.Daemon. Index AllLEDs sets every LED.
func (d *Dummy) SetBrightness(id daemon.BoardID, index uint8, brightness int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.mutateLocked(OpBrightness, id)
	if err != nil {
		return err
	}
	if index == AllLEDs {
		for i := range b.brightness {
			b.brightness[i] = brightness
		}
		return nil
	}
	if int(index) >= len(b.brightness) {
		return fmt.Errorf("%w: led %d", ErrOutOfRange, index)
	}
	b.brightness[index] = brightness
	return nil
}

// SetMode implements daemon.Daemon.
func (d *Dummy) SetMode(id daemon.BoardID, layer, mode, speed uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.mutateLocked(OpMode, id)
	if err != nil {
		return err
	}
	if int(layer) >= len(b.modes) {
		return fmt.Errorf("%w: layer %d", ErrOutOfRange, layer)
	}
	b.modes[layer] = ledMode{mode: mode, speed: speed}
	return nil
}

// LedSave implements daemon.Daemon.
func (d *Dummy) LedSave(id daemon.BoardID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.mutateLocked(OpLedSave, id)
	if err != nil {
		return err
	}
	b.saves++
	return nil
}

// MatrixGet implements daemon.Daemon.
func (d *Dummy) MatrixGet(id daemon.BoardID) (daemon.Matrix, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.mutateLocked(OpMatrix, id)
	if err != nil {
		return daemon.Matrix{}, err
	}
	return b.matrix.Clone(), nil
}

// Model implements daemon.Daemon.
func (d *Dummy) Model(id daemon.BoardID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.boardLocked(id); err != nil {
		return "", err
	}
	return dummyModel, nil
}

// Version implements daemon.Daemon.
func (d *Dummy) Version(id daemon.BoardID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.boardLocked(id); err != nil {
		return "", err
	}
	return dummyVersion, nil
}

// Refresh implements daemon.Daemon. It publishes the current set of plugged
// boards to Boards.
func (d *Dummy) Refresh() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.errs[OpRefresh]; err != nil {
		return err
	}
	d.visible = append(d.visible[:0:0], d.plugged...)
	return nil
}

// Boards implements daemon.Daemon. Boards are listed in plug order.
func (d *Dummy) Boards() ([]daemon.BoardID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.errs[OpBoards]; err != nil {
		return nil, err
	}
	out := make([]daemon.BoardID, len(d.visible))
	copy(out, d.visible)
	return out, nil
}

// Snapshot is a copy of the simulated state of one board.
type Snapshot struct {
	Keymap     map[string]uint16
	Colors     []daemon.RGB
	Brightness []int32
	Modes      [][2]uint8
	Saves      int
	Matrix     daemon.Matrix
}

// Snapshot returns a copy of the board's state. Keymap keys are formatted as
// "layer/output/input".
func (d *Dummy) Snapshot(id daemon.BoardID) (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.boardLocked(id)
	if err != nil {
		return Snapshot{}, err
	}

	keys := make([]keyPos, 0, len(b.keymap))
	for k := range b.keymap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, c := keys[i], keys[j]
		if a.layer != c.layer {
			return a.layer < c.layer
		}
		if a.output != c.output {
			return a.output < c.output
		}
		return a.input < c.input
	})

	s := Snapshot{
		Keymap:     make(map[string]uint16, len(keys)),
		Colors:     append([]daemon.RGB(nil), b.colors...),
		Brightness: append([]int32(nil), b.brightness...),
		Modes:      make([][2]uint8, len(b.modes)),
		Saves:      b.saves,
		Matrix:     b.matrix.Clone(),
	}
	for _, k := range keys {
		s.Keymap[fmt.Sprintf("%d/%d/%d", k.layer, k.output, k.input)] = b.keymap[k]
	}
	for i, m := range b.modes {
		s.Modes[i] = [2]uint8{m.mode, m.speed}
	}
	return s, nil
}

// mutateLocked checks the injected error for op and looks up the board.
// Caller must hold d.mu.
func (d *Dummy) mutateLocked(op string, id daemon.BoardID) (*dummyBoard, error) {
	if err := d.errs[op]; err != nil {
		return nil, err
	}
	return d.boardLocked(id)
}

func (d *Dummy) boardLocked(id daemon.BoardID) (*dummyBoard, error) {
	b, ok := d.boards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBoardNotFound, id)
	}
	return b, nil
}

var _ daemon.Daemon = (*Dummy)(nil)
