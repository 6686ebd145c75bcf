package daemon

import (
	"context"
	"fmt"
	"time"
)

// Request is a command ready to be submitted with Client.Submit.
type Request struct {
	id      identity
	payload payload
}

// KeymapSetRequest maps the key at (layer, output, input) on board to value.
func KeymapSetRequest(board BoardID, layer, output, input uint8, value uint16) Request {
	return Request{id: keymapIdentity(board, layer, output, input), payload: payload{keycode: value}}
}

// SetColorRequest sets the colour of LED index on board.
func SetColorRequest(board BoardID, index uint8, color RGB) Request {
	return Request{id: colorIdentity(board, index), payload: payload{color: color}}
}

// SetBrightnessRequest sets the brightness of LED index on board.
func SetBrightnessRequest(board BoardID, index uint8, brightness int32) Request {
	return Request{id: brightnessIdentity(board, index), payload: payload{brightness: brightness}}
}

// SetModeRequest sets the LED mode and speed of a layer on board.
func SetModeRequest(board BoardID, layer, mode, speed uint8) Request {
	return Request{id: modeIdentity(board, layer), payload: payload{mode: mode, speed: speed}}
}

// LedSaveRequest persists the LED settings of board.
func LedSaveRequest(board BoardID) Request {
	return Request{id: ledSaveIdentity(board)}
}

// MatrixRateRequest sets the matrix poll rate. Zero or less stops polling.
func MatrixRateRequest(rate time.Duration) Request {
	return Request{id: kindIdentity(KindMatrixRate), payload: payload{rate: max(rate, 0)}}
}

// RefreshRequest re-enumerates the attached boards.
func RefreshRequest() Request {
	return Request{id: kindIdentity(KindRefresh)}
}

// Kind returns the kind of mutation req performs.
func (r Request) Kind() Kind {
	return r.id.kind
}

// String describes the request for logs.
func (r Request) String() string {
	k, p := r.id.key, r.payload
	switch r.id.kind {
	case KindKeymap:
		return fmt.Sprintf("keymap board=%s layer=%d output=%d input=%d keycode=%d", k.Board, k.Layer, k.Output, k.Input, p.keycode)
	case KindColor:
		return fmt.Sprintf("color board=%s index=%d rgb=%d,%d,%d", k.Board, k.Index, p.color.R, p.color.G, p.color.B)
	case KindBrightness:
		return fmt.Sprintf("brightness board=%s index=%d brightness=%d", k.Board, k.Index, p.brightness)
	case KindMode:
		return fmt.Sprintf("mode board=%s layer=%d mode=%d speed=%d", k.Board, k.Layer, p.mode, p.speed)
	case KindLedSave:
		return fmt.Sprintf("led_save board=%s", k.Board)
	case KindMatrixRate:
		return fmt.Sprintf("matrix_rate rate=%s", p.rate)
	default:
		return r.id.kind.String()
	}
}

// Pending is a submitted command whose result may not be known yet.
type Pending struct {
	reply <-chan error
}

// Resolved returns a Pending that already holds err.
func Resolved(err error) *Pending {
	reply := make(chan error, 1)
	if err != nil {
		reply <- err
	}
	close(reply)
	return &Pending{reply: reply}
}

// Wait blocks until the command is resolved or ctx ends. A command that was
// superseded or dropped at exit resolves as success.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case err, ok := <-p.reply:
		if !ok {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
