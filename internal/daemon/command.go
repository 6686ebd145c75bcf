package daemon

import (
	"sync/atomic"
	"time"
)

// Kind is the kind of mutation a command performs.
type Kind uint8

const (
	KindKeymap Kind = iota + 1
	KindColor
	KindBrightness
	KindMode
	KindLedSave
	KindMatrixRate
	KindRefresh
	KindExit
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindKeymap:
		return "keymap"
	case KindColor:
		return "color"
	case KindBrightness:
		return "brightness"
	case KindMode:
		return "mode"
	case KindLedSave:
		return "led_save"
	case KindMatrixRate:
		return "matrix_rate"
	case KindRefresh:
		return "refresh"
	case KindExit:
		return "exit"
	default:
		return "unknown"
	}
}

// targetKey is what a command mutates. Only the fields meaningful for the
// command's kind are set; the rest stay zero.
type targetKey struct {
	Board  BoardID
	Layer  uint8
	Output uint8
	Input  uint8
	Index  uint8
}

// identity decides which commands supersede each other. The payload is
// deliberately not part of it.
type identity struct {
	kind Kind
	key  targetKey
}

func keymapIdentity(board BoardID, layer, output, input uint8) identity {
	return identity{kind: KindKeymap, key: targetKey{Board: board, Layer: layer, Output: output, Input: input}}
}

func colorIdentity(board BoardID, index uint8) identity {
	return identity{kind: KindColor, key: targetKey{Board: board, Index: index}}
}

func brightnessIdentity(board BoardID, index uint8) identity {
	return identity{kind: KindBrightness, key: targetKey{Board: board, Index: index}}
}

func modeIdentity(board BoardID, layer uint8) identity {
	return identity{kind: KindMode, key: targetKey{Board: board, Layer: layer}}
}

func ledSaveIdentity(board BoardID) identity {
	return identity{kind: KindLedSave, key: targetKey{Board: board}}
}

// kindIdentity is used by kinds with a single global target.
func kindIdentity(kind Kind) identity {
	return identity{kind: kind}
}

// payload carries the new value. Which field is meaningful depends on the kind.
type payload struct {
	keycode    uint16
	color      RGB
	brightness int32
	mode       uint8
	speed      uint8
	rate       time.Duration
}

// command is one queued request.
//
// reply has capacity 1. The worker either sends exactly one result or closes
// it without sending, which the caller reads as success.
type command struct {
	id        identity
	payload   payload
	cancelled *atomic.Bool
	reply     chan error
}

func newCommand(id identity, p payload) *command {
	return &command{
		id:      id,
		payload: p,
		reply:   make(chan error, 1),
	}
}

// resolve sends the result. Must be called at most once, and never after drop.
func (c *command) resolve(err error) {
	c.reply <- err
}

// drop releases the caller without a result.
func (c *command) drop() {
	close(c.reply)
}
