// Package board provides the handle applications use for one attached
// keyboard board.
//
// Factory is the daemon.BoardFactory used by boardd. For every board the
// worker attaches it reads the model and firmware version, then starts a
// goroutine draining the board's matrix stream into Board.Matrix and the
// optional OnMatrix callback. The goroutine ends, and Board.Done closes,
// when the board is removed or the worker stops.
package board
