// Package device provides device-side implementations used around the
// daemon worker.
//
// # Dummy
//
// Dummy is an in-memory daemon.Daemon that simulates a controller with a set
// of boards. It keeps keymaps, LED colours, brightness and modes per board,
// and lets tests or a developer plug and unplug boards and press keys while
// the worker is running:
//
//	dummy := device.NewDummy(device.DummyConfig{Boards: []daemon.BoardID{1, 2}})
//	client, err := daemon.New(daemon.Options{Daemon: dummy, ...})
//	...
//	dummy.PressKey(1, 0, 3, true)
//
// Like real hardware, plugged boards are only reported by Boards after the
// next Refresh.
//
// # Board History
//
// SQLiteHistoryRepository records board added/removed events and key matrix
// changes in the board_history table (see migrations/). Entries are returned
// newest first.
package device
