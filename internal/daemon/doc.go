// Package daemon serialises configuration commands for a keyboard controller.
//
// A keyboard controller is slow and must only be accessed by one goroutine at
// a time, while the UI, the MQTT bridge and anything else may want to change
// key mappings or LEDs concurrently. This package sits in between.
//
// # Architecture
//
//	 callers ──▶ Client ──(debounce)──▶ Queue ──▶ worker ──▶ Daemon
//	   ▲                                            │
//	   └──────────────── reply channel ◀────────────┤
//	                                                ├──▶ events ──▶ OnEvent
//	                                                └──▶ per-board matrix streams
//
// # Debounce
//
// Every command has an identity made of its kind and its target (board, layer,
// key position, LED index, ...). Issuing a command cancels the pending command
// with the same identity, so dragging a brightness slider produces one device
// write for the final value instead of one per pixel. Superseded callers still
// get a reply: the worker skips their command and they resolve as success.
//
// # Worker
//
// One goroutine, pinned to its OS thread, owns the Daemon. It interleaves
// two duties in a single select loop:
//
//   - executing commands in FIFO order
//   - polling the key matrix of every known board when a poll rate is set
//
// Refresh reconciles the known boards with the device inventory and emits
// EventBoardRemoved / EventBoardAdded. Events are delivered to OnEvent from a
// separate dispatcher goroutine, never from the worker.
//
// # Usage
//
//	client, err := daemon.New(daemon.Options{
//	    Daemon:  dev,
//	    Factory: boards,
//	    OnEvent: func(ev daemon.Event) { ... },
//	    Logger:  log,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Exit()
//
//	if err := client.Refresh(ctx); err != nil {
//	    return err
//	}
//	err = client.SetColor(ctx, id, 0xff, daemon.RGB{R: 255})
package daemon
