// Package bridge exposes boardd over MQTT.
//
// # Topics
//
//	boardd/command/{board}  in   CommandMessage (set_key, set_color, ...)
//	boardd/ack/{board}      out  AckMessage per command
//	boardd/event/{board}    out  EventMessage on board added/removed
//	boardd/state/{board}    out  StateMessage, retained, on matrix change
//	boardd/health           out  HealthMessage, retained, periodic
//
// # Wiring
//
// The bridge is built before the daemon client so it can be the client's
// event handler, then receives the client through SetController:
//
//	br, _ := bridge.NewBridge(bridge.Options{MQTTClient: mqttClient})
//	client, _ := daemon.New(daemon.Options{
//	    Daemon:  dev,
//	    Factory: board.NewFactory(board.Options{OnMatrix: br.HandleMatrix}),
//	    OnEvent: br.HandleEvent,
//	})
//	br.SetController(client)
//	br.Start(ctx)
//
// Commands are submitted to the client in the order they arrive, and each
// result is awaited on its own goroutine. A burst of set_color messages for
// one LED is collapsed by the daemon's debounce; a superseded command is
// acknowledged as completed.
package bridge
