// Package mqtt connects boardd to an MQTT broker.
//
// It wraps paho.mqtt.golang with auto-reconnect, subscriptions that survive
// reconnects, panic-safe handlers, and a retained online/offline status on
// boardd/system/status (offline via Last Will on an unexpected drop).
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("boardd/command/+", 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
//
// Use TLS (mqtt.broker.tls) whenever the broker is not on localhost.
package mqtt
