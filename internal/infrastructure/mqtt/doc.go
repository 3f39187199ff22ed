// Package mqtt provides MQTT client connectivity for the daemon.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The daemon publishes actuator state changes to retained topics and
// accepts toggle commands over command topics, so dashboards and other
// home-automation services can observe and drive it without touching
// the HTTP API.
//
//	onewired ↔ MQTT Broker ↔ dashboards / automations
//
// Topic scheme:
//
//	onewired/state/{relay|light}/{id}    retained state, published on change
//	onewired/command/{relay|light}/{id}  toggle commands, consumed by daemon
//	onewired/system/status               online/offline status + LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Accept toggle commands for all actuators
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a state change
//	topic := mqtt.Topics{}.ActuatorState(mqtt.KindRelay, 3)
//	client.Publish(topic, []byte(`{"on":true}`), 1, true)
package mqtt
