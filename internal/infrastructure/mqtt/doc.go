// Package mqtt connects the station to an MQTT broker.
//
// The broker is an optional remote surface next to the HTTP API. It carries:
//   - run and stop commands for the station (CommandListener)
//   - run started/finished events (RunPublisher)
//   - a retained online/offline status with a Last Will for crash detection
//
// All topics are scoped by the station id, see Topics.
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Station.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	listener := mqtt.NewCommandListener(client, cfg.Station.ID, controller, logger)
//	if err := listener.Start(); err != nil {
//	    return err
//	}
//
// Handlers run on paho's goroutines. Commands only start work on the macro
// runner and return immediately.
package mqtt
