// Package broker runs an in-process MQTT broker.
//
// The embedded broker lets a single tabi binary drive blind controllers
// without a separate Mosquitto install: controllers connect to it over TCP
// and the backend's own MQTT client connects to it like any other broker.
// It is also what the MQTT and end-to-end tests publish through.
//
//	b := broker.New(cfg.MQTT.Embedded, cfg.MQTT.Auth)
//	if err := b.Start(); err != nil {
//	    return err
//	}
//	defer b.Close()
package broker
