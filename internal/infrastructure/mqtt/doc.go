// Package mqtt provides the MQTT client used to drive blind controllers.
//
// This package manages:
//   - Connection to the broker with paho's auto-reconnect
//   - Command publishing with a bounded acknowledgement wait
//   - Last Will and Testament (LWT) on the system status topic
//   - A serialising Publisher shared by concurrent dispatches
//
// # Architecture
//
// Blind controllers (ESP32 boards, Zigbee2MQTT bridges and similar) listen
// on one control topic each and act on a bare verb payload:
//
//	HTTP API → dispatch → Publisher → MQTT broker → blind controller
//
// The broker can be external (Mosquitto) or the embedded broker from the
// broker package.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	pub := mqtt.NewPublisher(client, byte(cfg.MQTT.QoS))
//	err = pub.Publish("home/blinds/bedroom/control", []byte("OPEN"))
package mqtt
