package device

import "strings"

// Device is one configured blind.
//
// JSON field names follow the configuration file so a Device can be echoed
// back to API clients unchanged.
type Device struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Room         string `json:"room"`
	BusTopic     string `json:"mqtt_topic"`
	Kind         string `json:"device_type"`
	Enabled      bool   `json:"enabled"`
	StatusTopic  string `json:"status_topic,omitempty"`
	BatteryTopic string `json:"battery_topic,omitempty"`
}

// hasTopic reports whether the device has a usable bus topic.
func (d Device) hasTopic() bool {
	return strings.TrimSpace(d.BusTopic) != ""
}
