package mqtt

import "fmt"

// Topic prefixes.
const (
	// TopicPrefixBlinds is the base for per-blind topics in the default layout.
	TopicPrefixBlinds = "home/blinds"

	// TopicPrefixSystem is the base for backend system topics.
	TopicPrefixSystem = "tabi/system"
)

// Topics provides builders for the default topic layout.
//
// Device topics are configurable per blind, so these builders are only used
// to suggest topics for new blinds and for the backend's own status topic.
//
//	topics := mqtt.Topics{}
//	topics.BlindControl("bedroom")
//	// Returns: "home/blinds/bedroom/control"
type Topics struct{}

// BlindControl returns the command topic for a blind.
func (Topics) BlindControl(slug string) string {
	return fmt.Sprintf("%s/%s/control", TopicPrefixBlinds, slug)
}

// BlindStatus returns the status topic a controller reports position on.
func (Topics) BlindStatus(slug string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixBlinds, slug)
}

// BlindBattery returns the battery topic for a battery-powered controller.
func (Topics) BlindBattery(slug string) string {
	return fmt.Sprintf("%s/%s/battery", TopicPrefixBlinds, slug)
}

// SystemStatus returns the topic for backend online/offline status.
// Retained, and carries the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
