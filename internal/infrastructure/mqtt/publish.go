package mqtt

import (
	"fmt"
	"sync"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends a message to the specified MQTT topic and waits up to
// defaultPublishTimeout for the broker acknowledgement (QoS 1 and 2).
//
// Parameters:
//   - topic: The topic to publish to (e.g., "home/blinds/bedroom/control")
//   - payload: The message payload (max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Publisher sends blind commands over a shared Client.
//
// Commands are never retained, so a controller that reconnects does not
// replay a stale command. Publishes are serialised: only one is in flight
// per Publisher at a time.
type Publisher struct {
	client *Client
	qos    byte
	mu     sync.Mutex
}

// NewPublisher creates a Publisher using qos for every command.
func NewPublisher(client *Client, qos byte) *Publisher {
	return &Publisher{client: client, qos: qos}
}

// Publish sends payload to topic.
func (p *Publisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client.Publish(topic, payload, p.qos, false)
}

// IsConnected reports whether the underlying client has a live session.
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}
