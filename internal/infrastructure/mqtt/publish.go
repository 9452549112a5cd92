package mqtt

import "fmt"

// maxPayloadSize bounds a single message (1MB), in line with typical broker limits.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic.
//
// Retain state-like topics (Topics.State, Topics.Health) so new
// subscribers receive the current value; never retain events or results.
//
// Parameters:
//   - topic: Destination topic, e.g. Topics.Result(id)
//   - payload: Message body, at most 1MB
//   - qos: 0, 1 or 2
//   - retained: Whether the broker keeps the message for new subscribers
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or ErrPublishFailed
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
		c.failures.Add(1)
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.failures.Add(1)
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	c.published.Add(1)
	return nil
}

// PublishDefault publishes with the configured QoS.
func (c *Client) PublishDefault(topic string, payload []byte, retained bool) error {
	return c.Publish(topic, payload, c.qos(), retained)
}
