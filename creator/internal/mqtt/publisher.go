package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/qtcstream/qtcstream/pkg/types"
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish within the configured timeout.
var ErrPublishTimeout = errors.New("mqtt: publish timed out")

// Publisher writes result batches to the result topic as JSON.
type Publisher struct {
	client  paho.Client
	topic   string
	qos     byte
	timeout time.Duration
}

// NewPublisher returns a Publisher on c.
func NewPublisher(c paho.Client, topic string, qos byte, timeout time.Duration) *Publisher {
	return &Publisher{client: c, topic: topic, qos: qos, timeout: timeout}
}

// Name identifies the sink in logs and metrics.
func (p *Publisher) Name() string { return "mqtt" }

// Publish sends b and waits for the broker for at most the publish timeout.
func (p *Publisher) Publish(ctx context.Context, b *types.Batch) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("mqtt: marshal batch: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: publish %s: %w", p.topic, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s after %v", ErrPublishTimeout, p.topic, p.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
