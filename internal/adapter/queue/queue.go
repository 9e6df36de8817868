// Package queue provides the ports.MessageQueue implementations behind the
// fleet event bus (subjects ocpp.events.*): NATS, RabbitMQ, or a noop
// default when no broker is configured.
package queue

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

// New selects a queue provider by name. An empty or "noop" provider gets
// the drop-everything queue so event publishing never blocks the core.
func New(provider, url string, log *zap.Logger) (ports.MessageQueue, error) {
	switch provider {
	case "nats":
		return NewNATSQueue(url, log)
	case "rabbitmq":
		return NewRabbitMQQueue(url, log)
	case "", "noop", "none":
		return NewNoopQueue(), nil
	default:
		return nil, fmt.Errorf("unknown queue provider %q", provider)
	}
}

// NoopQueue drops every message.
type NoopQueue struct{}

func NewNoopQueue() ports.MessageQueue { return NoopQueue{} }

func (NoopQueue) Publish(string, []byte) error               { return nil }
func (NoopQueue) Subscribe(string, func([]byte) error) error { return nil }
func (NoopQueue) Close() error                               { return nil }
