// Package bus provides event bus implementations for ReturnsX.
package bus

import (
	"fmt"

	"github.com/returnsx/returnsx/internal/domain"
)

// New creates a new event bus based on configuration.
// For Community tier: returns channel-based bus.
// For Pro tier: returns NATS-based bus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
