package transport

import (
	"rustok/internal/bus"
	"rustok/internal/config"
	"rustok/internal/logger"
)

// New builds the configured transport. An unrecognized name is a fatal
// startup error; there is no silent fallback.
func New(cfg config.EventConfig, b *bus.Bus, log logger.Logger) (Transport, error) {
	if err := config.ValidateTransport(cfg.Transport); err != nil {
		return nil, err
	}

	switch cfg.Transport {
	case config.TransportInMemory:
		return NewInMemory(b), nil

	case config.TransportOutboxForward:
		// The relay forwards onto the external broker when one is
		// configured, otherwise onto the local bus.
		if len(cfg.Kafka.Brokers) > 0 {
			broker, err := NewKafka(cfg.Kafka, log)
			if err != nil {
				return nil, err
			}
			return NewForward(broker), nil
		}
		return NewForward(NewInMemory(b)), nil

	default:
		broker, err := NewKafka(cfg.Kafka, log)
		if err != nil {
			return nil, err
		}
		return broker, nil
	}
}
