// Package notify is the notification port for memory events. The learning
// pipeline emits events through it but never depends on delivery
// succeeding.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectMemoryCreated is the subject memory-created events publish to.
const SubjectMemoryCreated = "learning.memory.created"

// MemoryCreatedEvent announces a freshly stored memory.
type MemoryCreatedEvent struct {
	MemoryID   string    `json:"memory_id"`
	ThreadID   string    `json:"thread_id,omitempty"`
	Task       string    `json:"task"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notifier publishes memory events to interested adapters.
type Notifier interface {
	MemoryCreated(ctx context.Context, event MemoryCreatedEvent) error
}

// Nop discards all events. Used when no message bus is configured.
type Nop struct{}

func (Nop) MemoryCreated(context.Context, MemoryCreatedEvent) error { return nil }

// Config holds the NATS connection settings.
type Config struct {
	// URL is the NATS server URL (e.g. "nats://localhost:4222").
	URL string

	// Timeout bounds the initial connection attempt.
	Timeout time.Duration
}

// NATSNotifier publishes events over core NATS. Delivery is
// fire-and-forget: subscribers that miss an event pick up state from the
// store instead.
type NATSNotifier struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewNATSNotifier connects to the configured NATS server.
func NewNATSNotifier(cfg Config, logger *zap.Logger) (*NATSNotifier, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	logger.Info("connected to nats", zap.String("url", cfg.URL))
	return &NATSNotifier{conn: conn, logger: logger}, nil
}

// MemoryCreated publishes the event on the memory-created subject.
func (n *NATSNotifier) MemoryCreated(_ context.Context, event MemoryCreatedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := n.conn.Publish(SubjectMemoryCreated, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", SubjectMemoryCreated, err)
	}
	return nil
}

// Close drains and closes the connection.
func (n *NATSNotifier) Close() {
	n.conn.Close()
}
