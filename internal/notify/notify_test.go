package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNopDiscardsEvents(t *testing.T) {
	err := Nop{}.MemoryCreated(context.Background(), MemoryCreatedEvent{
		MemoryID: "mem-1",
		Task:     "Build REST API",
	})
	assert.NoError(t, err)
}

func TestNewNATSNotifierUnreachable(t *testing.T) {
	notifier, err := NewNATSNotifier(Config{
		URL:     "nats://127.0.0.1:1",
		Timeout: 100 * time.Millisecond,
	}, zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, notifier)
}
