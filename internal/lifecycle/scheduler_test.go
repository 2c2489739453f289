package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/johannhartmann/learning-agent/internal/memory"
)

func TestNewScheduler(t *testing.T) {
	mgr, _ := newTestManager(t)

	scheduler, err := NewScheduler(mgr, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, scheduler)
	assert.Equal(t, 24*time.Hour, scheduler.dailyInterval)
	assert.Equal(t, 7*24*time.Hour, scheduler.weeklyInterval)
	assert.Equal(t, 30*24*time.Hour, scheduler.monthlyInterval)
	assert.False(t, scheduler.running)
}

func TestNewScheduler_NilManager(t *testing.T) {
	scheduler, err := NewScheduler(nil, zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, scheduler)
	assert.Contains(t, err.Error(), "manager cannot be nil")
}

func TestNewScheduler_NilLogger(t *testing.T) {
	mgr, _ := newTestManager(t)

	scheduler, err := NewScheduler(mgr, nil)
	assert.Error(t, err)
	assert.Nil(t, scheduler)
	assert.Contains(t, err.Error(), "logger cannot be nil")
}

func TestScheduler_StartStop(t *testing.T) {
	mgr, _ := newTestManager(t)

	scheduler, err := NewScheduler(mgr, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, scheduler.Start())
	assert.True(t, scheduler.running)

	require.NoError(t, scheduler.Stop())
	assert.False(t, scheduler.running)

	// Give goroutine time to finish
	time.Sleep(10 * time.Millisecond)
}

func TestScheduler_StartAlreadyRunning(t *testing.T) {
	mgr, _ := newTestManager(t)

	scheduler, err := NewScheduler(mgr, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, scheduler.Start())

	err = scheduler.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	require.NoError(t, scheduler.Stop())
	time.Sleep(10 * time.Millisecond)
}

func TestScheduler_StopNotRunning(t *testing.T) {
	mgr, _ := newTestManager(t)

	scheduler, err := NewScheduler(mgr, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, scheduler.Stop())
	assert.False(t, scheduler.running)
}

func TestScheduler_Restart(t *testing.T) {
	mgr, _ := newTestManager(t)

	scheduler, err := NewScheduler(mgr, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, scheduler.Start())
	require.NoError(t, scheduler.Stop())
	time.Sleep(10 * time.Millisecond)

	// stopCh is recreated on Start, so a second cycle works.
	require.NoError(t, scheduler.Start())
	require.NoError(t, scheduler.Stop())
	time.Sleep(10 * time.Millisecond)
}

func TestScheduler_RunsDailyJob(t *testing.T) {
	mgr, store := newTestManager(t)

	// An expired failure is deleted by the daily job, which makes the run
	// observable through the store.
	expired := storeAged(t, store, &memory.Memory{
		Task:            "Deploy without health checks",
		ConfidenceScore: 0.3,
		LifecycleState:  memory.StateFailed,
		ReplacedBy:      "already-processed",
	}, 10*24*time.Hour)

	scheduler, err := NewScheduler(mgr, zap.NewNop(),
		WithDailyInterval(20*time.Millisecond),
		WithJobTimeout(time.Second),
	)
	require.NoError(t, err)

	require.NoError(t, scheduler.Start())

	require.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), expired)
		return errors.Is(err, memory.ErrNotFound)
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, scheduler.Stop())
	time.Sleep(10 * time.Millisecond)
}
