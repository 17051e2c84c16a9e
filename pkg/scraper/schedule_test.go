package scraper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpscraper/pkg/logger"
)

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler("every tuesday", func(context.Context) {}, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestSchedulerRunNowAndStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	s, err := NewScheduler("0 3 * * *", func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
		cancel()
	}, logger.NewNopLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, true) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestCronLoggerAdapter(t *testing.T) {
	log := logger.NewTestLogger()
	adapter := cronLogger{log: log}

	adapter.Info("schedule", "entry", 1, "next", "tomorrow")
	adapter.Error(errors.New("boom"), "panic", "job", "batch")

	assert.True(t, log.HasMessage("cron: schedule"))
	assert.Len(t, log.GetMessagesByLevel("ERROR"), 1)
	assert.Equal(t, map[string]interface{}{"entry": 1, "next": "tomorrow"}, kvFields([]interface{}{"entry", 1, "next", "tomorrow", "dangling"}))
}
