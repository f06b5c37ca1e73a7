package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRegistersJobs(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)

	s.ScheduleMaintenance(time.Hour, func() {})
	s.ScheduleDependencyScan(time.Hour, func() {})
	assert.Equal(t, 2, s.Jobs())

	require.NoError(t, s.Stop(context.Background()))
}

func TestSchedulerRunsTask(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)

	fired := make(chan struct{}, 1)
	s.ScheduleMaintenance(20*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	s.Start(context.Background())
	defer func() { _ = s.Stop(context.Background()) }()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled task never ran")
	}
}
