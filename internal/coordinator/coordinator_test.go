package coordinator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoop struct {
	running bool
	starts  int
	stops   int
}

func (f *fakeLoop) Start(ctx context.Context) { f.running = true; f.starts++ }
func (f *fakeLoop) Stop()                     { f.running = false; f.stops++ }

type fakeMonitor struct{ calls int }

func (f *fakeMonitor) EnsureRunning(ctx context.Context) { f.calls++ }

func newTestCoordinator() (*Coordinator, *fakeLoop, *fakeLoop, *fakeMonitor) {
	sentinel := &fakeLoop{}
	institutional := &fakeLoop{}
	monitor := &fakeMonitor{}
	return New(sentinel, institutional, monitor, zerolog.Nop()), sentinel, institutional, monitor
}

func TestStartSentinel_FromIdleSucceeds(t *testing.T) {
	c, sentinel, _, monitor := newTestCoordinator()
	require.NoError(t, c.StartSentinel(context.Background()))
	assert.Equal(t, ModeSentinel, c.Mode())
	assert.True(t, sentinel.running)
	assert.Equal(t, 1, monitor.calls)
}

func TestStartSentinel_FromSentinelFails(t *testing.T) {
	c, _, _, _ := newTestCoordinator()
	require.NoError(t, c.StartSentinel(context.Background()))
	assert.Error(t, c.StartSentinel(context.Background()))
}

func TestStartInstitutional_FromSentinelStopsSentinelFirst(t *testing.T) {
	c, sentinel, institutional, _ := newTestCoordinator()
	require.NoError(t, c.StartSentinel(context.Background()))
	require.NoError(t, c.StartInstitutional(context.Background()))

	assert.False(t, sentinel.running)
	assert.True(t, institutional.running)
	assert.Equal(t, ModeInstitutional, c.Mode())
}

func TestStartInstitutional_FromInstitutionalFails(t *testing.T) {
	c, _, _, _ := newTestCoordinator()
	require.NoError(t, c.StartInstitutional(context.Background()))
	assert.Error(t, c.StartInstitutional(context.Background()))
}

func TestStopSentinel_IsIdempotent(t *testing.T) {
	c, _, _, _ := newTestCoordinator()
	c.StopSentinel()
	c.StopSentinel()
	assert.Equal(t, ModeIdle, c.Mode())
}

func TestMonitorOnlyStartsOnce(t *testing.T) {
	c, _, _, monitor := newTestCoordinator()
	require.NoError(t, c.StartSentinel(context.Background()))
	c.StopSentinel()
	require.NoError(t, c.StartInstitutional(context.Background()))
	assert.Equal(t, 1, monitor.calls)
}

func TestShutdown_StopsActiveLoop(t *testing.T) {
	c, sentinel, _, _ := newTestCoordinator()
	require.NoError(t, c.StartSentinel(context.Background()))
	c.Shutdown()
	assert.False(t, sentinel.running)
	assert.Equal(t, ModeIdle, c.Mode())
}
