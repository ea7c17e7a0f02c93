package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOneShotTimer(t *testing.T) {
	m := NewTimerManager(5 * time.Millisecond)
	defer m.Stop()

	var calls atomic.Int32
	m.AddTimer("once", 10*time.Millisecond, 0, func() { calls.Add(1) })

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, m.Len())
}

func TestRepeatingTimer(t *testing.T) {
	m := NewTimerManager(5 * time.Millisecond)
	defer m.Stop()

	var calls atomic.Int32
	id := m.AddTimer("repeat", 0, 10*time.Millisecond, func() { calls.Add(1) })

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, m.RemoveTimer(id))
	assert.False(t, m.RemoveTimer(id))
}

func TestPanickingCallbackIsRecovered(t *testing.T) {
	m := NewTimerManager(5 * time.Millisecond)
	defer m.Stop()

	var after atomic.Bool
	m.AddTimer("boom", 0, 0, func() { panic("boom") })
	m.AddTimer("after", 20*time.Millisecond, 0, func() { after.Store(true) })

	assert.Eventually(t, after.Load, time.Second, 5*time.Millisecond)
}

func TestStopWaitsForCallbacks(t *testing.T) {
	m := NewTimerManager(5 * time.Millisecond)

	var done atomic.Bool
	started := make(chan struct{})
	m.AddTimer("slow", 0, 0, func() {
		close(started)
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
	})
	<-started
	m.Stop()
	assert.True(t, done.Load())
}
