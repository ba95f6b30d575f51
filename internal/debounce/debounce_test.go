package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleCoalesces(t *testing.T) {
	s := New()
	defer s.Stop()

	var mu sync.Mutex
	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		s.Schedule("segment", 40*time.Millisecond, func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{3}, got)
	assert.False(t, s.Pending("segment"))
}

func TestKeysAreIndependent(t *testing.T) {
	s := New()
	defer s.Stop()

	var a, b atomic.Int32
	s.Schedule("segment", 10*time.Millisecond, func() { a.Add(1) })
	s.Schedule("phoneticize", 10*time.Millisecond, func() { b.Add(1) })

	require.Eventually(t, func() bool {
		return a.Load() == 1 && b.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCancel(t *testing.T) {
	s := New()
	defer s.Stop()

	var ran atomic.Bool
	s.Schedule("k", 30*time.Millisecond, func() { ran.Store(true) })
	assert.True(t, s.Pending("k"))
	assert.True(t, s.Cancel("k"))
	assert.False(t, s.Cancel("k"))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestStopRefusesNewTasks(t *testing.T) {
	s := New()

	var ran atomic.Bool
	s.Schedule("k", 20*time.Millisecond, func() { ran.Store(true) })
	s.Stop()

	assert.False(t, s.Schedule("k", time.Millisecond, func() { ran.Store(true) }))
	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestRescheduleAfterRun(t *testing.T) {
	s := New()
	defer s.Stop()

	var n atomic.Int32
	s.Schedule("k", time.Millisecond, func() { n.Add(1) })
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)

	s.Schedule("k", time.Millisecond, func() { n.Add(1) })
	require.Eventually(t, func() bool { return n.Load() == 2 }, time.Second, time.Millisecond)
}
