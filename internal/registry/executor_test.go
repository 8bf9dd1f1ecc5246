package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_CallReturnsValue(t *testing.T) {
	exec := NewExecutor()
	go exec.Run()
	defer exec.Close()

	var got int
	err := exec.Call(func() error {
		got = 42
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestExecutor_UnitsNeverRunConcurrently(t *testing.T) {
	exec := NewExecutor()
	go exec.Run()
	defer exec.Close()

	var running, maxRunning, count int
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exec.Call(func() error {
				running++
				if running > maxRunning {
					maxRunning = running
				}
				count++
				running--
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxRunning, "units overlapped")
	assert.Equal(t, 100, count)
}

func TestExecutor_SubmissionOrderPreserved(t *testing.T) {
	exec := NewExecutor()

	var seen []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, exec.Submit(func() {
			seen = append(seen, i)
		}))
	}

	// Start the loop only after everything is queued, then drain.
	go exec.Run()
	exec.Close()

	require.Len(t, seen, 10)
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestExecutor_PanicDoesNotKillLoop(t *testing.T) {
	exec := NewExecutor()
	go exec.Run()
	defer exec.Close()

	err := exec.Call(func() error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	// The loop must still be serving units.
	var alive bool
	require.NoError(t, exec.Call(func() error {
		alive = true
		return nil
	}))
	assert.True(t, alive)
}

func TestExecutor_SubmitAfterClose(t *testing.T) {
	exec := NewExecutor()
	go exec.Run()
	exec.Close()

	assert.ErrorIs(t, exec.Submit(func() {}), ErrExecutorClosed)
	assert.ErrorIs(t, exec.Call(func() error { return nil }), ErrExecutorClosed)
}

func TestExecutor_CloseDrainsQueuedUnits(t *testing.T) {
	exec := NewExecutor()

	var done int
	for i := 0; i < 50; i++ {
		require.NoError(t, exec.Submit(func() { done++ }))
	}
	go exec.Run()
	exec.Close()

	assert.Equal(t, 50, done)
}
