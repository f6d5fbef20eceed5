package lazy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_InitOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	h := New(func(context.Context) (int, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return 42, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := h.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, h.Ready())
}

func TestHandle_RetriesAfterFailure(t *testing.T) {
	fail := true
	calls := 0
	h := New(func(context.Context) (string, error) {
		calls++
		if fail {
			return "", errors.New("boom")
		}
		return "ok", nil
	})

	_, err := h.Get(context.Background())
	require.Error(t, err)
	assert.False(t, h.Ready())
	_, ok := h.Peek()
	assert.False(t, ok)

	fail = false
	v, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	v, ok = h.Peek()
	assert.True(t, ok)
	assert.Equal(t, "ok", v)

	_, _ = h.Get(context.Background())
	assert.Equal(t, 2, calls)
}

func TestHandle_WaiterHonorsDeadline(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	h := New(func(context.Context) (int, error) {
		close(started)
		<-release
		return 7, nil
	})

	first := make(chan error, 1)
	go func() {
		_, err := h.Get(context.Background())
		first <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	begin := time.Now()
	_, err := h.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), time.Second)
	assert.False(t, h.Ready())

	close(release)
	require.NoError(t, <-first)
	v, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
