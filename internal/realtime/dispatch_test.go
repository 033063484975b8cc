package realtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobQueue_FIFO(t *testing.T) {
	q := newJobQueue()
	var got []int
	for i := 1; i <= 3; i++ {
		require.True(t, q.Enqueue(func() { got = append(got, i) }))
	}
	assert.Equal(t, 3, q.Len())

	for job, ok := q.TryDequeue(); ok; job, ok = q.TryDequeue() {
		job()
	}
	assert.Equal(t, []int{1, 2, 3}, got)

	q.Close()
	q.Close()
	assert.False(t, q.Enqueue(func() {}))
	_, open := <-q.Wait()
	assert.False(t, open)
}

func TestAsyncDispatcher_RunsInOrderAndSurvivesPanics(t *testing.T) {
	d := NewAsyncDispatcher(nil)

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 1; i <= 3; i++ {
		d.Dispatch(func() {
			defer wg.Done()
			if i == 2 {
				panic("boom")
			}
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	wg.Wait()
	d.Close()

	assert.Equal(t, []int{1, 3}, got)
	d.Dispatch(func() { t.Error("ran after close") })
}

func TestAsyncDispatcher_CloseDrainsQueued(t *testing.T) {
	d := NewAsyncDispatcher(nil)
	block := make(chan struct{})
	d.Dispatch(func() { <-block })

	ran := 0
	for i := 0; i < 5; i++ {
		d.Dispatch(func() { ran++ })
	}
	close(block)
	d.Close()
	assert.Equal(t, 5, ran)
}

func TestManualDispatcher_FlushIncludesNestedJobs(t *testing.T) {
	d := NewManualDispatcher()
	var got []string
	d.Dispatch(func() {
		got = append(got, "outer")
		d.Dispatch(func() { got = append(got, "inner") })
	})
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 2, d.Flush())
	assert.Equal(t, []string{"outer", "inner"}, got)
	assert.Equal(t, 0, d.Flush())
}

func TestListenerSet(t *testing.T) {
	d := NewManualDispatcher()
	s := NewListenerSet(d)

	var order []string
	a := s.Subscribe(ListenerFunc(func(ChangeEvent) { order = append(order, "a") }))
	s.Subscribe(ListenerFunc(func(ChangeEvent) { order = append(order, "b") }))
	assert.Equal(t, 2, s.Len())

	s.Notify(ChangeEvent{})
	d.Flush()
	assert.Equal(t, []string{"a", "b"}, order)

	assert.True(t, s.Unsubscribe(a))
	assert.False(t, s.Unsubscribe(a))
	s.Notify(ChangeEvent{})
	d.Flush()
	assert.Equal(t, []string{"a", "b", "b"}, order)
}
