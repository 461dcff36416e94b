package taskqueue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueue_SameAgentTasksRunInOrder(t *testing.T) {
	q := New()
	var mu sync.Mutex
	var order []int

	var futures []*Future
	for i := 0; i < 20; i++ {
		i := i
		futures = append(futures, q.Enqueue("agent-1", func() (interface{}, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		}))
	}
	for _, f := range futures {
		_, _ = f.Wait()
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 20; i++ {
		assert.Equal(t, i, order[i])
	}
}

func TestQueue_DifferentAgentsRunConcurrently(t *testing.T) {
	q := New()
	release := make(chan struct{})
	blocked := q.Enqueue("agent-1", func() (interface{}, error) {
		<-release
		return "blocked-done", nil
	})
	other := q.Enqueue("agent-2", func() (interface{}, error) {
		return "other-done", nil
	})

	otherDone := make(chan struct{})
	go func() {
		_, _ = other.Wait()
		close(otherDone)
	}()
	select {
	case <-otherDone:
	case <-time.After(time.Second):
		t.Fatal("agent-2's task was blocked by agent-1's in-flight task")
	}
	res, err := other.Wait()
	assert.NoError(t, err)
	assert.Equal(t, "other-done", res)

	close(release)
	res, err = blocked.Wait()
	assert.NoError(t, err)
	assert.Equal(t, "blocked-done", res)
}

func TestQueue_FailingTaskDoesNotAbortLane(t *testing.T) {
	q := New()
	failing := q.Enqueue("agent-1", func() (interface{}, error) {
		return nil, fmt.Errorf("boom")
	})
	next := q.Enqueue("agent-1", func() (interface{}, error) {
		return "still works", nil
	})

	_, err := failing.Wait()
	assert.Error(t, err)
	res, err := next.Wait()
	assert.NoError(t, err)
	assert.Equal(t, "still works", res)
}

func TestQueue_EnqueueNeverBlocks(t *testing.T) {
	q := New()
	release := make(chan struct{})
	q.Enqueue("agent-1", func() (interface{}, error) { <-release; return nil, nil })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5000; i++ {
			q.Enqueue("agent-1", func() (interface{}, error) { return nil, nil })
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked while the lane's first task was still running")
	}
	close(release)
}

func TestQueue_Teardown(t *testing.T) {
	q := New()
	q.Teardown("never-used")
	f := q.Enqueue("agent-1", func() (interface{}, error) { return "ok", nil })
	_, _ = f.Wait()
	q.Teardown("agent-1")
}
