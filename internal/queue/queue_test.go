package queue_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoloop/echoloop/internal/queue"
)

func TestAsyncTaskQueueOrder(t *testing.T) {
	q := queue.NewAsyncTaskQueue()
	require.True(t, q.Empty())
	require.Nil(t, q.Dequeue())

	for i := 0; i < 100; i++ {
		task := queue.GetTask()
		task.Arg = i
		q.Enqueue(task)
	}
	assert.Equal(t, 100, q.Len())

	for i := 0; i < 100; i++ {
		task := q.Dequeue()
		require.NotNil(t, task)
		assert.Equal(t, i, task.Arg)
		queue.PutTask(task)
	}
	assert.True(t, q.Empty())
}

func TestAsyncTaskQueueConcurrent(t *testing.T) {
	const taskNum = 10000
	q := queue.NewAsyncTaskQueue()

	var wg sync.WaitGroup
	for p := 0; p < 2; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < taskNum; i++ {
				q.Enqueue(&queue.Task{})
			}
		}()
	}

	var counter int32
	for c := 0; c < 2; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for atomic.LoadInt32(&counter) < 2*taskNum {
				if task := q.Dequeue(); task != nil {
					atomic.AddInt32(&counter, 1)
				}
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 2*taskNum, atomic.LoadInt32(&counter))
	assert.True(t, q.Empty())
}
