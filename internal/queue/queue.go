// Copyright (c) 2026 The Echoloop Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue holds the tasks other goroutines hand over to the event loop.
package queue

import (
	"sync"

	"github.com/eapache/queue"
)

// TaskFunc is the callback function executed by the event loop.
type TaskFunc func(interface{}) error

// Task is a wrapper that contains function and its argument.
type Task struct {
	Run TaskFunc
	Arg interface{}
}

var taskPool = sync.Pool{New: func() interface{} { return new(Task) }}

// GetTask gets a cached Task from pool.
func GetTask() *Task {
	return taskPool.Get().(*Task)
}

// PutTask puts the trashy Task back in pool.
func PutTask(task *Task) {
	task.Run, task.Arg = nil, nil
	taskPool.Put(task)
}

// AsyncTaskQueue is a FIFO of tasks, safe for concurrent use.
type AsyncTaskQueue struct {
	mu    sync.Mutex
	tasks *queue.Queue
}

// NewAsyncTaskQueue instantiates an empty AsyncTaskQueue.
func NewAsyncTaskQueue() *AsyncTaskQueue {
	return &AsyncTaskQueue{tasks: queue.New()}
}

// Enqueue appends a task to the tail of the queue.
func (q *AsyncTaskQueue) Enqueue(task *Task) {
	q.mu.Lock()
	q.tasks.Add(task)
	q.mu.Unlock()
}

// Dequeue removes and returns the head of the queue, or nil if it is empty.
func (q *AsyncTaskQueue) Dequeue() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.tasks.Length() == 0 {
		return nil
	}
	return q.tasks.Remove().(*Task)
}

// Empty tells whether the queue has no tasks.
func (q *AsyncTaskQueue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Length() == 0
}

// Len returns the number of queued tasks.
func (q *AsyncTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Length()
}
