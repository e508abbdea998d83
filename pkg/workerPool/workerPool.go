package workerpool

import (
	"errors"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned for tasks submitted after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

type WorkerPool struct {
	config    Config
	taskQueue chan Task
	mu        sync.RWMutex // held for reading while a task is queued
	closed    bool
}

type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

// Room groups the tasks of one caller. Collect returns their results in
// submission order.
type Room struct {
	resultChan chan result
	next       int
	wg         sync.WaitGroup
	wp         *WorkerPool
}

type Task struct {
	run   func() interface{}
	index int
	room  *Room
}

type result struct {
	index int
	value interface{}
}

func NewWorkerPool(config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		numberOfCPUs := runtime.NumCPU()
		config.WorkerCount = numberOfCPUs
	}

	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 1000
	}

	taskQueue := make(chan Task, config.GlobalBuffer)

	wp := &WorkerPool{
		config:    config,
		taskQueue: taskQueue,
	}

	for i := 0; i < config.WorkerCount; i++ {
		go wp.Worker()
	}

	return wp
}

func (wp *WorkerPool) Worker() {
	for t := range wp.taskQueue {
		t.room.resultChan <- result{index: t.index, value: t.run()}
		t.room.wg.Done()
	}
}

// Close stops the workers once the queued tasks are drained.
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return
	}
	wp.closed = true
	close(wp.taskQueue)
}

// CreateRoom creates a room for at most size tasks.
func (wp *WorkerPool) CreateRoom(size int) *Room {
	return &Room{
		resultChan: make(chan result, size),
		wp:         wp,
	}
}

// NewTaskWaitForFreeSlot queues job, blocking while the global buffer is
// full.
func (ro *Room) NewTaskWaitForFreeSlot(job func() interface{}) error {
	ro.wp.mu.RLock()
	defer ro.wp.mu.RUnlock()
	if ro.wp.closed {
		return ErrPoolClosed
	}

	task := Task{
		run:   job,
		index: ro.next,
		room:  ro,
	}
	ro.next++
	ro.wg.Add(1)
	ro.wp.taskQueue <- task
	return nil
}

// Collect waits for every task of the room and returns the results ordered
// like the submissions.
func (ro *Room) Collect() []interface{} {
	go ro.WaitAndClose()
	results := make([]interface{}, ro.next)

	for r := range ro.resultChan {
		results[r.index] = r.value
	}

	return results
}

func (ro *Room) WaitAndClose() {
	ro.wg.Wait()
	close(ro.resultChan)
}
