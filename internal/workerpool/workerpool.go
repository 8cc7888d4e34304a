// Package workerpool runs jobs on a fixed set of goroutines. Jobs are either
// fire-and-forget (Submit) or grouped in a Room whose results are collected
// together.
package workerpool

import (
	"errors"
	"runtime"
	"sync"
)

var (
	ErrGlobalBufferFull = errors.New("workerpool: global buffer is full")
	ErrRoomBufferFull   = errors.New("workerpool: room buffer is full")
	ErrStopped          = errors.New("workerpool: stopped")
)

type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

type WorkerPool struct {
	config    Config
	taskQueue chan func()

	mu      sync.RWMutex
	stopped bool
	workers sync.WaitGroup
}

func NewWorkerPool(config Config) *WorkerPool { // H
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU() * 3
	}

	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 10000
	}

	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan func(), config.GlobalBuffer),
	}

	wp.workers.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.workers.Done()
	for run := range wp.taskQueue {
		run()
	}
}

// Submit enqueues job, blocking while the global buffer is full.
func (wp *WorkerPool) Submit(job func()) error { // A
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrStopped
	}
	wp.taskQueue <- job
	return nil
}

// Stop lets queued jobs finish and then terminates the workers.
func (wp *WorkerPool) Stop() { // A
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.taskQueue)
	wp.mu.Unlock()
	wp.workers.Wait()
}

// Room groups tasks whose results are collected together.
type Room[T any] struct {
	resultChan chan T
	wg         sync.WaitGroup
	wp         *WorkerPool
}

func NewRoom[T any](wp *WorkerPool, size int) *Room[T] { // H
	return &Room[T]{
		resultChan: make(chan T, size),
		wp:         wp,
	}
}

func (ro *Room[T]) NewTaskWaitForFreeSlot(job func() T) error { // H
	ro.wg.Add(1)
	err := ro.wp.Submit(func() {
		ro.resultChan <- job()
		ro.wg.Done()
	})
	if err != nil {
		ro.wg.Done()
	}
	return err
}

func (ro *Room[T]) NewTask(job func() T) error { // H
	if len(ro.wp.taskQueue) == cap(ro.wp.taskQueue) {
		return ErrGlobalBufferFull
	}

	if len(ro.resultChan) == cap(ro.resultChan) {
		return ErrRoomBufferFull
	}

	return ro.NewTaskWaitForFreeSlot(job)
}

// Collect waits for every task of the room and returns their results in
// completion order. The room must not receive tasks afterwards.
func (ro *Room[T]) Collect() []T { // H
	go ro.waitAndClose()
	results := make([]T, 0, cap(ro.resultChan))

	for result := range ro.resultChan {
		results = append(results, result)
	}

	return results
}

func (ro *Room[T]) waitAndClose() {
	ro.wg.Wait()
	close(ro.resultChan)
}
