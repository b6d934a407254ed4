package service

import (
	"runtime"
	"sync"
)

// WorkerPool runs detection jobs on a fixed number of goroutines
type WorkerPool struct {
	workers  int
	jobQueue chan func()
	wg       sync.WaitGroup
	running  sync.WaitGroup
	once     sync.Once
	stop     sync.Once
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Workers returns the pool size
func (wp *WorkerPool) Workers() int { return wp.workers }

// Start initializes and starts all workers in the pool
func (wp *WorkerPool) Start() {
	wp.once.Do(func() {
		wp.running.Add(wp.workers)
		for i := 0; i < wp.workers; i++ {
			go wp.worker()
		}
	})
}

// worker processes jobs from the job queue
func (wp *WorkerPool) worker() {
	defer wp.running.Done()
	for job := range wp.jobQueue {
		func() {
			defer wp.wg.Done()
			job()
		}()
	}
}

// Submit adds a job to the worker pool queue. It blocks while the queue is full.
func (wp *WorkerPool) Submit(job func()) {
	wp.wg.Add(1)
	wp.jobQueue <- job
}

// Wait waits for all submitted jobs to complete
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Close stops accepting jobs and waits for the workers to exit
func (wp *WorkerPool) Close() {
	wp.stop.Do(func() {
		close(wp.jobQueue)
	})
	wp.running.Wait()
}
