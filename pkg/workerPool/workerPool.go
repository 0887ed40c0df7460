// Package workerpool runs batches of independent accumulator jobs in
// parallel. Each fortress instance is single-threaded, but separate
// instances share nothing, so a pool of workers can drive many of them at
// once (the torture harness does exactly that).
package workerpool

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/fortresskit/fortress/pkg/selfheal"
)

// Result is the outcome of one accumulator job.
type Result struct {
	Digest    []byte
	Recovered bool
	Reinit    bool
	Counters  selfheal.Counters
	Err       error
}

// Job builds, exercises and heals one independent accumulator.
type Job func() Result

type task struct {
	run  Job
	room *Room
}

// Pool is a fixed set of workers pulling jobs from a shared queue.
type Pool struct {
	config    Config
	taskQueue chan task
}

type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

// NewPool starts the workers. A zero WorkerCount defaults to three per CPU,
// a zero GlobalBuffer to 10000 queued tasks.
func NewPool(config Config) *Pool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU() * 3
	}
	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 10000
	}

	p := &Pool{
		config:    config,
		taskQueue: make(chan task, config.GlobalBuffer),
	}
	for i := 0; i < config.WorkerCount; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for t := range p.taskQueue {
		t.room.resultChan <- t.run()
		t.room.wg.Done()
	}
}

// Close stops the workers once queued tasks drain. Rooms with outstanding
// tasks must be collected first.
func (p *Pool) Close() {
	close(p.taskQueue)
}

// Room groups a batch of jobs whose results are collected together.
type Room struct {
	resultChan chan Result
	wg         sync.WaitGroup
	pool       *Pool
}

// CreateRoom returns a room buffering up to size results.
func (p *Pool) CreateRoom(size int) *Room {
	return &Room{
		resultChan: make(chan Result, size),
		pool:       p,
	}
}

// Submit queues a job, blocking while the global queue is full.
func (ro *Room) Submit(job Job) {
	ro.wg.Add(1)
	ro.pool.taskQueue <- task{run: job, room: ro}
}

// TrySubmit queues a job or reports that the buffers are full.
func (ro *Room) TrySubmit(job Job) error {
	if len(ro.pool.taskQueue) == cap(ro.pool.taskQueue) {
		return fmt.Errorf("global task buffer full (%d tasks)", cap(ro.pool.taskQueue))
	}
	if len(ro.resultChan) == cap(ro.resultChan) {
		return fmt.Errorf("room buffer full (%d results)", cap(ro.resultChan))
	}
	ro.Submit(job)
	return nil
}

// Collect waits for every submitted job and returns all results. The room
// cannot be reused afterwards.
func (ro *Room) Collect() []Result {
	go func() {
		ro.wg.Wait()
		close(ro.resultChan)
	}()

	results := make([]Result, 0)
	for r := range ro.resultChan {
		results = append(results, r)
	}
	return results
}
