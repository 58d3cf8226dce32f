// Package worker provides an asynchronous worker pool for persisting chat
// history through the provided storage.Driver and announcing finished
// exchanges on the provided eventstream.Publisher.
//
// The pool decouples storage operations from the gateway's HTTP hot path so
// that a slow or failing history store never delays an answer.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/wenshu/pkg/eventstream"
	"github.com/papercomputeco/wenshu/pkg/history"
	"github.com/papercomputeco/wenshu/pkg/logger"
	"github.com/papercomputeco/wenshu/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 10 * time.Second
)

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting history.
	Driver storage.Driver

	// Publisher is the optional event stream for finished exchanges.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds a single job (defaults to 10s).
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool processes storage jobs asynchronously via a worker pool. It implements
// history.Recorder.
type Pool struct {
	config *Config
	queue  chan history.Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("worker pool requires a storage driver")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan history.Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job history.Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed, job dropped", "job", job.Name())
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued", "job", job.Name())
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped", "job", job.Name())
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the gateway HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("storage worker stopped", "worker_id", id)
}

// processJob runs a job and, once it is stored, publishes its event if it has one.
func (p *Pool) processJob(job history.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	if err := job.Execute(ctx, p.config.Driver); err != nil {
		p.logger.Error("async history storage failed",
			"job", job.Name(),
			"error", err,
		)
		return
	}

	p.logger.Debug("job stored", "job", job.Name())

	if p.config.Publisher == nil {
		return
	}

	ev, ok := job.(history.Eventer)
	if !ok {
		return
	}
	event := ev.Event()
	if event == nil {
		return
	}

	if err := p.config.Publisher.PublishChat(ctx, event); err != nil {
		p.logger.Warn("failed to publish chat event",
			"event_id", event.EventID,
			"error", err,
		)
	}
}

var _ history.Recorder = (*Pool)(nil)
