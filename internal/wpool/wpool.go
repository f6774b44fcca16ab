// Package wpool is a bounded worker pool dispatched under a
// gopkg.in/tomb.v2 tomb. It consolidates the teacher's split
// worker-pool code (internal/worker.go's server-package WorkerPool and
// internal/net/server.go's own copy wired through a never-defined
// fenrir/internal/utils package) into one pool type any caller can
// construct directly, fixing the teacher's unresolved import split.
package wpool

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// TaskFunc handles one dispatched task; returning a non-nil error
// kills the whole pool's tomb, so workers should only return an error
// for conditions that should stop the entire server (e.g. listener
// failure), never for a single bad connection.
type TaskFunc func(t *tomb.Tomb, task any) error

const defaultQueueSize = 256

// Pool is a fixed-size set of workers pulling tasks off one shared
// channel, the same shape as the teacher's WorkerPool.Setup/worker
// pair, generalized to be constructed standalone rather than requiring
// a package-level task-channel-size constant.
type Pool struct {
	size int
	work TaskFunc
	task chan any
}

// New builds a pool of size workers; queueSize <= 0 uses a sane default.
func New(size int, queueSize int, work TaskFunc) *Pool {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Pool{
		size: size,
		work: work,
		task: make(chan any, queueSize),
	}
}

// Submit enqueues a task for a worker to pick up. Blocks if the queue
// is full — callers that cannot tolerate backpressure should select on
// a context/t.Dying() around the send.
func (p *Pool) Submit(task any) {
	p.task <- task
}

// Run starts size workers under t and blocks until t is dying. Meant
// to be launched with t.Go(pool.Run) the way the teacher's
// Server.Run starts its own pool.
func (p *Pool) Run(t *tomb.Tomb) error {
	log.Info().Int("workers", p.size).Msg("starting worker pool")
	for i := 0; i < p.size; i++ {
		t.Go(func() error { return p.loop(t) })
	}
	<-t.Dying()
	return nil
}

func (p *Pool) loop(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-p.task:
			if err := p.work(t, task); err != nil {
				log.Error().Err(err).Msg("worker task failed")
				return err
			}
		}
	}
}
