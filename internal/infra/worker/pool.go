// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"

	"tg-bot-italian/internal/infra/logging"
)

var (
	ErrPoolFull    = errors.New("worker queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

// A small bounded worker pool. Submit never blocks; Stop drains what was
// already accepted.

type Task func(ctx context.Context) error

type Pool struct {
	wg   sync.WaitGroup
	mu   sync.RWMutex
	jobs chan Task
	done bool
	n    int
	log  *zerolog.Logger
}

func NewPool(workers, queue int, log *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = workers * 4
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Pool{jobs: make(chan Task, queue), n: workers, log: logging.Component(log, "worker")}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for task := range p.jobs {
				p.run(ctx, id, task)
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Warn().Int("worker", id).Err(err).Msg("task error")
	}
}

// Stop refuses new tasks, runs the queued ones and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.done {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// Len is the number of accepted tasks not yet picked up.
func (p *Pool) Len() int { return len(p.jobs) }
