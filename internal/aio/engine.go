// Copyright 2026 PageDB Authors
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

// Package aio provides the asynchronous write engine used by the checkpoint
// sync driver. Operations are executed on a worker pool; their completion
// callbacks are delivered on the goroutine that calls WaitAll, so a single
// owner can submit a batch of I/O and process completions without locking its
// own state. Completion order is unspecified and need not match submit order.
package aio

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

type op struct {
	run  func() error
	done func(error)
}

type completion struct {
	done func(error)
	err  error
}

// Pool is a fixed-size worker pool implementing the async write engine.
type Pool struct {
	submitCh chan op
	wg       sync.WaitGroup

	mu          sync.Mutex
	cond        *sync.Cond
	outstanding int // submitted but not yet delivered to WaitAll
	completed   []completion
	closed      bool
}

// NewPool starts a pool with the given number of I/O workers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		submitCh: make(chan op, workers*2),
	}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	log.Tracef("aio: started %d I/O workers", workers)
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for o := range p.submitCh {
		err := o.run()
		p.mu.Lock()
		p.completed = append(p.completed, completion{done: o.done, err: err})
		p.cond.Signal()
		p.mu.Unlock()
	}
}

// Submit queues run for execution on a worker. done is invoked later with
// run's error, on the goroutine that calls WaitAll. Submit blocks only while
// the submit queue is full, never on I/O completion.
func (p *Pool) Submit(run func() error, done func(error)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		panic("pagedb: submit on closed aio pool")
	}
	p.outstanding++
	p.mu.Unlock()
	p.submitCh <- op{run: run, done: done}
}

// WaitAll blocks until every submitted operation has completed, invoking each
// completion callback inline. Callbacks may Submit further operations; those
// are awaited too.
func (p *Pool) WaitAll() {
	p.mu.Lock()
	for {
		for len(p.completed) > 0 {
			c := p.completed[0]
			p.completed = p.completed[1:]
			p.outstanding--
			p.mu.Unlock()
			c.done(c.err)
			p.mu.Lock()
		}
		if p.outstanding == 0 {
			break
		}
		p.cond.Wait()
	}
	p.mu.Unlock()
}

// Close stops the workers. Pending completions must have been drained with
// WaitAll first.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.outstanding != 0 {
		p.mu.Unlock()
		panic("pagedb: aio pool closed with outstanding operations")
	}
	p.mu.Unlock()
	close(p.submitCh)
	p.wg.Wait()
}
