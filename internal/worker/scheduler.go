// Package worker runs remote pushes on a bounded pool with one lane per record.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"ledger/internal/log"
	"ledger/internal/model"
)

// ErrStopped is returned through handles submitted after Stop.
var ErrStopped = errors.New("scheduler stopped")

const (
	KindTransaction = "transaction"
	KindProfile     = "profile"
)

// Key identifies a record lane. Ops sharing a key never run concurrently.
type Key struct {
	Kind string
	ID   string
}

func TransactionKey(id int64) Key {
	return Key{Kind: KindTransaction, ID: strconv.FormatInt(id, 10)}
}

func ProfileKey(ownerID string) Key {
	return Key{Kind: KindProfile, ID: ownerID}
}

func (k Key) String() string {
	return k.Kind + "/" + k.ID
}

// Result is the outcome of one op.
type Result struct {
	State    model.SyncState
	RemoteID string
	Err      error
}

// Op performs one remote operation and reports the record's resulting state.
type Op func(ctx context.Context) Result

// Handle resolves once the op it was returned for has run. Coalesced
// submissions share a handle.
type Handle struct {
	done   chan struct{}
	result Result
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) resolve(r Result) {
	h.result = r
	close(h.done)
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the op resolved or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the outcome and whether it is available yet.
func (h *Handle) Result() (Result, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return Result{}, false
	}
}

type queued struct {
	op     Op
	handle *Handle
}

type lane struct {
	next *queued
}

// Stats counts scheduler activity since construction.
type Stats struct {
	Submitted int64
	Coalesced int64
	Completed int64
}

// Scheduler runs ops with at most one in flight per key. An op submitted
// while its key is busy waits; later submissions replace the waiting op and
// receive the same handle.
type Scheduler struct {
	sem    *semaphore.Weighted
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	lanes   map[Key]*lane
	idle    chan struct{}
	stopped bool

	submitted atomic.Int64
	coalesced atomic.Int64
	completed atomic.Int64
}

// NewScheduler creates a scheduler running at most workers ops at a time.
func NewScheduler(workers int, logger *log.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		lanes:  make(map[Key]*lane),
		idle:   make(chan struct{}),
	}
}

// Submit schedules op on key's lane and returns its handle.
func (s *Scheduler) Submit(key Key, op Op) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		h := newHandle()
		h.resolve(Result{State: model.Pending, Err: ErrStopped})
		return h
	}
	s.submitted.Add(1)

	l, busy := s.lanes[key]
	if busy {
		if l.next != nil {
			l.next.op = op
			s.coalesced.Add(1)
			s.logger.Debug("Superseded queued op", "key", key.String())
			return l.next.handle
		}
		l.next = &queued{op: op, handle: newHandle()}
		return l.next.handle
	}

	q := &queued{op: op, handle: newHandle()}
	s.lanes[key] = &lane{}
	go s.run(key, q)
	return q.handle
}

func (s *Scheduler) run(key Key, q *queued) {
	for {
		res := s.execute(key, q.op)
		q.handle.resolve(res)
		s.completed.Add(1)

		s.mu.Lock()
		l := s.lanes[key]
		next := l.next
		l.next = nil
		if next == nil {
			delete(s.lanes, key)
			if len(s.lanes) == 0 {
				close(s.idle)
				s.idle = make(chan struct{})
			}
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		q = next
	}
}

func (s *Scheduler) execute(key Key, op Op) (res Result) {
	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		return Result{State: model.Pending, Err: ErrStopped}
	}
	defer s.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Op panicked", "key", key.String(), "panic", r)
			res = Result{State: model.Pending, Err: fmt.Errorf("op %s panicked: %v", key, r)}
		}
	}()
	return op(s.ctx)
}

// Busy reports whether key has an op running or waiting.
func (s *Scheduler) Busy(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lanes[key]
	return ok
}

// Drain waits until every lane is empty.
func (s *Scheduler) Drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		if len(s.lanes) == 0 {
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop refuses new submissions and waits for queued ops to finish. When ctx
// expires first, ops still waiting for a worker resolve with ErrStopped and
// running ops see their context cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")
	err := s.Drain(ctx)
	s.cancel()
	if err != nil {
		s.logger.Warn("Scheduler stopped before draining", "error", err)
		return fmt.Errorf("stop scheduler: %w", err)
	}
	s.logger.Info("Scheduler stopped", "completed", s.completed.Load())
	return nil
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted: s.submitted.Load(),
		Coalesced: s.coalesced.Load(),
		Completed: s.completed.Load(),
	}
}
