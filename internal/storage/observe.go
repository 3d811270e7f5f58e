package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ledger/internal/model"
)

// Subscription is a live view over a transaction filter. C carries the
// current snapshot first, then a fresh snapshot after every committed write
// touching the filter's owner. A slow reader only sees the latest snapshot.
type Subscription struct {
	C <-chan []model.Transaction

	ch     chan []model.Transaction
	filter Filter
	id     uint64
	hub    *observerHub
	stop   func() bool

	mu     sync.Mutex
	closed bool
}

// Close ends the subscription and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.hub.remove(s.id)
}

func (s *Subscription) deliver(snapshot []model.Transaction) {
	if snapshot == nil {
		snapshot = []model.Transaction{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	// single-slot mailbox: replace whatever the reader has not consumed yet
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snapshot
}

type loadFunc func(context.Context, Filter) ([]model.Transaction, error)

type observerHub struct {
	load loadFunc

	// held across query and delivery so the last snapshot delivered is the newest
	deliverMu sync.Mutex

	mu   sync.Mutex
	subs map[uint64]*Subscription
	next uint64
}

func newObserverHub(load loadFunc) *observerHub {
	return &observerHub{load: load, subs: make(map[uint64]*Subscription)}
}

func (h *observerHub) subscribe(f Filter) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	ch := make(chan []model.Transaction, 1)
	sub := &Subscription{C: ch, ch: ch, filter: f, id: h.next, hub: h}
	h.subs[sub.id] = sub
	return sub
}

func (h *observerHub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

func (h *observerHub) closeAll() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (h *observerHub) refresh(ctx context.Context, sub *Subscription) error {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	snapshot, err := h.load(ctx, sub.filter)
	if err != nil {
		return err
	}
	sub.deliver(snapshot)
	return nil
}

// notify re-emits to every subscription watching one of owners. It runs
// after commit and before the write returns to its caller.
func (h *observerHub) notify(ctx context.Context, owners ...string) {
	h.mu.Lock()
	var targets []*Subscription
	for _, sub := range h.subs {
		for _, owner := range owners {
			if sub.filter.OwnerID == owner {
				targets = append(targets, sub)
				break
			}
		}
	}
	h.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	for _, sub := range targets {
		if err := h.refresh(ctx, sub); err != nil {
			slog.WarnContext(ctx, "Failed to refresh observer", "owner_id", sub.filter.OwnerID, "error", err)
		}
	}
}

// Observe opens a live query. The subscription ends when ctx is done or
// Close is called.
func (s *Store) Observe(ctx context.Context, f Filter) (*Subscription, error) {
	if f.OwnerID == "" {
		return nil, fmt.Errorf("observe: %w", model.ErrEmptyOwner)
	}

	sub := s.hub.subscribe(f)
	if err := s.hub.refresh(ctx, sub); err != nil {
		sub.Close()
		return nil, fmt.Errorf("observe: %w", err)
	}
	stop := context.AfterFunc(ctx, sub.Close)
	sub.mu.Lock()
	sub.stop = stop
	sub.mu.Unlock()
	return sub, nil
}
