// Package memory is an in-process remote.Store used for local runs and tests.
// It supports fault injection and records every call.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"ledger/internal/remote"
)

var errOffline = errors.New("network unavailable")

// Call is one recorded adapter invocation.
type Call struct {
	Op   string
	Path string
}

type Store struct {
	mu      sync.Mutex
	docs    map[string]remote.Document
	calls   []Call
	faults  []remote.Kind
	offline bool
	hook    func(ctx context.Context, c Call) error
}

var _ remote.Store = (*Store)(nil)

func New() *Store {
	return &Store{docs: make(map[string]remote.Document)}
}

// FailNext makes the next n calls fail with the given kind.
func (s *Store) FailNext(kind remote.Kind, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.faults = append(s.faults, kind)
	}
}

// SetOffline makes every call fail as transient until reset.
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// OnCall installs a hook run before each call, outside the store lock. A
// non-nil error from the hook is returned as the call's result.
func (s *Store) OnCall(hook func(ctx context.Context, c Call) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

func (s *Store) begin(ctx context.Context, op, path string) error {
	s.mu.Lock()
	c := Call{Op: op, Path: path}
	s.calls = append(s.calls, c)
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, c); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return remote.NewTransient(op, path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return remote.NewTransient(op, path, errOffline)
	}
	if len(s.faults) > 0 {
		kind := s.faults[0]
		s.faults = s.faults[1:]
		return &remote.Failure{Kind: kind, Op: op, Path: path, Err: errors.New("injected failure")}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, col remote.CollectionRef, docID string, doc remote.Document) (string, error) {
	if docID == "" {
		docID = uuid.NewString()
	}
	path := col.Doc(docID).Path()
	if err := s.begin(ctx, "create", path); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = doc.Clone()
	return docID, nil
}

func (s *Store) Replace(ctx context.Context, ref remote.DocumentRef, doc remote.Document) error {
	path := ref.Path()
	if err := s.begin(ctx, "replace", path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = doc.Clone()
	return nil
}

func (s *Store) Delete(ctx context.Context, ref remote.DocumentRef) error {
	path := ref.Path()
	if err := s.begin(ctx, "delete", path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path)
	return nil
}

// Get returns a copy of the document at ref.
func (s *Store) Get(ref remote.DocumentRef) (remote.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[ref.Path()]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// List returns the sorted document ids stored under col.
func (s *Store) List(col remote.CollectionRef) []string {
	prefix := col.Path() + "/"
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for path := range s.docs {
		if id, ok := strings.CutPrefix(path, prefix); ok && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Calls returns a copy of the recorded calls in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CountCalls returns how many calls of op were made; an empty op counts all.
func (s *Store) CountCalls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op == "" {
		return len(s.calls)
	}
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}
