// Package identity tracks who is using the ledger: the shared guest or one
// authenticated user at a time.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"ledger/internal/model"
)

var (
	ErrSwitchWithoutSignOut = errors.New("identity: sign out before signing in as another user")
	ErrInvalidUserID        = errors.New("identity: invalid user id")
)

// Actor is either the guest or an authenticated user.
type Actor struct {
	id string
}

// Guest is the anonymous actor; all its data is owned by model.GuestID.
var Guest = Actor{id: model.GuestID}

func Authenticated(userID string) Actor {
	return Actor{id: userID}
}

// ID is the owner id used to scope local queries and remote paths.
func (a Actor) ID() string {
	if a.id == "" {
		return model.GuestID
	}
	return a.id
}

func (a Actor) IsGuest() bool {
	return a.ID() == model.GuestID
}

func (a Actor) String() string {
	if a.IsGuest() {
		return "guest"
	}
	return "user:" + a.id
}

// Change describes one identity transition.
type Change struct {
	From, To Actor
}

// SignedIn reports a guest to authenticated transition.
func (c Change) SignedIn() bool {
	return c.From.IsGuest() && !c.To.IsGuest()
}

func (c Change) SignedOut() bool {
	return !c.From.IsGuest() && c.To.IsGuest()
}

func (c Change) Changed() bool {
	return c.From != c.To
}

type subscriber struct {
	ch   chan Change
	done chan struct{}
}

// Context holds the current actor and fans out changes to subscribers.
// The zero value is not usable; call New.
type Context struct {
	mu      sync.RWMutex
	current Actor

	notifyMu sync.Mutex
	subs     map[int]*subscriber
	next     int
}

func New() *Context {
	return &Context{current: Guest, subs: make(map[int]*subscriber)}
}

func (c *Context) Current() Actor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// SignIn makes userID the current actor. Signing in again as the current
// user is a no-op; switching users requires a SignOut first.
func (c *Context) SignIn(userID string) (Change, error) {
	userID = strings.TrimSpace(userID)
	if err := ValidateUserID(userID); err != nil {
		return Change{}, err
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	prev := c.current
	next := Authenticated(userID)
	if !prev.IsGuest() && prev != next {
		c.mu.Unlock()
		return Change{From: prev, To: prev}, ErrSwitchWithoutSignOut
	}
	c.current = next
	c.mu.Unlock()

	change := Change{From: prev, To: next}
	if change.Changed() {
		c.publish(change)
	}
	return change, nil
}

// ValidateUserID rejects ids that cannot name a remote user path.
func ValidateUserID(userID string) error {
	if userID == "" || userID == model.GuestID || strings.Contains(userID, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return nil
}

// SignOut returns to the guest. The signed-out user's local rows are kept.
func (c *Context) SignOut() Change {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	prev := c.current
	c.current = Guest
	c.mu.Unlock()

	change := Change{From: prev, To: Guest}
	if change.Changed() {
		c.publish(change)
	}
	return change
}

// subscriberBuffer is how many undelivered changes a subscriber may lag behind.
const subscriberBuffer = 16

// Subscribe returns a channel of future changes and a func that cancels the
// subscription. Changes are delivered in order and never block SignIn or
// SignOut; a subscriber more than subscriberBuffer changes behind loses the
// oldest ones, so the last change it reads is always the latest.
func (c *Context) Subscribe() (<-chan Change, func()) {
	sub := &subscriber{ch: make(chan Change, subscriberBuffer), done: make(chan struct{})}

	c.notifyMu.Lock()
	id := c.next
	c.next++
	c.subs[id] = sub
	c.notifyMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(sub.done)
			c.notifyMu.Lock()
			delete(c.subs, id)
			close(sub.ch)
			c.notifyMu.Unlock()
		})
	}
	return sub.ch, cancel
}

// publish must be called with notifyMu held.
func (c *Context) publish(change Change) {
	for _, sub := range c.subs {
		sub.offer(change)
	}
}

// offer enqueues change, evicting the oldest queued change while the buffer
// is full.
func (s *subscriber) offer(change Change) {
	for {
		select {
		case <-s.done:
			return
		case s.ch <- change:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
