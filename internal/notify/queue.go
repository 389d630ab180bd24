// Package notify is the process-wide notification queue. Producers
// anywhere in the application enqueue messages; consumers read the pending
// list, with soft-login confirmation requests intercepted out of the
// generic stream by tag before ordinary display.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mverhagen/memberhub/internal/model"
)

// Severity classifies a message for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Message is one pending notification. It is owned by the queue from
// Enqueue until Clear.
type Message struct {
	// ID uniquely identifies the message; Enqueue assigns one if empty.
	ID string

	// Title and Body are the displayed content.
	Title string
	Body  string

	// Severity selects the display treatment.
	Severity Severity

	// Tags carry routing markers. A message tagged with a soft-login
	// marker is diverted to the confirmation dialog instead of a toast.
	Tags []string

	// AutoClose is how long a toast stays up; 0 means sticky.
	AutoClose time.Duration

	// CreatedAt is when the message was enqueued.
	CreatedAt time.Time
}

// softLoginTags is the reserved tag set recognized by the interception
// scan. A message carrying any of these is a soft-login confirmation
// request, not an ordinary toast.
var softLoginTags = map[string]struct{}{
	"soft-login":       {},
	"soft-login-modal": {},
}

// HasSoftLoginTag reports whether any of the tags is a reserved
// soft-login marker. Non-marker tags (emails, fragments) are ignored.
func HasSoftLoginTag(tags []string) bool {
	for _, tag := range tags {
		if _, ok := softLoginTags[tag]; ok {
			return true
		}
	}
	return false
}

// Queue is the process-wide pending message list. It lives for the
// process lifetime and is cleared entry by entry as messages are
// dismissed or auto-close.
type Queue struct {
	mu       sync.Mutex
	messages []Message
	updates  chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{updates: make(chan struct{}, 1)}
}

// Enqueue appends a message and returns its id, assigning a fresh uuid
// and timestamp when absent.
func (q *Queue) Enqueue(msg Message) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	q.messages = append(q.messages, msg)
	q.notify()
	return msg.ID
}

// Pending returns a copy of the queue in enqueue order.
func (q *Queue) Pending() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Message, len(q.messages))
	copy(out, q.messages)
	return out
}

// Clear removes the message with the given id. Both generic dismissal and
// the soft-login dialog go through this same path.
func (q *Queue) Clear(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, msg := range q.messages {
		if msg.ID == id {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			q.notify()
			return
		}
	}
}

// Updates returns a coalescing channel signaled on every queue change.
func (q *Queue) Updates() <-chan struct{} {
	return q.updates
}

// Partition runs the interception scan: one pass in enqueue order, the
// first message carrying a soft-login marker tag is extracted as "the"
// soft-login message, everything untagged is the generic bucket. Later
// tagged duplicates belong to neither: they stay queued unseen until the
// first is cleared, at which point the next one surfaces (FIFO by enqueue
// order).
func (q *Queue) Partition() (*Message, []Message) {
	pending := q.Pending()

	var intercepted *Message
	generic := make([]Message, 0, len(pending))

	for i := range pending {
		if HasSoftLoginTag(pending[i].Tags) {
			if intercepted == nil {
				m := pending[i]
				intercepted = &m
			}
			continue
		}
		generic = append(generic, pending[i])
	}

	return intercepted, generic
}

// notify wakes the consumer without blocking. Callers must hold q.mu.
func (q *Queue) notify() {
	select {
	case q.updates <- struct{}{}:
	default:
	}
}

// ShouldConfirm reports whether the intercepted soft-login message should
// open the confirmation dialog: only with a known user present. With no
// user the message stays swallowed (no dialog, no toast) until cleared.
func ShouldConfirm(msg *Message, user *model.User) bool {
	return msg != nil && user != nil
}
