package notify

import (
	"context"
	"fmt"
)

// Notifier delivers operator messages. Delivery is best effort: failures are
// logged by the implementation and reported as false, never as an error.
type Notifier interface {
	Notify(ctx context.Context, msg string) bool
}

// Notifyf formats and sends msg through n.
func Notifyf(ctx context.Context, n Notifier, format string, args ...interface{}) bool {
	if n == nil {
		return false
	}
	return n.Notify(ctx, fmt.Sprintf(format, args...))
}

type Noop struct{}

func (Noop) Notify(context.Context, string) bool { return true }

// Multi sends to every sink and succeeds when at least one did.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg string) bool {
	ok := false
	for _, n := range m {
		if n == nil {
			continue
		}
		if n.Notify(ctx, msg) {
			ok = true
		}
	}
	return ok
}

// Recorder keeps messages in memory. Used by the status API for the recent
// notification list and by tests.
type Recorder struct {
	ring *ring
}

func NewRecorder(capacity int) *Recorder {
	return &Recorder{ring: newRing(capacity)}
}

func (r *Recorder) Notify(_ context.Context, msg string) bool {
	r.ring.push(msg)
	return true
}

// Messages returns the retained messages, oldest first.
func (r *Recorder) Messages() []string {
	return r.ring.items()
}
