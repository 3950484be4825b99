package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

var _ Notifier = (*Recorder)(nil)

// Recorder is a synchronous Notifier that keeps every published payload. It
// backs tests and the CLI run mode, where nobody subscribes over HTTP.
type Recorder struct {
	mu   sync.Mutex
	got  []ProgressPayload
	subs map[*Subscription]struct{}
	next func(ProgressPayload)
}

func NewRecorder() *Recorder {
	return &Recorder{subs: map[*Subscription]struct{}{}}
}

// OnPublish registers a hook called inline with every payload.
func (r *Recorder) OnPublish(fn func(ProgressPayload)) {
	r.mu.Lock()
	r.next = fn
	r.mu.Unlock()
}

func (r *Recorder) Subscribe(key SubscriptionKey, cb func(ProgressPayload)) *Subscription {
	if !key.valid() || cb == nil {
		return nil
	}
	sub := &Subscription{ID: uuid.New(), Key: key, cb: cb}
	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()
	return sub
}

func (r *Recorder) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	delete(r.subs, sub)
	r.mu.Unlock()
}

func (r *Recorder) Publish(ctx context.Context, p ProgressPayload) {
	r.mu.Lock()
	r.got = append(r.got, p)
	hook := r.next
	var targets []func(ProgressPayload)
	for sub := range r.subs {
		if sub.Key == SessionKey(p.SessionID) || sub.Key == ProjectKey(p.ProjectID) {
			targets = append(targets, sub.cb)
		}
	}
	r.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	for _, cb := range targets {
		cb(p)
	}
}

// Payloads returns a copy of everything published so far.
func (r *Recorder) Payloads() []ProgressPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressPayload(nil), r.got...)
}

// Progress returns the progress values published for one session, in order.
func (r *Recorder) Progress(sessionID uuid.UUID) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, p := range r.got {
		if p.SessionID == sessionID {
			out = append(out, p.Progress)
		}
	}
	return out
}
