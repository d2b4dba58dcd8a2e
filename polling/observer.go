package polling

import (
	"sync"
	"time"
)

// StatusExhausted is reported when a session used every attempt without a
// terminal state.
const StatusExhausted = "exhausted"

// Observer receives status notifications from polling sessions. Notify is
// called from the session goroutine and must not block for long.
type Observer interface {
	Notify(status, jobKey, message string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(status, jobKey, message string)

// Notify calls f.
func (f ObserverFunc) Notify(status, jobKey, message string) {
	f(status, jobKey, message)
}

// Observers fans a notification out to every non-nil observer in order.
func Observers(observers ...Observer) Observer {
	var list []Observer
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(status, jobKey, message string) {
		for _, o := range list {
			o.Notify(status, jobKey, message)
		}
	})
}

// StatusUpdate is one notification delivered through a ChannelObserver.
type StatusUpdate struct {
	Status  string
	JobKey  string
	Message string
	At      time.Time
}

// ChannelObserver publishes notifications on a buffered channel. When the
// buffer is full the update is dropped.
type ChannelObserver struct {
	mu      sync.Mutex
	ch      chan StatusUpdate
	closed  bool
	dropped int
}

// NewChannelObserver creates an observer with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelObserver{ch: make(chan StatusUpdate, buffer)}
}

// Updates returns the receive side of the channel.
func (o *ChannelObserver) Updates() <-chan StatusUpdate {
	return o.ch
}

// Notify implements Observer.
func (o *ChannelObserver) Notify(status, jobKey, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.ch <- StatusUpdate{Status: status, JobKey: jobKey, Message: message, At: time.Now()}:
	default:
		o.dropped++
	}
}

// Dropped returns how many updates were discarded on a full buffer.
func (o *ChannelObserver) Dropped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// Close closes the channel. Later notifications are ignored.
func (o *ChannelObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}
