package events

import (
	"context"
	"errors"
)

// ErrNoHandler is returned when an event has no handler to go to.
var ErrNoHandler = errors.New("events: no handler for event")

// Handler consumes events of one subsystem.
type Handler interface {
	HandleEvent(e Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(e Event) error

// HandleEvent calls f(e).
func (f HandlerFunc) HandleEvent(e Event) error {
	return f(e)
}

// Router sends each event to the subsystem responsible for it.
type Router struct {
	// Transport receives HEL, ACK and ERR.
	Transport Handler

	// Channel receives OPN, CLO and MSG chunks.
	Channel Handler

	// Failures receives receive and send failures. When nil, failures go
	// to Channel.
	Failures Handler
}

// Route delivers e.
func (r *Router) Route(e Event) error {
	var h Handler
	switch e.Kind {
	case KindHel, KindAck, KindErr:
		h = r.Transport
	case KindOpn, KindClo, KindMsgChunk:
		h = r.Channel
	case KindReceiveFailure, KindSendFailure:
		h = r.Failures
		if h == nil {
			h = r.Channel
		}
	}
	if h == nil {
		return ErrNoHandler
	}
	return h.HandleEvent(e)
}

// Dispatch routes events from q until ctx is done, the queue is closed or a
// handler fails.
func Dispatch(ctx context.Context, q *Queue, r *Router) error {
	for {
		e, err := q.Wait(ctx)
		if err != nil {
			return err
		}
		if err := r.Route(e); err != nil {
			return err
		}
	}
}
