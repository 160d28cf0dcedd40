package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/backkem/uasc/pkg/message"
)

func TestQueueOrdering(t *testing.T) {
	q := NewQueue()

	q.Enqueue(Event{Kind: KindHel, RequestID: 1})
	q.Enqueue(Event{Kind: KindMsgChunk, RequestID: 2})
	q.Enqueue(Event{Kind: KindClo, RequestID: 3})
	q.Enqueue(Event{Kind: KindMsgChunk, RequestID: 4})
	q.Enqueue(Event{Kind: KindReceiveFailure, RequestID: 5})

	want := []uint32{5, 3, 1, 2, 4}
	if q.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", q.Len(), len(want))
	}
	for i, id := range want {
		e, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() #%d returned nothing", i)
		}
		if e.RequestID != id {
			t.Errorf("Pop() #%d = %d, want %d", i, e.RequestID, id)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue returned an event")
	}
}

func TestQueueWait(t *testing.T) {
	q := NewQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(Event{Kind: KindAck})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, err := q.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if e.Kind != KindAck {
		t.Errorf("Wait() = %v, want %v", e.Kind, KindAck)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	if _, err := q.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() on empty queue error = %v, want %v", err, context.DeadlineExceeded)
	}

	q.Push(Event{Kind: KindHel})
	q.Close()
	if e, err := q.Wait(context.Background()); err != nil || e.Kind != KindHel {
		t.Errorf("Wait() after Close = %v, %v, want queued event", e.Kind, err)
	}
	if _, err := q.Wait(context.Background()); err != ErrQueueClosed {
		t.Errorf("Wait() on closed queue error = %v, want %v", err, ErrQueueClosed)
	}
}

func TestKindForMessage(t *testing.T) {
	tests := []struct {
		t    message.MessageType
		want Kind
	}{
		{message.MessageTypeHello, KindHel},
		{message.MessageTypeAcknowledge, KindAck},
		{message.MessageTypeError, KindErr},
		{message.MessageTypeOpen, KindOpn},
		{message.MessageTypeClose, KindClo},
		{message.MessageTypeMessage, KindMsgChunk},
		{message.MessageTypeInvalid, KindInvalid},
	}
	for _, tt := range tests {
		if got := KindForMessage(tt.t); got != tt.want {
			t.Errorf("KindForMessage(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestRouter(t *testing.T) {
	var transport, channel, failures []Kind
	r := &Router{
		Transport: HandlerFunc(func(e Event) error { transport = append(transport, e.Kind); return nil }),
		Channel:   HandlerFunc(func(e Event) error { channel = append(channel, e.Kind); return nil }),
		Failures:  HandlerFunc(func(e Event) error { failures = append(failures, e.Kind); return nil }),
	}

	for _, k := range []Kind{KindHel, KindOpn, KindMsgChunk, KindReceiveFailure, KindErr, KindSendFailure, KindClo} {
		if err := r.Route(Event{Kind: k}); err != nil {
			t.Errorf("Route(%v) error = %v", k, err)
		}
	}
	if len(transport) != 2 || len(channel) != 3 || len(failures) != 2 {
		t.Errorf("routed transport=%v channel=%v failures=%v", transport, channel, failures)
	}

	if err := r.Route(Event{Kind: KindInvalid}); err != ErrNoHandler {
		t.Errorf("Route(Invalid) error = %v, want %v", err, ErrNoHandler)
	}
}

func TestDispatch(t *testing.T) {
	q := NewQueue()
	stop := errors.New("stop")

	var got []Kind
	r := &Router{
		Channel: HandlerFunc(func(e Event) error {
			got = append(got, e.Kind)
			if e.Kind == KindClo {
				return stop
			}
			return nil
		}),
	}

	q.Push(Event{Kind: KindOpn})
	q.Push(Event{Kind: KindMsgChunk})
	q.Push(Event{Kind: KindClo})
	q.Push(Event{Kind: KindMsgChunk})

	if err := Dispatch(context.Background(), q, r); err != stop {
		t.Errorf("Dispatch() error = %v, want %v", err, stop)
	}
	if len(got) != 3 || q.Len() != 1 {
		t.Errorf("Dispatch() handled %v, %d left", got, q.Len())
	}
}
