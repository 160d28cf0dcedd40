package channel

import (
	"math"

	"github.com/backkem/uasc/pkg/message"
)

const (
	// SequenceWrapWindow bounds the wrap-around of sequence numbers and
	// request ids: counters above math.MaxUint32-SequenceWrapWindow restart
	// at 1, and a receiver accepts any value below SequenceWrapWindow after
	// such a value.
	SequenceWrapWindow uint32 = 1024

	sequenceWrapThreshold = math.MaxUint32 - SequenceWrapWindow
)

// CheckReceivedSequenceNumber validates sn against the last received one.
// An opening message resets the counter.
func (c *SecurityContext) CheckReceivedSequenceNumber(opening bool, sn uint32) error {
	if opening {
		c.lastSNReceived = sn
		return nil
	}

	wrapped := c.lastSNReceived > sequenceWrapThreshold && sn < SequenceWrapWindow
	if sn != c.lastSNReceived+1 && !wrapped {
		return ErrSequenceNumber
	}
	c.lastSNReceived = sn
	return nil
}

// LastReceivedSequenceNumber returns the last accepted sequence number.
func (c *SecurityContext) LastReceivedSequenceNumber() uint32 {
	return c.lastSNReceived
}

// NextSequenceNumber returns the sequence number for the next sent chunk.
// It is never 0.
func (c *SecurityContext) NextSequenceNumber() uint32 {
	c.lastSNSent = nextCounter(c.lastSNSent)
	return c.lastSNSent
}

// NextRequestID allocates a client request id. It is never 0.
func (c *SecurityContext) NextRequestID() uint32 {
	c.lastRequestID = nextCounter(c.lastRequestID)
	return c.lastRequestID
}

func nextCounter(last uint32) uint32 {
	if last > sequenceWrapThreshold {
		return 1
	}
	return last + 1
}

// TrackRequest records a sent request that expects a response of type t.
func (c *SecurityContext) TrackRequest(id uint32, t message.MessageType) {
	c.pending[id] = t
}

// ResolveRequest matches a received response with its pending request and
// removes it. A type mismatch leaves the request pending.
func (c *SecurityContext) ResolveRequest(id uint32, t message.MessageType) error {
	want, ok := c.pending[id]
	if !ok {
		return ErrRequestUnknown
	}
	if want != t {
		return ErrRequestTypeMismatch
	}
	delete(c.pending, id)
	return nil
}

// PendingRequests returns the number of requests awaiting a response.
func (c *SecurityContext) PendingRequests() int {
	return len(c.pending)
}
