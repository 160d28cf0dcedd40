package chunks

import (
	"github.com/pkg/errors"

	"github.com/backkem/uasc/pkg/connection"
	"github.com/backkem/uasc/pkg/events"
	"github.com/backkem/uasc/pkg/message"
)

// OnReceive feeds bytes read from the transport of connection id into the
// chunk assembler. The bytes may cut messages anywhere; every complete and
// valid message becomes one event.
//
// The first invalid message produces a receive failure event ahead of the
// other queued events and the rest of data is dropped. The returned error is
// only set when id is unknown.
func (m *Manager) OnReceive(id connection.ID, data []byte) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.ReceivedBytes.Add(float64(len(data)))
	}

	for len(data) > 0 {
		n, err := m.feed(c, data)
		if err != nil {
			m.receiveFailed(c, err)
			return nil
		}
		data = data[n:]
	}
	return nil
}

// feed consumes bytes of the chunk being assembled and processes it once
// complete. It returns the number of bytes used.
func (m *Manager) feed(c *Connection, data []byte) (int, error) {
	ctx := &c.chunk
	if ctx.buffer == nil {
		ctx.buffer = message.NewBuffer(int(c.receiveBufferSize))
	}

	used := 0
	if !ctx.headerComplete() {
		take := message.HeaderSize - ctx.buffer.Len()
		if take > len(data) {
			take = len(data)
		}
		if err := ctx.buffer.Write(data[:take]); err != nil {
			return used, statusError(message.BadTCPMessageTooLarge, err)
		}
		used += take
		if !ctx.headerComplete() {
			return used, nil
		}

		h, err := message.DecodeHeader(ctx.buffer.Bytes())
		if err != nil {
			return used, statusError(message.BadTCPMessageTypeInvalid, err)
		}
		if h.Size > c.receiveBufferSize {
			return used, statusErrorf(message.BadTCPMessageTooLarge, "%s of %d bytes exceeds receive buffer of %d",
				h.Type, h.Size, c.receiveBufferSize)
		}
		ctx.header = h
	}

	held := ctx.buffer.Len() - message.HeaderSize
	total := int(ctx.header.Size) - message.HeaderSize
	if held >= total {
		return used, statusErrorf(message.BadTCPInternalError, "chunk already holds %d of %d payload bytes", held, total)
	}
	take := total - held
	if take > len(data)-used {
		take = len(data) - used
	}
	if err := ctx.buffer.Write(data[used : used+take]); err != nil {
		return used, statusError(message.BadTCPMessageTooLarge, err)
	}
	used += take

	if ctx.buffer.Len() < int(ctx.header.Size) {
		return used, nil
	}

	e, err := m.processChunk(c)
	if err != nil {
		return used, err
	}
	ctx.reset()
	m.deliver(e)
	return used, nil
}

// processChunk runs the security pipeline over a complete chunk and builds
// the event for it.
func (m *Manager) processChunk(c *Connection) (events.Event, error) {
	h := c.chunk.header
	e := events.Event{
		Kind:         events.KindForMessage(h.Type),
		ConnectionID: c.id,
		Chunk:        h.Chunk,
	}

	if err := c.checkRole(h); err != nil {
		return e, err
	}
	if err := c.chunk.buffer.SetPosition(message.HeaderSize); err != nil {
		return e, statusError(message.BadTCPInternalError, err)
	}
	if h.Type.IsTCPOnly() {
		e.Buffer = c.chunk.buffer
		return e, nil
	}

	requestID, err := m.processSecureChunk(c, h.Type)
	if err != nil {
		return e, err
	}
	e.Buffer = c.chunk.buffer
	e.RequestID = requestID
	return e, nil
}

// processSecureChunk checks the headers of an OPN, MSG or CLO, removes its
// protection and leaves the buffer positioned at the body.
func (m *Manager) processSecureChunk(c *Connection, t message.MessageType) (uint32, error) {
	opening := t == message.MessageTypeOpen
	symmetric := t.IsSymmetric()

	channelID, err := c.chunk.buffer.ReadUint32()
	if err != nil {
		return 0, statusError(message.BadDecodingError, errors.Wrap(err, "secure channel id"))
	}
	if err := c.checkChannelID(t, channelID); err != nil {
		return 0, err
	}

	var decrypt, verify, usePrevious bool
	if opening {
		active, err := m.checkAsymmetricHeader(c)
		if err != nil {
			if !c.security.Established() {
				return 0, statusError(message.BadSecurityChecksFailed, err)
			}
			return 0, err
		}
		decrypt, verify = active, active
	} else {
		if usePrevious, err = m.checkSymmetricHeader(c); err != nil {
			return 0, err
		}
		decrypt = IsEncrypted(c.config.SecurityMode, false)
		verify = IsSigned(c.config.SecurityMode)
	}

	if decrypt || verify {
		if c.crypto == nil {
			return 0, statusError(message.BadSecurityChecksFailed, ErrNoCrypto)
		}
		if err := c.decryptAndVerify(symmetric, usePrevious, decrypt, verify); err != nil {
			return 0, err
		}
	}

	var seq message.SequenceHeader
	if err := seq.Decode(c.chunk.buffer); err != nil {
		return 0, statusError(message.BadDecodingError, errors.Wrap(err, "sequence header"))
	}
	if err := c.security.CheckReceivedSequenceNumber(opening, seq.SequenceNumber); err != nil {
		return 0, statusError(message.BadSecurityChecksFailed, errors.Wrapf(err, "sequence number %d", seq.SequenceNumber))
	}
	if !c.isServer {
		if err := c.security.ResolveRequest(seq.RequestID, t); err != nil {
			return 0, statusError(message.BadSecurityChecksFailed, errors.Wrapf(err, "request %d", seq.RequestID))
		}
	}

	if decrypt {
		extra, err := c.receivingExtraPadding(symmetric)
		if err != nil {
			return 0, statusError(message.BadDecodingError, err)
		}
		if err := removePadding(c.chunk.buffer, extra); err != nil {
			return 0, err
		}
	}
	return seq.RequestID, nil
}

// receiveFailed reports err ahead of every queued event and drops the chunk
// being assembled.
func (m *Manager) receiveFailed(c *Connection, err error) {
	status := StatusOf(err)
	if m.log != nil {
		m.log.Warnf("conn %s: dropping received %s: %v", c.id, c.chunk.header.Type, err)
	}
	if m.metrics != nil {
		m.metrics.Failures.WithLabelValues(directionReceive, message.StatusName(status)).Inc()
	}
	c.chunk.reset()
	m.queue.PushNext(events.Event{
		Kind:         events.KindReceiveFailure,
		ConnectionID: c.id,
		Status:       status,
		Err:          err,
	})
}

func (m *Manager) deliver(e events.Event) {
	if m.log != nil {
		m.log.Tracef("received %s", e)
	}
	if m.metrics != nil {
		m.metrics.Received.WithLabelValues(e.Kind.String()).Inc()
	}
	m.queue.Enqueue(e)
}
