package transport

import (
	"net"
	"sync"
	"sync/atomic"
)

// DefaultReadBufferSize is the size of the buffer each read loop reads into.
const DefaultReadBufferSize = 65535

// Handler receives the events of the connections owned by a transport.
//
// OnData is called from the connection's read loop with the bytes of one
// read. The slice is reused for the next read so implementations must copy
// what they keep. OnClose is called once, after the read loop ends.
type Handler interface {
	OnConnect(c *Conn) error
	OnData(c *Conn, data []byte)
	OnClose(c *Conn, err error)
}

// Conn is a byte stream connection. Writes are serialized so whole chunks
// are never interleaved.
type Conn struct {
	conn     net.Conn
	outbound bool

	mu     sync.Mutex
	closed atomic.Bool

	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64
}

func newConn(nc net.Conn, outbound bool) *Conn {
	return &Conn{conn: nc, outbound: outbound}
}

// Write writes b in full.
func (c *Conn) Write(b []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(b) > 0 {
		n, err := c.conn.Write(b)
		c.bytesOut.Add(uint64(n))
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Close closes the underlying connection. The read loop then ends and the
// handler's OnClose runs.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

// Outbound reports whether the connection was dialed rather than accepted.
func (c *Conn) Outbound() bool { return c.outbound }

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// BytesIn returns the number of bytes read so far.
func (c *Conn) BytesIn() uint64 { return c.bytesIn.Load() }

// BytesOut returns the number of bytes written so far.
func (c *Conn) BytesOut() uint64 { return c.bytesOut.Load() }

// IsClosed reports whether Close was called.
func (c *Conn) IsClosed() bool { return c.closed.Load() }
