package transport

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/pion/logging"
	"github.com/pkg/errors"
)

// TCP carries secure conversation chunks over TCP. It accepts connections
// on a listener, dials outbound ones, and runs one read loop per connection
// that hands raw bytes to the Handler. Chunk boundaries are recovered by the
// receiver from the message header, so no extra framing is added.
type TCP struct {
	listener       net.Listener
	handler        Handler
	readBufferSize int
	closeCh        chan struct{}
	wg             sync.WaitGroup
	log            logging.LeveledLogger

	connsMu sync.RWMutex
	conns   map[*Conn]struct{}

	mu      sync.RWMutex
	started bool
	closed  bool
}

// TCPConfig configures the TCP transport.
type TCPConfig struct {
	// Listener is an optional pre-existing Listener to use.
	// If nil and ListenAddr is set, a new listener is created.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g., ":4840").
	// Ignored if Listener is provided. A transport with neither only dials.
	ListenAddr string

	// Handler receives connection events. Required.
	Handler Handler

	// ReadBufferSize is the size of each read. Defaults to DefaultReadBufferSize.
	ReadBufferSize int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewTCP creates a new TCP transport with the given configuration.
func NewTCP(config TCPConfig) (*TCP, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}

	t := &TCP{
		listener:       config.Listener,
		handler:        config.Handler,
		readBufferSize: config.ReadBufferSize,
		closeCh:        make(chan struct{}),
		conns:          make(map[*Conn]struct{}),
	}
	if t.readBufferSize <= 0 {
		t.readBufferSize = DefaultReadBufferSize
	}
	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("transport-tcp")
	}

	if t.listener == nil && config.ListenAddr != "" {
		listener, err := net.Listen("tcp", config.ListenAddr)
		if err != nil {
			return nil, errors.Wrapf(err, "listen on %s", config.ListenAddr)
		}
		t.listener = listener
	}

	return t, nil
}

// Start begins accepting connections.
func (t *TCP) Start() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	if t.listener == nil {
		return nil
	}
	if t.log != nil {
		t.log.Infof("listening on %s", t.listener.Addr())
	}

	t.wg.Add(1)
	go t.acceptLoop()
	return nil
}

// Stop closes the listener and all connections, then waits for the read
// loops to finish.
func (t *TCP) Stop() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.closed = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Info("stopping TCP transport")
	}

	close(t.closeCh)
	if t.listener != nil {
		t.listener.Close()
	}

	t.connsMu.RLock()
	for c := range t.conns {
		c.Close()
	}
	t.connsMu.RUnlock()

	t.wg.Wait()
	return nil
}

// Dial opens an outbound connection to addr and starts its read loop.
func (t *TCP) Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	c, err := t.add(nc, true)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// Add takes ownership of an established connection, e.g. one end of a Pipe,
// and starts its read loop. outbound selects the role reported by the Conn.
func (t *TCP) Add(nc net.Conn, outbound bool) (*Conn, error) {
	return t.add(nc, outbound)
}

// Addr returns the listener address, or nil for a dial-only transport.
func (t *TCP) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Len returns the number of open connections.
func (t *TCP) Len() int {
	t.connsMu.RLock()
	defer t.connsMu.RUnlock()
	return len(t.conns)
}

func (t *TCP) acceptLoop() {
	defer t.wg.Done()

	for {
		nc, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closeCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if t.log != nil {
				t.log.Warnf("accept: %v", err)
			}
			continue
		}

		if _, err := t.add(nc, false); err != nil {
			if t.log != nil {
				t.log.Debugf("dropping connection from %s: %v", nc.RemoteAddr(), err)
			}
			nc.Close()
		}
	}
}

func (t *TCP) add(nc net.Conn, outbound bool) (*Conn, error) {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	c := newConn(nc, outbound)
	if err := t.handler.OnConnect(c); err != nil {
		return nil, errors.Wrap(ErrRejected, err.Error())
	}

	t.connsMu.Lock()
	t.conns[c] = struct{}{}
	t.connsMu.Unlock()

	if t.log != nil {
		t.log.Debugf("connection %s -> %s open", nc.LocalAddr(), nc.RemoteAddr())
	}

	t.wg.Add(1)
	go t.readLoop(c)
	return c, nil
}

// readLoop feeds the handler until the connection fails or is closed.
func (t *TCP) readLoop(c *Conn) {
	defer t.wg.Done()

	buf := make([]byte, t.readBufferSize)
	var readErr error
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.bytesIn.Add(uint64(n))
			t.handler.OnData(c, buf[:n])
		}
		if err != nil {
			if err != io.EOF && !c.IsClosed() {
				readErr = err
			}
			break
		}
	}

	c.Close()
	t.connsMu.Lock()
	delete(t.conns, c)
	t.connsMu.Unlock()

	if t.log != nil {
		if readErr != nil {
			t.log.Debugf("connection %s closed: %v", c.RemoteAddr(), readErr)
		} else {
			t.log.Debugf("connection %s closed", c.RemoteAddr())
		}
	}
	t.handler.OnClose(c, readErr)
}
