package transport

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// processWait is the pause between ticks while a reader catches up.
const processWait = 100 * time.Microsecond

// Pipe is an in-memory connection pair for tests, built on pion's
// test.Bridge. Every Write arrives as one read on the other end, so the
// receiver sees chunk-aligned reads unless a test splits its writes.
//
// Pipe delivers queued writes from a background goroutine. A pipe created
// with NewManualPipe only delivers on Tick or Process.
type Pipe struct {
	bridge *test.Bridge
	conn0  *pipeConn
	conn1  *pipeConn

	mu      sync.Mutex
	closed  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewPipe creates a pipe that delivers every millisecond.
func NewPipe() *Pipe {
	p := NewManualPipe()
	p.running = true
	p.wg.Add(1)
	go p.autoProcess(time.Millisecond)
	return p
}

// NewManualPipe creates a pipe without background delivery.
func NewManualPipe() *Pipe {
	br := test.NewBridge()
	return &Pipe{
		bridge: br,
		conn0:  newPipeConn(br.GetConn0(), PipeAddr(0), PipeAddr(1)),
		conn1:  newPipeConn(br.GetConn1(), PipeAddr(1), PipeAddr(0)),
		stopCh: make(chan struct{}),
	}
}

func (p *Pipe) autoProcess(interval time.Duration) {
	defer p.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.bridge.Tick()
		}
	}
}

// Conn0 returns the first end of the pipe.
func (p *Pipe) Conn0() net.Conn { return p.conn0 }

// Conn1 returns the second end of the pipe.
func (p *Pipe) Conn1() net.Conn { return p.conn1 }

// Tick delivers at most one pending write in each direction and returns the
// number delivered.
func (p *Pipe) Tick() int { return p.bridge.Tick() }

// Process delivers all pending writes and returns the number delivered.
// Both ends must be read, or it does not return.
func (p *Pipe) Process() int {
	count := 0
	for {
		count += p.Tick()
		if p.bridge.Len(0) == 0 && p.bridge.Len(1) == 0 {
			return count
		}
		time.Sleep(processWait)
	}
}

// Close stops delivery and closes both ends.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.running {
		close(p.stopCh)
	}
	p.mu.Unlock()
	p.wg.Wait()

	err0 := p.conn0.Close()
	err1 := p.conn1.Close()
	// Closes the bridge read channels once the queues are empty, which
	// ends the pumps.
	p.bridge.Tick()
	if err0 != nil {
		return err0
	}
	return err1
}

// PipeAddr is the address of one end of a Pipe.
type PipeAddr int

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d", int(a)) }

// pipeConn gives the bridge ends stable addresses. Reads go through a pump
// goroutine so that Close always unblocks a pending Read.
type pipeConn struct {
	net.Conn
	local, remote PipeAddr

	reads   chan []byte
	pending []byte

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

func newPipeConn(nc net.Conn, local, remote PipeAddr) *pipeConn {
	c := &pipeConn{
		Conn:   nc,
		local:  local,
		remote: remote,
		reads:  make(chan []byte),
		done:   make(chan struct{}),
	}
	go c.pump()
	return c
}

func (c *pipeConn) pump() {
	defer close(c.reads)
	buf := make([]byte, 1<<17)
	for {
		n, err := c.Conn.Read(buf)
		if err != nil {
			return
		}
		select {
		case c.reads <- append([]byte(nil), buf[:n]...):
		case <-c.done:
			return
		}
	}
}

func (c *pipeConn) Read(b []byte) (int, error) {
	if len(c.pending) == 0 {
		select {
		case data, ok := <-c.reads:
			if !ok {
				return 0, io.EOF
			}
			c.pending = data
		case <-c.done:
			return 0, io.EOF
		}
	}
	n := copy(b, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *pipeConn) Write(b []byte) (int, error) {
	select {
	case <-c.done:
		return 0, io.ErrClosedPipe
	default:
	}
	return c.Conn.Write(b)
}

func (c *pipeConn) LocalAddr() net.Addr  { return c.local }
func (c *pipeConn) RemoteAddr() net.Addr { return c.remote }

func (c *pipeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.err = c.Conn.Close()
	})
	return c.err
}
