// Package endpoint runs the chunk codec over TCP connections.
//
// Accepted connections become server side codec connections for the
// configured channel.EndpointConfig. Dialed connections become client side
// connections for the channel.Config passed to Dial. Received bytes go to
// the chunks.Manager and the resulting events to its queue, which Run hands
// to an events.Router.
package endpoint

import (
	"context"
	"net"
	"sync"

	"github.com/pion/logging"
	"github.com/pkg/errors"

	"github.com/backkem/uasc/pkg/channel"
	"github.com/backkem/uasc/pkg/chunks"
	"github.com/backkem/uasc/pkg/connection"
	"github.com/backkem/uasc/pkg/events"
	"github.com/backkem/uasc/pkg/transport"
)

// ErrUnknownConnection is returned for ids the endpoint does not own.
var ErrUnknownConnection = errors.New("endpoint: unknown connection")

// Config configures an Endpoint.
type Config struct {
	// Listener or ListenAddr select where to accept connections. With
	// neither the endpoint only dials and takes connections through Add.
	Listener   net.Listener
	ListenAddr string

	// Endpoint describes the security offered to accepted connections.
	// Required to accept connections.
	Endpoint *channel.EndpointConfig

	// Chunks is the codec. If nil, one is created from ChunksConfig.
	Chunks       *chunks.Manager
	ChunksConfig chunks.Config

	// ReceiveBufferSize and SendBufferSize are the negotiated buffer sizes
	// for new connections. Zero selects the chunks defaults.
	ReceiveBufferSize uint32
	SendBufferSize    uint32

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// binding ties a transport connection to its codec connection. mu
// serializes codec calls for the connection.
type binding struct {
	id   connection.ID
	conn *transport.Conn
	mu   sync.Mutex
}

// Endpoint owns a TCP transport and the codec state of its connections.
type Endpoint struct {
	tcp      *transport.TCP
	chunks   *chunks.Manager
	endpoint *channel.EndpointConfig
	recvSize uint32
	sendSize uint32
	log      logging.LeveledLogger

	mu     sync.RWMutex
	byConn map[*transport.Conn]*binding
	byID   map[connection.ID]*binding

	// dialMu serializes Dial and Add so OnConnect can pick up the client
	// configuration of the connection being created.
	dialMu  sync.Mutex
	dialCfg *channel.Config
}

// New creates an Endpoint. Call Start to accept connections.
func New(config Config) (*Endpoint, error) {
	e := &Endpoint{
		chunks:   config.Chunks,
		endpoint: config.Endpoint,
		recvSize: config.ReceiveBufferSize,
		sendSize: config.SendBufferSize,
		byConn:   make(map[*transport.Conn]*binding),
		byID:     make(map[connection.ID]*binding),
	}
	if e.chunks == nil {
		cc := config.ChunksConfig
		if cc.LoggerFactory == nil {
			cc.LoggerFactory = config.LoggerFactory
		}
		e.chunks = chunks.NewManager(cc)
	}
	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("uasc-endpoint")
	}

	tcp, err := transport.NewTCP(transport.TCPConfig{
		Listener:       config.Listener,
		ListenAddr:     config.ListenAddr,
		Handler:        e,
		ReadBufferSize: int(maxUint32(e.recvSize, chunks.DefaultReceiveBufferSize)),
		LoggerFactory:  config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	e.tcp = tcp
	return e, nil
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// Start begins accepting connections.
func (e *Endpoint) Start() error {
	return e.tcp.Start()
}

// Stop closes every connection and the listener, then closes the event
// queue so Run returns.
func (e *Endpoint) Stop() error {
	err := e.tcp.Stop()
	e.chunks.Events().Close()
	return err
}

// Addr returns the listener address, or nil.
func (e *Endpoint) Addr() net.Addr {
	return e.tcp.Addr()
}

// Chunks returns the codec.
func (e *Endpoint) Chunks() *chunks.Manager {
	return e.chunks
}

// Events returns the event queue.
func (e *Endpoint) Events() *events.Queue {
	return e.chunks.Events()
}

// Run routes events until ctx is done or the endpoint stops.
func (e *Endpoint) Run(ctx context.Context, r *events.Router) error {
	return events.Dispatch(ctx, e.chunks.Events(), r)
}

// Dial connects to a server and registers a client side codec connection
// configured with cfg.
func (e *Endpoint) Dial(ctx context.Context, addr string, cfg *channel.Config) (connection.ID, error) {
	if cfg == nil {
		return connection.ID{}, chunks.ErrNotConfigured
	}
	e.dialMu.Lock()
	defer e.dialMu.Unlock()

	e.dialCfg = cfg
	defer func() { e.dialCfg = nil }()

	c, err := e.tcp.Dial(ctx, addr)
	if err != nil {
		return connection.ID{}, err
	}
	return e.idOf(c)
}

// Add takes ownership of an established connection. A nil cfg registers
// it as a server side connection, otherwise as a client one.
func (e *Endpoint) Add(nc net.Conn, cfg *channel.Config) (connection.ID, error) {
	e.dialMu.Lock()
	defer e.dialMu.Unlock()

	e.dialCfg = cfg
	defer func() { e.dialCfg = nil }()

	c, err := e.tcp.Add(nc, cfg != nil)
	if err != nil {
		return connection.ID{}, err
	}
	return e.idOf(c)
}

func (e *Endpoint) idOf(c *transport.Conn) (connection.ID, error) {
	e.mu.RLock()
	b, ok := e.byConn[c]
	e.mu.RUnlock()
	if !ok {
		// Closed before we got to look.
		return connection.ID{}, transport.ErrClosed
	}
	return b.id, nil
}

// Send encodes a message for connection id and writes it.
func (e *Endpoint) Send(id connection.ID, req chunks.SendRequest) error {
	b, err := e.binding(id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	out, err := e.chunks.Send(id, req)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.conn.Write(out.Bytes())
}

// Do runs fn with the codec connection of id while no message of that
// connection is processed. Channel owners use it to install tokens and
// configurations.
func (e *Endpoint) Do(id connection.ID, fn func(c *chunks.Connection) error) error {
	b, err := e.binding(id)
	if err != nil {
		return err
	}
	c, err := e.chunks.Connection(id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(c)
}

// Configure sets the channel configuration of connection id.
func (e *Endpoint) Configure(id connection.ID, cfg *channel.Config) error {
	b, err := e.binding(id)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return e.chunks.Configure(id, cfg)
}

// Close closes connection id. Its codec state is released once the read
// loop has ended.
func (e *Endpoint) Close(id connection.ID) error {
	b, err := e.binding(id)
	if err != nil {
		return err
	}
	return b.conn.Close()
}

// Len returns the number of connections.
func (e *Endpoint) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byID)
}

func (e *Endpoint) binding(id connection.ID) (*binding, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.byID[id]
	if !ok {
		return nil, ErrUnknownConnection
	}
	return b, nil
}

// OnConnect implements transport.Handler.
func (e *Endpoint) OnConnect(c *transport.Conn) error {
	cc := chunks.ConnectionConfig{
		IsServer:          !c.Outbound(),
		Endpoint:          e.endpoint,
		ReceiveBufferSize: e.recvSize,
		SendBufferSize:    e.sendSize,
	}
	if c.Outbound() {
		if e.dialCfg == nil {
			return chunks.ErrNotConfigured
		}
		cc.Channel = e.dialCfg
	} else if e.endpoint == nil {
		return errors.New("endpoint: no endpoint configuration to accept connections")
	}

	id, err := e.chunks.AddConnection(cc)
	if err != nil {
		return err
	}

	b := &binding{id: id, conn: c}
	e.mu.Lock()
	e.byConn[c] = b
	e.byID[id] = b
	e.mu.Unlock()

	if e.log != nil {
		e.log.Debugf("conn %s: %s bound to %s", id, c.RemoteAddr(), role(cc.IsServer))
	}
	return nil
}

// OnData implements transport.Handler.
func (e *Endpoint) OnData(c *transport.Conn, data []byte) {
	e.mu.RLock()
	b, ok := e.byConn[c]
	e.mu.RUnlock()
	if !ok {
		return
	}

	b.mu.Lock()
	err := e.chunks.OnReceive(b.id, data)
	b.mu.Unlock()
	if err != nil && e.log != nil {
		e.log.Warnf("conn %s: %v", b.id, err)
	}
}

// OnClose implements transport.Handler.
func (e *Endpoint) OnClose(c *transport.Conn, err error) {
	e.mu.Lock()
	b, ok := e.byConn[c]
	if ok {
		delete(e.byConn, c)
		delete(e.byID, b.id)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	b.mu.Lock()
	rerr := e.chunks.RemoveConnection(b.id)
	b.mu.Unlock()

	if e.log != nil {
		if err != nil {
			e.log.Infof("conn %s: closed: %v", b.id, err)
		} else {
			e.log.Debugf("conn %s: closed", b.id)
		}
		if rerr != nil {
			e.log.Warnf("conn %s: %v", b.id, rerr)
		}
	}
}

func role(isServer bool) string {
	if isServer {
		return "server"
	}
	return "client"
}

var _ transport.Handler = (*Endpoint)(nil)
