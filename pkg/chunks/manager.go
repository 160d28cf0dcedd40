// Package chunks is the secure conversation codec of an OPC UA stack.
//
// A Manager owns the codec state of every transport connection. Bytes read
// from a connection go through OnReceive, which reassembles chunks, checks
// their headers, decrypts and verifies them and queues one event per valid
// message. Send runs the opposite pipeline and returns the bytes to write.
//
// Opening, renewing and closing channels is left to the owner of the
// Manager, which installs tokens and configurations through Connection.
package chunks

import (
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/uasc/pkg/channel"
	"github.com/backkem/uasc/pkg/connection"
	"github.com/backkem/uasc/pkg/crypto"
	"github.com/backkem/uasc/pkg/events"
)

// CryptoFactory returns the implementation of a security policy.
type CryptoFactory func(policyURI string) (crypto.Service, error)

// Config configures a Manager.
type Config struct {
	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// Queue receives the events. If nil, the Manager creates one.
	Queue *events.Queue

	// Metrics is optional.
	Metrics *Metrics

	// Clock returns the current time for token lifetimes.
	// Default: time.Now
	Clock func() time.Time

	// MaxConnections limits the number of connections.
	// Default: connection.DefaultMaxConnections
	MaxConnections int

	// CryptoFactory resolves security policy URIs.
	// Default: crypto.NewProvider
	CryptoFactory CryptoFactory
}

// Manager is the chunk codec for a set of connections.
//
// Calls for different connections may run concurrently. Calls for the same
// connection must be serialized.
type Manager struct {
	mu    sync.RWMutex
	conns *connection.Table[*Connection]

	queue     *events.Queue
	log       logging.LeveledLogger
	metrics   *Metrics
	clock     func() time.Time
	newCrypto CryptoFactory
}

// NewManager creates a Manager.
func NewManager(config Config) *Manager {
	m := &Manager{
		conns:     connection.NewTable[*Connection](config.MaxConnections),
		queue:     config.Queue,
		metrics:   config.Metrics,
		clock:     config.Clock,
		newCrypto: config.CryptoFactory,
	}
	if m.queue == nil {
		m.queue = events.NewQueue()
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.newCrypto == nil {
		m.newCrypto = func(uri string) (crypto.Service, error) {
			return crypto.NewProvider(uri)
		}
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("uasc-chunks")
	}
	return m
}

// Events returns the queue events are delivered to.
func (m *Manager) Events() *events.Queue {
	return m.queue
}

// AddConnection registers a connection and returns its id.
func (m *Manager) AddConnection(config ConnectionConfig) (connection.ID, error) {
	c := &Connection{
		isServer:          config.IsServer,
		endpoint:          config.Endpoint,
		security:          channel.NewSecurityContext(config.IsServer),
		receiveBufferSize: config.ReceiveBufferSize,
		sendBufferSize:    config.SendBufferSize,
	}
	if c.receiveBufferSize == 0 {
		c.receiveBufferSize = DefaultReceiveBufferSize
	}
	if c.sendBufferSize == 0 {
		c.sendBufferSize = DefaultSendBufferSize
	}
	if c.receiveBufferSize < MinBufferSize || c.sendBufferSize < MinBufferSize {
		return connection.ID{}, ErrBufferTooSmall
	}
	if !config.IsServer && config.Channel == nil {
		return connection.ID{}, ErrNotConfigured
	}
	if config.Channel != nil {
		if err := m.configure(c, config.Channel); err != nil {
			return connection.ID{}, err
		}
	}

	m.mu.Lock()
	id, err := m.conns.Allocate(c)
	if err == nil {
		c.id = id
	}
	m.mu.Unlock()
	if err != nil {
		return connection.ID{}, err
	}

	if m.log != nil {
		m.log.Debugf("conn %s: added (server=%v)", id, config.IsServer)
	}
	return id, nil
}

// RemoveConnection forgets a connection. Its partial chunk is dropped.
func (m *Manager) RemoveConnection(id connection.ID) error {
	m.mu.Lock()
	c, err := m.conns.Release(id)
	m.mu.Unlock()
	if err != nil {
		return ErrNoConnection
	}
	c.chunk.reset()
	c.security.Reset()

	if m.log != nil {
		m.log.Debugf("conn %s: removed", id)
	}
	return nil
}

// Connection returns the state of connection id.
func (m *Manager) Connection(id connection.ID) (*Connection, error) {
	return m.lookup(id)
}

// Configure installs the channel configuration of a connection. A server
// calls it once the opening handshake picked a mode.
func (m *Manager) Configure(id connection.ID, config *channel.Config) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	return m.configure(c, config)
}

func (m *Manager) configure(c *Connection, config *channel.Config) error {
	if config == nil {
		return ErrNotConfigured
	}
	if c.crypto == nil || c.crypto.PolicyURI() != config.SecurityPolicyURI {
		svc, err := m.newCrypto(config.SecurityPolicyURI)
		if err != nil {
			return err
		}
		c.crypto = svc
	}
	c.config = config
	c.security.AsymMaxBodySize = 0
	c.security.SymMaxBodySize = 0
	return nil
}

func (m *Manager) lookup(id connection.ID) (*Connection, error) {
	m.mu.RLock()
	c, err := m.conns.Get(id)
	m.mu.RUnlock()
	if err != nil {
		return nil, ErrNoConnection
	}
	return c, nil
}

// Len returns the number of connections.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns.Len()
}
