package channel

import (
	"time"

	"github.com/backkem/uasc/pkg/crypto"
	"github.com/backkem/uasc/pkg/message"
)

// SecurityContext is the security and sequencing state of one connection.
//
// It is owned by a single connection and must not be used concurrently.
type SecurityContext struct {
	isServer bool

	current      SecurityToken
	previous     SecurityToken
	currentKeys  crypto.KeySets
	previousKeys crypto.KeySets
	tokenState   TokenState

	lastSNSent     uint32
	lastSNReceived uint32
	lastRequestID  uint32
	pending        map[uint32]message.MessageType

	serverAsymInfo *ServerAsymInfo

	// ClientChannelID is the channel id a client learned from the server's
	// first OPN response.
	ClientChannelID uint32

	// AsymMaxBodySize and SymMaxBodySize cache the largest body that fits
	// one chunk. Zero means not computed yet.
	AsymMaxBodySize uint32
	SymMaxBodySize  uint32
}

// NewSecurityContext creates the state of a client or server connection.
func NewSecurityContext(isServer bool) *SecurityContext {
	return &SecurityContext{
		isServer: isServer,
		pending:  make(map[uint32]message.MessageType),
	}
}

// IsServer reports whether this is the server side of the channel.
func (c *SecurityContext) IsServer() bool {
	return c.isServer
}

// Established reports whether a current token is recorded.
func (c *SecurityContext) Established() bool {
	return c.current.IsRecorded()
}

// CurrentToken returns the current token.
func (c *SecurityContext) CurrentToken() SecurityToken {
	return c.current
}

// PreviousToken returns the previous token. It is the zero token when none
// is recorded.
func (c *SecurityContext) PreviousToken() SecurityToken {
	return c.previous
}

// TokenState returns the renewal state.
func (c *SecurityContext) TokenState() TokenState {
	return c.tokenState
}

// InstallToken makes token and keys current. A recorded current token
// becomes the previous one and the renewal state machine starts.
func (c *SecurityContext) InstallToken(token SecurityToken, keys crypto.KeySets) error {
	if !token.IsRecorded() {
		return ErrInvalidToken
	}

	if c.current.IsRecorded() {
		c.previous = c.current
		c.previousKeys = c.currentKeys
		if c.isServer {
			c.tokenState = TokenUsingPrevious
		} else {
			c.tokenState = TokenTransitioningToNew
		}
	} else {
		c.tokenState = TokenUsingNew
	}

	c.current = token
	c.currentKeys = keys
	// Body limits depend on the keys of the new token.
	c.SymMaxBodySize = 0
	return nil
}

// ClassifyToken checks a received token id against the current and previous
// tokens. It reports whether the previous key material must be used.
//
// This is the only place the renewal state changes: a server switches to the
// new token the first time the client uses it, a client drops the previous
// token once it expired.
func (c *SecurityContext) ClassifyToken(tokenID uint32, now time.Time) (usePrevious bool, err error) {
	if !c.current.IsRecorded() {
		return false, ErrTokenUnknown
	}

	if c.tokenState == TokenTransitioningToNew && !c.previous.ValidAt(now, c.isServer) {
		c.dropPrevious()
	}

	if tokenID == c.current.TokenID {
		if !c.current.ValidAt(now, c.isServer) {
			return false, ErrTokenExpired
		}
		if c.tokenState == TokenUsingPrevious {
			c.dropPrevious()
		}
		return false, nil
	}

	if c.tokenState != TokenUsingNew && c.previous.IsRecorded() && tokenID == c.previous.TokenID {
		if !c.previous.ValidAt(now, c.isServer) {
			return false, ErrTokenExpired
		}
		return true, nil
	}

	return false, ErrTokenUnknown
}

func (c *SecurityContext) dropPrevious() {
	c.previous = SecurityToken{}
	c.previousKeys = crypto.KeySets{}
	c.tokenState = TokenUsingNew
}

// SendingToken returns the token id and key material used for sending.
// A server keeps using the previous token until the client used the new one.
func (c *SecurityContext) SendingToken() (uint32, *crypto.KeySets) {
	if c.tokenState == TokenUsingPrevious {
		return c.previous.TokenID, &c.previousKeys
	}
	return c.current.TokenID, &c.currentKeys
}

// ReceivingKeys returns the key material selected by ClassifyToken.
func (c *SecurityContext) ReceivingKeys(usePrevious bool) *crypto.KeySets {
	if usePrevious {
		return &c.previousKeys
	}
	return &c.currentKeys
}

// SetServerAsymInfo records what a server learned from the OPN of a new channel.
func (c *SecurityContext) SetServerAsymInfo(info *ServerAsymInfo) {
	c.serverAsymInfo = info
}

// ServerAsymInfo returns the recorded info without clearing it.
func (c *SecurityContext) ServerAsymInfo() *ServerAsymInfo {
	return c.serverAsymInfo
}

// TakeServerAsymInfo returns the recorded info and clears it.
func (c *SecurityContext) TakeServerAsymInfo() *ServerAsymInfo {
	info := c.serverAsymInfo
	c.serverAsymInfo = nil
	return info
}

// Reset clears all tokens, keys and counters.
func (c *SecurityContext) Reset() {
	isServer := c.isServer
	*c = SecurityContext{
		isServer: isServer,
		pending:  make(map[uint32]message.MessageType),
	}
}
