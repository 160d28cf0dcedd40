package channel

import "time"

// SecurityToken identifies the key material protecting MSG and CLO traffic
// for a period of time.
type SecurityToken struct {
	ChannelID       uint32
	TokenID         uint32
	CreatedAt       time.Time
	RevisedLifetime time.Duration
	LifetimeEnd     time.Time
}

// NewSecurityToken creates a token whose lifetime starts at createdAt.
func NewSecurityToken(channelID, tokenID uint32, createdAt time.Time, lifetime time.Duration) SecurityToken {
	return SecurityToken{
		ChannelID:       channelID,
		TokenID:         tokenID,
		CreatedAt:       createdAt,
		RevisedLifetime: lifetime,
		LifetimeEnd:     createdAt.Add(lifetime),
	}
}

// IsRecorded reports whether both the channel id and the token id are set.
func (t SecurityToken) IsRecorded() bool {
	return t.ChannelID != 0 && t.TokenID != 0
}

// GracePeriod is how long a client keeps accepting a token after its
// lifetime ended: a quarter of the revised lifetime.
func (t SecurityToken) GracePeriod() time.Duration {
	return t.RevisedLifetime / 4
}

// ValidAt reports whether the token may be used at now. Clients accept the
// token during the grace period; servers do not.
func (t SecurityToken) ValidAt(now time.Time, isServer bool) bool {
	end := t.LifetimeEnd
	if !isServer {
		end = end.Add(t.GracePeriod())
	}
	return !now.After(end)
}

// TokenState tracks which token a channel sends with during renewal.
type TokenState uint8

const (
	// TokenUsingNew is the steady state: only the current token is used.
	TokenUsingNew TokenState = iota

	// TokenUsingPrevious is the server state after issuing a renewed token
	// and before the client has been seen using it. The server keeps
	// sending with the previous token and accepts both.
	TokenUsingPrevious

	// TokenTransitioningToNew is the client state after a renewal. The
	// client sends with the new token and accepts the previous one until it
	// expires.
	TokenTransitioningToNew
)

// String returns the state name.
func (s TokenState) String() string {
	switch s {
	case TokenUsingNew:
		return "UsingNew"
	case TokenUsingPrevious:
		return "UsingPrevious"
	case TokenTransitioningToNew:
		return "TransitioningToNew"
	default:
		return "Unknown"
	}
}
