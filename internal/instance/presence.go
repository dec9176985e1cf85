package instance

import (
	"context"

	"github.com/stepcord/stepcord/internal/configure"
	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/status"
)

type SessionState int32

const (
	SessionDisconnected SessionState = iota
	SessionConnected
)

func (s SessionState) String() string {
	if s == SessionConnected {
		return "connected"
	}

	return "disconnected"
}

// Presence builds one session per metric kind.
type Presence interface {
	NewSession(k kind.Kind, mc configure.MetricConfig) (Session, error)
}

// Session owns a single presence channel connection. It never retries.
type Session interface {
	Kind() kind.Kind
	State() SessionState
	Connect(ctx context.Context) error
	Publish(ctx context.Context, st status.Status) error
	Clear(ctx context.Context) error
	Close() error
}

type Toggles interface {
	Enabled(k kind.Kind) bool
}
