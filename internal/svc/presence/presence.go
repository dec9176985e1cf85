package presence

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/stepcord/stepcord/internal/configure"
	"github.com/stepcord/stepcord/internal/instance"
	"github.com/stepcord/stepcord/internal/kind"
)

var (
	ErrNotConnected = errors.New("presence channel is not connected")
	ErrClosed       = errors.New("presence channel closed")
)

// ChannelError is an error reported by the presence channel itself.
type ChannelError struct {
	Code    int
	Message string
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("presence channel error %d: %s", e.Code, e.Message)
}

type Options struct {
	// IPCDial overrides how the local Discord IPC socket is opened.
	IPCDial func(ctx context.Context) (net.Conn, error)
	// ResponseTimeout bounds how long an IPC command waits for its reply.
	ResponseTimeout time.Duration
}

type Instance struct {
	dial    func(ctx context.Context) (net.Conn, error)
	timeout time.Duration
}

func New(o Options) instance.Presence {
	if o.IPCDial == nil {
		o.IPCDial = dialIPC
	}

	if o.ResponseTimeout == 0 {
		o.ResponseTimeout = 10 * time.Second
	}

	return &Instance{
		dial:    o.IPCDial,
		timeout: o.ResponseTimeout,
	}
}

func (i *Instance) NewSession(k kind.Kind, mc configure.MetricConfig) (instance.Session, error) {
	if mc.Credential == "" {
		return nil, fmt.Errorf("no credential for %s", k)
	}

	switch mc.Transport {
	case configure.TransportIPC, "":
		return newIPCSession(k, mc.Credential, i.dial, i.timeout), nil
	case configure.TransportGateway:
		return newGatewaySession(k, mc.Credential), nil
	}

	return nil, fmt.Errorf("unknown presence transport %q for %s", mc.Transport, k)
}
