//go:build windows

package presence

import (
	"context"
	"errors"
	"net"
)

// Discord listens on \\.\pipe\discord-ipc-N here. Named pipes need a client the
// module does not carry, so the ipc transport is unix only.
func dialIPC(ctx context.Context) (net.Conn, error) {
	return nil, errors.New("discord ipc transport is not supported on windows, use the gateway transport")
}
