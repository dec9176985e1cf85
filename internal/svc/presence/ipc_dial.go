//go:build !windows

package presence

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// ipcDirs lists where the Discord client creates its sockets, in lookup order.
func ipcDirs() []string {
	dirs := []string{}
	for _, env := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if v := os.Getenv(env); v != "" {
			dirs = append(dirs, v)
		}
	}

	return append(dirs, "/tmp")
}

func dialIPC(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{}

	var lastErr error
	for _, dir := range ipcDirs() {
		for n := 0; n < 10; n++ {
			conn, err := d.DialContext(ctx, "unix", filepath.Join(dir, fmt.Sprintf("discord-ipc-%d", n)))
			if err == nil {
				return conn, nil
			}

			lastErr = err
		}
	}

	return nil, fmt.Errorf("no discord ipc socket found: %w", lastErr)
}
