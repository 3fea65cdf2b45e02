package ipc

import (
	"context"
	"fmt"
	"net"
)

// SignalByte is the byte written by Send. The listener does not interpret
// its value; any non-empty write counts as a ping.
const SignalByte byte = 0xFF

// Send connects to the trigger socket at path, writes b and shuts the
// connection down. Every failure is returned; there is no retry.
func Send(ctx context.Context, path string, b byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", path, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}

	if _, err := conn.Write([]byte{b}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to write trigger: %w", err)
	}

	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to shut down trigger socket: %w", err)
		}
	}

	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close trigger socket: %w", err)
	}
	return nil
}
