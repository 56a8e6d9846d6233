package netutil

import (
	"net"
	"time"
)

// WaitForListener tries to connect to the given addr on the given network
// and returns nil, or the last error occurred when trying to dial it, once
// timeout elapses. cmd/csyncd uses this so a caller (or a test) can block
// until the daemon's readiness listener is actually accepting connections,
// exactly as cmd/musclefs's startup is polled for readiness in its own
// tests via netutil.WaitForListener.
func WaitForListener(network, addr string, timeout time.Duration) error {
	start := time.Now()
	var lastErr error
	for time.Since(start) < timeout {
		if lastErr = tryDial(network, addr); lastErr == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	return lastErr
}

func tryDial(network, addr string) error {
	conn, err := net.DialTimeout(network, addr, time.Second)
	if err == nil {
		err = conn.Close()
	}
	return err
}
