// Package netutil holds listener helpers shared by the dashboard and the
// reference backend.
package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"
)

// DefaultBind is used when no bind address is configured.
const DefaultBind = "127.0.0.1"

// ListenAutoPort tries the configured port; if busy, scans up to 10 higher
// ports. Port 0 lets the OS pick. It returns the port actually bound.
func ListenAutoPort(bind string, port int, logger *slog.Logger) (net.Listener, int, error) {
	if bind == "" {
		bind = DefaultBind
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(bind, fmt.Sprint(port)))
	if err == nil {
		return ln, ln.Addr().(*net.TCPAddr).Port, nil
	}
	if !isAddrInUse(err) {
		return nil, 0, err
	}

	logger.Warn("port in use, searching for available port", "port", port)
	for offset := 1; offset <= 10; offset++ {
		tryPort := port + offset
		ln, err = net.Listen("tcp", net.JoinHostPort(bind, fmt.Sprint(tryPort)))
		if err == nil {
			logger.Info("using alternative port", "original", port, "actual", tryPort)
			return ln, tryPort, nil
		}
	}
	return nil, 0, fmt.Errorf("port %d and next 10 ports are all in use", port)
}

func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.EADDRINUSE)
}
