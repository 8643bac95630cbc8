// Package systemd enables applications to signal readiness and update watchdog
// timestamp to systemd.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"
)

// State defines a sd-notify protocol state.
// See https://www.freedesktop.org/software/systemd/man/sd_notify.html.
type State string

const (
	// Ready tells the service manager that service startup is
	// finished, or the service finished loading its configuration.
	// See https://www.freedesktop.org/software/systemd/man/sd_notify.html#READY=1.
	Ready State = "READY=1"

	// Stopping tells the service manager that the service is beginning its
	// shutdown.
	Stopping State = "STOPPING=1"

	// Watchdog tells the service manager to update the watchdog timestamp.
	// See https://www.freedesktop.org/software/systemd/man/sd_notify.html#WATCHDOG=1.
	Watchdog State = "WATCHDOG=1"
)

// Notifier sends sd_notify messages. The zero value reads the process
// environment and logs errors to [slog.Default].
type Notifier struct {
	// Getenv looks up NOTIFY_SOCKET and WATCHDOG_USEC. If nil, os.Getenv is
	// used.
	Getenv func(string) string
	// Logger receives notification errors.
	Logger *slog.Logger
}

// Notify sends state to systemd. It does nothing when the process is not
// running under systemd. Errors are logged.
func (n *Notifier) Notify(state State) {
	addr := &net.UnixAddr{
		Net:  "unixgram",
		Name: n.getenv("NOTIFY_SOCKET"),
	}
	if addr.Name == "" {
		return
	}

	conn, err := net.DialUnix(addr.Net, nil, addr)
	if err != nil {
		n.logger().Warn("systemd: notifying failed", "state", string(state), "err", err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(state)); err != nil {
		n.logger().Warn("systemd: notifying failed", "state", string(state), "err", err)
	}
}

// WatchdogLoop periodically updates the systemd watchdog timestamp until ctx
// is canceled. It returns immediately if the watchdog is not enabled.
func (n *Notifier) WatchdogLoop(ctx context.Context) {
	if n.getenv("WATCHDOG_USEC") == "" {
		return
	}

	interval, err := watchdogInterval(n.getenv("WATCHDOG_USEC"))
	if err != nil {
		n.logger().Warn("systemd: watchdog disabled", "err", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.Notify(Watchdog)
		case <-ctx.Done():
			return
		}
	}
}

func (n *Notifier) getenv(key string) string {
	if n.Getenv == nil {
		return os.Getenv(key)
	}
	return n.Getenv(key)
}

func (n *Notifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

// watchdogInterval returns half of the watchdog timeout, as sd_watchdog_enabled
// recommends.
func watchdogInterval(usec string) (time.Duration, error) {
	s, err := strconv.Atoi(usec)
	if err != nil {
		return 0, fmt.Errorf("converting WATCHDOG_USEC: %w", err)
	}
	if s <= 0 {
		return 0, errors.New("WATCHDOG_USEC must be a positive number")
	}
	return time.Duration(s) * time.Microsecond / 2, nil
}
