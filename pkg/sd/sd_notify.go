// Package sd reports service state to systemd: readiness, shutdown and
// watchdog keep-alives
package sd

import (
	"context"
	"errors"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// ErrNotifyNoSocket is returned when NOTIFY_SOCKET is not set
var ErrNotifyNoSocket = errors.New("no notify socket")

// Notify sends a message to the init daemon. It is common to ignore the error.
func Notify(state string) error {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		return err
	}
	if !sent {
		return ErrNotifyNoSocket
	}
	return nil
}

// WatchdogEnabled returns the watchdog interval the service manager expects
// keep-alives at. Zero means no keep-alives are expected.
func WatchdogEnabled() (time.Duration, error) {
	return daemon.SdWatchdogEnabled(false)
}

// Watchdog sends keep-alives at half the watchdog interval until ctx is done.
// It returns right away when no watchdog is configured.
func Watchdog(ctx context.Context) error {
	interval, err := WatchdogEnabled()
	if err != nil || interval == 0 {
		return err
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = Notify(daemon.SdNotifyWatchdog)
		}
	}
}
