package systemd

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

var sdNotify = daemon.SdNotify

// Notifier sends sd_notify messages. Outside systemd every call is a no-op.
type Notifier struct {
	logger *slog.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

func (n *Notifier) send(state string) bool {
	sent, err := sdNotify(false, state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return false
	}
	return sent
}

// Ready reports startup complete.
func (n *Notifier) Ready() bool { return n.send(daemon.SdNotifyReady) }

// Stopping reports shutdown has begun.
func (n *Notifier) Stopping() bool { return n.send(daemon.SdNotifyStopping) }

// Reloading reports a config reload; call Ready when it finishes.
func (n *Notifier) Reloading() bool { return n.send(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl.
func (n *Notifier) Status(msg string) bool { return n.send("STATUS=" + msg) }

// RunWatchdog pings the watchdog at half the configured interval until ctx
// ends. It returns immediately when no watchdog is configured.
func (n *Notifier) RunWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	n.logger.Debug("Watchdog enabled", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
