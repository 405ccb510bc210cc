package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "cronpump/pkg/logx"
)

// sdNotifier speaks the sd_notify protocol. Outside systemd every call is a
// no-op because NOTIFY_SOCKET is unset.
type sdNotifier struct {
	enabled bool
	log     logx.Logger
}

func (n sdNotifier) notify(state string) {
	if !n.enabled {
		return
	}
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if !sent {
		n.log.Debug("sd_notify skipped (no NOTIFY_SOCKET)", logx.String("state", state))
	}
}

func (n sdNotifier) Ready(schedules int) {
	n.notify(daemon.SdNotifyReady)
	n.Status("running", schedules)
}

func (n sdNotifier) Status(state string, schedules int) {
	n.notify(fmt.Sprintf("STATUS=%s schedules=%d", state, schedules))
}

func (n sdNotifier) Stopping(reason StopReason) {
	n.notify(daemon.SdNotifyStopping)
	n.notify("STATUS=stopping (" + string(reason) + ")")
}

// watchdog pings systemd at half the configured WatchdogSec while healthy
// reports nil. It returns at once when no watchdog is configured.
func (n sdNotifier) watchdog(ctx context.Context, healthy func() error) {
	if !n.enabled {
		return
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := healthy(); err != nil {
				n.log.Warn("watchdog ping withheld", logx.Err(err))
				continue
			}
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
