//go:build linux

package hardware

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/micro-nova/panel-go/internal/events"
)

const vsyncPollTimeoutMs = 100

// SysfsVsync turns a sysfs vsync event node (e.g. the DRM connector's
// vsync_event attribute) into Vsync events. The kernel signals each frame by
// raising POLLPRI on the attribute.
type SysfsVsync struct {
	path string
	bus  *events.Bus[events.Vsync]
}

// NewSysfsVsync creates a poller for path publishing onto bus.
func NewSysfsVsync(path string, bus *events.Bus[events.Vsync]) *SysfsVsync {
	return &SysfsVsync{path: path, bus: bus}
}

// Run polls until ctx is cancelled. It returns an error only if the node
// cannot be opened.
func (s *SysfsVsync) Run(ctx context.Context) error {
	fd, err := unix.Open(s.path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("vsync: open %s: %w", s.path, err)
	}
	defer unix.Close(fd)

	buf := make([]byte, 64)
	// The attribute must be read once to arm the notification.
	_, _ = unix.Pread(fd, buf, 0)

	slog.Info("vsync: polling sysfs node", "path", s.path)
	var seq uint64
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLPRI | unix.POLLERR}}
	for ctx.Err() == nil {
		n, err := unix.Poll(fds, vsyncPollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			slog.Warn("vsync: poll failed", "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n == 0 || fds[0].Revents&unix.POLLPRI == 0 {
			continue
		}
		m, err := unix.Pread(fd, buf, 0)
		if err != nil {
			slog.Warn("vsync: read failed", "err", err)
			continue
		}
		seq++
		s.bus.Publish(events.Vsync{Seq: seq, At: parseVsyncTimestamp(buf[:m])})
	}
	return nil
}

// parseVsyncTimestamp reads "VSYNC=<ns>" or a bare nanosecond count,
// falling back to the current time.
func parseVsyncTimestamp(b []byte) time.Time {
	b = bytes.TrimSpace(b)
	if i := bytes.IndexByte(b, '='); i >= 0 {
		b = b[i+1:]
	}
	ns, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil || ns <= 0 {
		return time.Now()
	}
	return time.Unix(0, ns)
}
