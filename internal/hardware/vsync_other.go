//go:build !linux

package hardware

import (
	"context"
	"fmt"

	"github.com/micro-nova/panel-go/internal/events"
)

// SysfsVsync is only available on linux.
type SysfsVsync struct {
	path string
}

func NewSysfsVsync(path string, _ *events.Bus[events.Vsync]) *SysfsVsync {
	return &SysfsVsync{path: path}
}

func (s *SysfsVsync) Run(ctx context.Context) error {
	return fmt.Errorf("vsync: sysfs polling not supported on this platform (%s)", s.path)
}
