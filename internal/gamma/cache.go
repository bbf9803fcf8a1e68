// Package gamma caches the per-mode gamma calibration tables of panels that
// need them resent on every mode switch. Tables come from on-chip OTP for the
// 60Hz mode and from the external flash for the 90Hz mode, are fetched once,
// and replaced as a whole.
//
// A Cache is not safe for concurrent use; the owning panel serializes access
// under its lock.
package gamma

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/micro-nova/panel-go/internal/hardware"
	"github.com/micro-nova/panel-go/internal/models"
)

// Level-2 command protection. Table reads and writes must be bracketed by
// these.
var (
	UnlockCommand = []byte{0xF0, 0x5A, 0x5A}
	LockCommand   = []byte{0xF0, 0xA5, 0xA5}
)

// Source is where a mode's tables are read from.
type Source int

const (
	SourceOTP Source = iota
	SourceFlash
)

func (s Source) String() string {
	if s == SourceFlash {
		return "flash"
	}
	return "otp"
}

// SourceFor selects the table source by refresh rate.
func SourceFor(refreshRate int) (Source, error) {
	switch refreshRate {
	case 60:
		return SourceOTP, nil
	case 90:
		return SourceFlash, nil
	}
	return 0, models.ErrUnsupported(fmt.Sprintf("gamma: refresh rate %d", refreshRate))
}

// DefaultTables is the s6e3hc2 table layout. The three tables sit back to
// back in flash.
func DefaultTables() []models.GammaTableSpec {
	return []models.GammaTableSpec{
		{Command: 0xC8, Length: 135, FlashOffset: 0x0000, GroupWithNext: true},
		{Command: 0xC9, Length: 180, GroupWithNext: true},
		{Command: 0xB3, Length: 45, ParOffset: 0x02},
	}
}

// Option configures a Cache.
type Option func(*Cache)

// WithSleep replaces the delay used between flash sequence steps.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Cache) { c.sleep = fn }
}

// Cache holds every mode's tables or none of them.
type Cache struct {
	specs  []models.GammaTableSpec
	ready  bool
	tables map[int][][]byte // refresh rate -> payloads, command byte first
	sleep  func(context.Context, time.Duration) error
}

// New validates specs and resolves grouped flash offsets.
func New(specs []models.GammaTableSpec, opts ...Option) (*Cache, error) {
	resolved, err := Resolve(specs)
	if err != nil {
		return nil, err
	}
	c := &Cache{specs: resolved, sleep: hardware.Sleep}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Resolve checks every spec and derives the flash offset of each table that
// follows a GroupWithNext table.
func Resolve(specs []models.GammaTableSpec) ([]models.GammaTableSpec, error) {
	if len(specs) == 0 {
		return nil, models.ErrConfig("gamma", "no tables configured")
	}
	out := make([]models.GammaTableSpec, len(specs))
	copy(out, specs)
	for i := range out {
		s := &out[i]
		if s.Length <= 0 {
			return nil, models.ErrConfig("gamma", "table 0x%02X: length %d", s.Command, s.Length)
		}
		if s.PrefixLength < 0 || s.PrefixLength >= s.Length {
			return nil, models.ErrConfig("gamma", "table 0x%02X: prefix %d not below length %d",
				s.Command, s.PrefixLength, s.Length)
		}
		if i > 0 && out[i-1].GroupWithNext {
			prev := out[i-1]
			s.FlashOffset = prev.FlashOffset + prev.Length - prev.PrefixLength
		}
		if s.FlashOffset < 0 || s.FlashOffset+s.Length-s.PrefixLength > 0xFFFF {
			return nil, models.ErrConfig("gamma", "table 0x%02X: flash offset 0x%X out of range", s.Command, s.FlashOffset)
		}
	}
	if out[len(out)-1].GroupWithNext {
		return nil, models.ErrConfig("gamma", "last table 0x%02X cannot group with a next table", out[len(out)-1].Command)
	}
	return out, nil
}

// Specs returns the resolved table layout.
func (c *Cache) Specs() []models.GammaTableSpec {
	return append([]models.GammaTableSpec(nil), c.specs...)
}

// Ready reports whether every mode's tables are cached.
func (c *Cache) Ready() bool { return c.ready }

// Invalidate drops the cache so the next EnsureLoaded refetches everything.
func (c *Cache) Invalidate() {
	c.ready = false
	c.tables = nil
}

// Tables returns the cached payloads for a mode.
func (c *Cache) Tables(refreshRate int) ([][]byte, bool) {
	if !c.ready {
		return nil, false
	}
	t, ok := c.tables[refreshRate]
	return t, ok
}

// EnsureLoaded reads the tables of every mode in rates unless already cached.
// Reads are bracketed by the level-2 unlock/lock commands; any failure leaves
// the cache empty.
func (c *Cache) EnsureLoaded(ctx context.Context, ch hardware.Channel, rates []int) error {
	if c.ready {
		return nil
	}
	if err := ch.SendCommand(ctx, UnlockCommand); err != nil {
		return models.ErrHardware("gamma: unlock", err)
	}
	tables, err := c.readAll(ctx, ch, rates)
	if lerr := ch.SendCommand(ctx, LockCommand); lerr != nil && err == nil {
		err = models.ErrHardware("gamma: lock", lerr)
	}
	if err != nil {
		slog.Error("gamma: unable to read tables", "err", err)
		return err
	}
	c.tables = tables
	c.ready = true
	slog.Info("gamma: tables cached", "modes", len(tables))
	return nil
}

func (c *Cache) readAll(ctx context.Context, ch hardware.Channel, rates []int) (map[int][][]byte, error) {
	tables := make(map[int][][]byte, len(rates))
	otpRate := -1
	for _, rate := range rates {
		src, err := SourceFor(rate)
		if err != nil {
			return nil, err
		}
		var bufs [][]byte
		switch src {
		case SourceOTP:
			bufs, err = c.readOTP(ctx, ch)
			otpRate = rate
		case SourceFlash:
			bufs, err = c.readFlash(ctx, ch)
		}
		if err != nil {
			return nil, fmt.Errorf("gamma: mode %dHz from %s: %w", rate, src, err)
		}
		tables[rate] = bufs
	}
	return tables, c.patchPrefixes(tables, otpRate)
}

// patchPrefixes copies the prefix bytes the flash copy does not carry from
// the OTP-backed mode into every flash-backed mode.
func (c *Cache) patchPrefixes(tables map[int][][]byte, otpRate int) error {
	for rate, bufs := range tables {
		if src, _ := SourceFor(rate); src != SourceFlash {
			continue
		}
		for i, s := range c.specs {
			if s.PrefixLength == 0 {
				continue
			}
			if otpRate < 0 {
				return models.ErrConfig("gamma", "table 0x%02X needs an otp mode for its prefix", s.Command)
			}
			copy(bufs[i][1:1+s.PrefixLength], tables[otpRate][i][1:1+s.PrefixLength])
		}
	}
	return nil
}

// Dump renders every cached mode's tables as hex rows.
func (c *Cache) Dump() []models.GammaDump {
	if !c.ready {
		return nil
	}
	var out []models.GammaDump
	for rate, bufs := range c.tables {
		d := models.GammaDump{RefreshRate: rate, Tables: make(map[string]string, len(bufs))}
		for i, b := range bufs {
			d.Tables[fmt.Sprintf("0x%02X", c.specs[i].Command)] = hexRows(b[1:])
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b models.GammaDump) int { return cmp.Compare(a.RefreshRate, b.RefreshRate) })
	return out
}

func hexRows(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		switch {
		case i == 0:
		case i%16 == 0:
			sb.WriteByte('\n')
		default:
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}
