package gamma

import (
	"context"
	"log/slog"
	"time"

	"github.com/micro-nova/panel-go/internal/hardware"
	"github.com/micro-nova/panel-go/internal/models"
)

const gparCmd byte = 0xB0

// Flash controller sequence.
var (
	flashModeEn  = []byte{0xF1, 0xF1, 0xA2}
	flashModeDis = []byte{0xF1, 0xA5, 0xA5}
	pgmDis       = []byte{0xC0, 0x00}
	pgmEn        = []byte{0xC0, 0x02}
	exeInst      = []byte{0xC0, 0x03}
	writeEn      = []byte{0xC1, 0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05}
	quadEn       = []byte{0xC1, 0x00, 0x00, 0x00, 0x01, 0x40, 0x02, 0x00, 0x00, 0x00, 0x00, 0x10}
	flashGpar    = []byte{gparCmd, 0x0B}
)

const (
	flashReadReg byte = 0xFB

	writeEnableDelay = time.Millisecond
	quadEnableDelay  = 30 * time.Millisecond
	byteReadDelay    = 250 * time.Microsecond
)

// flashReadCmd builds the read instruction for one byte at offset of the
// 0x0A0000 calibration area.
func flashReadCmd(offset int) []byte {
	return []byte{0xC1,
		0x00, 0x00, 0x00, 0x6B, 0x00, 0x00, 0x00,
		0x0A, byte(offset >> 8), byte(offset),
		0x00, 0x05,
		0x01}
}

func newBuffers(specs []models.GammaTableSpec) [][]byte {
	bufs := make([][]byte, len(specs))
	for i, s := range specs {
		bufs[i] = make([]byte, s.Length+1)
		bufs[i][0] = s.Command
	}
	return bufs
}

func (c *Cache) readOTP(ctx context.Context, ch hardware.Channel) ([][]byte, error) {
	bufs := newBuffers(c.specs)
	for i, s := range c.specs {
		if s.ParOffset != 0 {
			if err := ch.SendCommand(ctx, []byte{gparCmd, s.ParOffset}); err != nil {
				return nil, models.ErrHardware("gamma: otp gpar", err)
			}
		}
		data, err := ch.ReadRegister(ctx, s.Command, s.Length)
		if err != nil {
			return nil, models.ErrHardware("gamma: otp read", err)
		}
		if len(data) != s.Length {
			slog.Warn("gamma: short otp read", "cmd", s.Command, "got", len(data), "want", s.Length)
		}
		copy(bufs[i][1:], data)
	}
	return bufs, nil
}

func (c *Cache) readFlash(ctx context.Context, ch hardware.Channel) ([][]byte, error) {
	send := func(cmds ...[]byte) error {
		for _, cmd := range cmds {
			if err := ch.SendCommand(ctx, cmd); err != nil {
				return models.ErrHardware("gamma: flash", err)
			}
		}
		return nil
	}

	if err := send(flashModeEn, pgmEn, writeEn, exeInst); err != nil {
		return nil, err
	}
	if err := c.sleep(ctx, writeEnableDelay); err != nil {
		return nil, err
	}
	if err := send(quadEn, exeInst); err != nil {
		return nil, err
	}
	if err := c.sleep(ctx, quadEnableDelay); err != nil {
		return nil, err
	}

	bufs := newBuffers(c.specs)
	for i, s := range c.specs {
		offset := s.FlashOffset
		for j := 1 + s.PrefixLength; j <= s.Length; j, offset = j+1, offset+1 {
			if err := send(flashReadCmd(offset), exeInst); err != nil {
				return nil, err
			}
			if err := c.sleep(ctx, byteReadDelay); err != nil {
				return nil, err
			}
			if err := send(flashGpar); err != nil {
				return nil, err
			}
			tmp, err := ch.ReadRegister(ctx, flashReadReg, 2)
			if err != nil {
				return nil, models.ErrHardware("gamma: flash read", err)
			}
			if len(tmp) != 2 {
				slog.Warn("gamma: short flash read", "offset", offset, "got", len(tmp))
				continue
			}
			slog.Debug("gamma: read flash", "offset", offset, "data", tmp)
			bufs[i][j] = tmp[1]
		}
	}

	if err := send(pgmDis, flashModeDis); err != nil {
		return nil, err
	}
	return bufs, nil
}
