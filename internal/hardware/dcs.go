package hardware

import (
	"fmt"

	"github.com/micro-nova/panel-go/internal/models"
)

// MIPI DCS commands used by the panel daemon.
const (
	DCSSetDisplayBrightness byte = 0x51
	DCSGetDisplayBrightness byte = 0x52
	DCSWriteControlDisplay  byte = 0x53
)

// WRCTRLD (0x53) bits.
const (
	CtrlBacklight byte = 0x20 // BCTRL
	CtrlDimming   byte = 0x08
	CtrlHBMOn     byte = 0xC0
	CtrlHBMSV     byte = 0xE0
)

// BrightnessWidth returns how many bytes a level occupies on the wire.
func BrightnessWidth(blMax int, highByteOffset uint) int {
	if blMax >= 1<<highByteOffset {
		return 2
	}
	return 1
}

// BrightnessPayload encodes a set-display-brightness command. Levels above
// blMax are rejected rather than truncated to the payload width.
func BrightnessPayload(level, blMax int, highByteOffset uint) ([]byte, error) {
	if level < 0 || level > 0xFFFF {
		return nil, models.ErrBadArgument("dcs", "brightness level %d out of range", level)
	}
	if level > blMax {
		return nil, models.ErrBadArgument("dcs", "brightness level %d above max %d", level, blMax)
	}
	if BrightnessWidth(blMax, highByteOffset) == 1 {
		return []byte{DCSSetDisplayBrightness, byte(level)}, nil
	}
	lo := level & (1<<highByteOffset - 1)
	return []byte{DCSSetDisplayBrightness, byte(level >> highByteOffset), byte(lo)}, nil
}

// DecodeBrightness is the inverse of BrightnessPayload for a 0x52 readback.
func DecodeBrightness(buf []byte, highByteOffset uint) (int, error) {
	switch len(buf) {
	case 1:
		return int(buf[0]), nil
	case 2:
		return int(buf[0])<<highByteOffset | int(buf[1]), nil
	}
	return 0, fmt.Errorf("dcs: unexpected brightness readback length %d", len(buf))
}
