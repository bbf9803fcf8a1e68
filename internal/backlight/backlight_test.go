package backlight_test

import (
	"errors"
	"testing"

	"github.com/micro-nova/panel-go/internal/backlight"
	"github.com/micro-nova/panel-go/internal/models"
)

func TestLerpEndpoints(t *testing.T) {
	tests := []struct {
		x1, x2, y1, y2 int
	}{
		{1, 255, 1, 255},
		{1, 255, 10, 4095},
		{51, 100, 101, 200},
		{0, 1, 0, 0},
	}
	for _, tt := range tests {
		lo, err := backlight.Lerp(tt.x1, tt.x2, tt.y1, tt.y2, tt.x1)
		if err != nil || lo != tt.y1 {
			t.Errorf("Lerp(%v, x1) = %d, %v; want %d", tt, lo, err, tt.y1)
		}
		hi, err := backlight.Lerp(tt.x1, tt.x2, tt.y1, tt.y2, tt.x2)
		if err != nil || hi != tt.y2 {
			t.Errorf("Lerp(%v, x2) = %d, %v; want %d", tt, hi, err, tt.y2)
		}
	}
}

func TestLerpMonotonic(t *testing.T) {
	prev := -1
	for x := 1; x <= 255; x++ {
		y, err := backlight.Lerp(1, 255, 3, 1023, x)
		if err != nil {
			t.Fatal(err)
		}
		if y < prev {
			t.Fatalf("Lerp not monotonic at x=%d: %d < %d", x, y, prev)
		}
		prev = y
	}
}

func TestLerpClampsAndRounds(t *testing.T) {
	tests := []struct {
		name              string
		x1, x2, y1, y2, x int
		want              int
	}{
		{"below domain", 10, 20, 100, 200, 5, 100},
		{"above domain", 10, 20, 100, 200, 25, 200},
		{"degenerate domain", 7, 7, 3, 9, 100, 3},
		{"tie rounds up", 0, 2, 0, 1, 1, 1},
		{"below half rounds down", 0, 3, 0, 1, 1, 0},
		{"above half rounds up", 0, 3, 0, 1, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := backlight.Lerp(tt.x1, tt.x2, tt.y1, tt.y2, tt.x)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLerpInvalidRange(t *testing.T) {
	if _, err := backlight.Lerp(10, 5, 0, 1, 7); !errors.Is(err, models.ErrInvalidRange) {
		t.Errorf("x2<x1: err = %v", err)
	}
	if _, err := backlight.Lerp(0, 5, 9, 1, 3); !errors.Is(err, models.ErrInvalidRange) {
		t.Errorf("y2<y1: err = %v", err)
	}
}

func TestScale(t *testing.T) {
	if got := backlight.Scale(200, models.MaxBLScaleLevel, models.MaxSVBLScaleLevel); got != 200 {
		t.Errorf("full scale = %d, want 200", got)
	}
	if got := backlight.Scale(200, models.MaxBLScaleLevel/2, models.MaxSVBLScaleLevel); got != 100 {
		t.Errorf("half scale = %d, want 100", got)
	}
	if got := backlight.Scale(200, 0, models.MaxSVBLScaleLevel); got != 0 {
		t.Errorf("zero scale = %d, want 0", got)
	}
}

func TestModelNormal(t *testing.T) {
	m := backlight.NewModel(models.BacklightConfig{BrightnessMax: 255, BLMin: 0, BLMax: 255})
	if got := m.Normal(0, 0); got != 0 {
		t.Errorf("Normal(0) = %d, want 0", got)
	}
	if got := m.Normal(128, 0); got != 128 {
		t.Errorf("Normal(128) = %d, want 128", got)
	}
	// Dimmer floor of 10: round(127*245/254)+10.
	if got := m.Normal(128, 10); got != 133 {
		t.Errorf("Normal(128, floor 10) = %d, want 133", got)
	}
	if got := m.Normal(255, 10); got != 255 {
		t.Errorf("Normal(255) = %d, want 255", got)
	}
}

func TestModelLUT(t *testing.T) {
	lut := make([]uint16, 4)
	for i := range lut {
		lut[i] = uint16(i * 100)
	}
	m := backlight.NewModel(models.BacklightConfig{BrightnessMax: 3, BLMax: 300, LUT: lut})
	if got := m.Normal(2, 0); got != 200 {
		t.Errorf("Normal(2) = %d, want 200", got)
	}
	if got := m.Normal(9, 0); got != 300 {
		t.Errorf("out of range index should clamp, got %d", got)
	}
}

func TestModelLUTCappedAtMax(t *testing.T) {
	m := backlight.NewModel(models.BacklightConfig{BrightnessMax: 2, BLMax: 255, LUT: []uint16{0, 100, 300}})
	if got := m.Normal(2, 0); got != 255 {
		t.Errorf("Normal(2) = %d, want 255", got)
	}
}

func TestFromPhysical(t *testing.T) {
	m := backlight.NewModel(models.BacklightConfig{BrightnessMax: 255, BLMin: 0, BLMax: 1023})
	if got := m.FromPhysical(1023); got != 255 {
		t.Errorf("FromPhysical(max) = %d, want 255", got)
	}
	if got := m.FromPhysical(0); got != 1 {
		t.Errorf("FromPhysical(0) = %d, want 1", got)
	}
}

var twoRanges = []models.HBMRange{
	{UserStart: 1, UserEnd: 50, PanelStart: 10, PanelEnd: 100},
	{UserStart: 51, UserEnd: 100, PanelStart: 101, PanelEnd: 200},
}

func TestFindRange(t *testing.T) {
	if i, err := backlight.FindRange(twoRanges, 30); err != nil || i != 0 {
		t.Errorf("FindRange(30) = %d, %v; want 0", i, err)
	}
	if i, err := backlight.FindRange(twoRanges, 75); err != nil || i != 1 {
		t.Errorf("FindRange(75) = %d, %v; want 1", i, err)
	}
	if _, err := backlight.FindRange(twoRanges, 101); !errors.Is(err, models.ErrNoMatchingRange) {
		t.Errorf("FindRange(101) err = %v, want ErrNoMatchingRange", err)
	}
}

func TestRangeLevel(t *testing.T) {
	got, err := backlight.RangeLevel(twoRanges[1], 100, 0)
	if err != nil || got != 200 {
		t.Errorf("RangeLevel(100) = %d, %v; want 200", got, err)
	}
	got, err = backlight.RangeLevel(twoRanges[0], 1, 4)
	if err != nil || got != 4 {
		t.Errorf("RangeLevel(1, floor 4) = %d, %v; want 4", got, err)
	}
}

func TestNotifierIndex(t *testing.T) {
	ranges := []int{10, 100, 255}
	if i, ok := backlight.NotifierIndex(ranges, 50); !ok || i != 1 {
		t.Errorf("NotifierIndex(50) = %d, %v", i, ok)
	}
	if _, ok := backlight.NotifierIndex(ranges, 300); ok {
		t.Error("NotifierIndex(300) should miss")
	}
}

func TestFindLPMode(t *testing.T) {
	modes := []models.LPMode{
		{Name: "low", Threshold: 20},
		{Name: "high", Threshold: ^uint32(0)},
	}
	if got := backlight.FindLPMode(modes, 5); got != 0 {
		t.Errorf("FindLPMode(5) = %d", got)
	}
	if got := backlight.FindLPMode(modes, 200); got != 1 {
		t.Errorf("FindLPMode(200) = %d", got)
	}
	if got := backlight.FindLPMode(nil, 5); got != -1 {
		t.Errorf("FindLPMode(nil) = %d", got)
	}
}

func TestHighestBit(t *testing.T) {
	for v, want := range map[int]int{0: 0, 1: 1, 255: 8, 256: 9, 4095: 12} {
		if got := backlight.HighestBit(v); got != want {
			t.Errorf("HighestBit(%d) = %d, want %d", v, got, want)
		}
	}
}
