// Package backlight holds the pure brightness math: interpolation, scaling,
// the normal and HBM brightness model, and power-state bit transforms.
// Nothing here performs I/O or takes locks.
package backlight

import (
	"fmt"

	"github.com/micro-nova/panel-go/internal/models"
)

// Lerp maps x from [x1,x2] onto [y1,y2], rounding to the closest integer.
// Values outside the domain clamp to the nearest endpoint.
func Lerp(x1, x2, y1, y2, x int) (int, error) {
	if x2 < x1 || y2 < y1 {
		return 0, fmt.Errorf("lerp [%d,%d]->[%d,%d]: %w", x1, x2, y1, y2, models.ErrInvalidRange)
	}
	switch {
	case x2 == x1, x <= x1:
		return y1, nil
	case x >= x2:
		return y2, nil
	}
	return divRoundClosest((x-x1)*(y2-y1), x2-x1) + y1, nil
}

// divRoundClosest rounds n/d half away from zero. d must be positive.
func divRoundClosest(n, d int) int {
	if n < 0 {
		return (n - d/2) / d
	}
	return (n + d/2) / d
}

// MultFrac computes x*num/den without overflowing the intermediate product.
func MultFrac(x, num, den int) int {
	q := x / den
	r := x % den
	return q*num + r*num/den
}

// Scale applies the global and sunlight-visibility scale factors to a
// logical brightness.
func Scale(brightness, scale, scaleSV int) int {
	b := MultFrac(brightness, scale, models.MaxBLScaleLevel)
	return MultFrac(b, scaleSV, models.MaxSVBLScaleLevel)
}

// HighestBit returns the 1-based index of the most significant set bit, 0 for 0.
func HighestBit(v int) int {
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}
