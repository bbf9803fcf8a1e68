package api

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/micro-nova/panel-go/internal/backlight"
	"github.com/micro-nova/panel-go/internal/models"
)

const (
	curveWidth  = 540
	curveHeight = 320
	curveMargin = 36
)

var (
	curveBG     = color.RGBA{0x10, 0x10, 0x18, 0xFF}
	curveAxis   = color.RGBA{0x80, 0x80, 0x90, 0xFF}
	curveNormal = color.RGBA{0x40, 0xC0, 0xFF, 0xFF}
	curveHBM    = color.RGBA{0xFF, 0xA0, 0x30, 0xFF}
	curveText   = color.RGBA{0xE0, 0xE0, 0xE0, 0xFF}
)

// getCurve renders the brightness to panel level mapping as a PNG. The
// optional floor query parameter previews a dimmer floor.
func (h *Handlers) getCurve(w http.ResponseWriter, r *http.Request) {
	floor := 0
	if s := r.URL.Query().Get("floor"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, models.ErrBadArgument("curve", "invalid floor %q", s))
			return
		}
		floor = n
	}

	img := renderCurve(h.panel.Config(), floor)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

func renderCurve(cfg models.PanelConfig, floor int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, curveWidth, curveHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{curveBG}, image.Point{}, draw.Src)

	bl := cfg.Backlight
	plotW := curveWidth - 2*curveMargin
	plotH := curveHeight - 2*curveMargin
	x0, y0 := curveMargin, curveHeight-curveMargin

	for x := 0; x <= plotW; x++ {
		img.Set(x0+x, y0, curveAxis)
	}
	for y := 0; y <= plotH; y++ {
		img.Set(x0, y0-y, curveAxis)
	}

	maxLevel := bl.BLMax
	if cfg.HBM != nil {
		for _, rg := range cfg.HBM.Ranges {
			maxLevel = max(maxLevel, rg.PanelEnd)
		}
	}
	maxLevel = max(maxLevel, 1)

	plot := func(b, lvl int, c color.Color) {
		x := x0 + b*plotW/max(bl.BrightnessMax, 1)
		y := y0 - lvl*plotH/maxLevel
		img.Set(x, y, c)
		img.Set(x, y-1, c)
	}

	model := backlight.NewModel(bl)
	for b := 0; b <= bl.BrightnessMax; b++ {
		plot(b, model.Normal(b, floor), curveNormal)
		if cfg.HBM == nil || b == 0 {
			continue
		}
		idx, err := backlight.FindRange(cfg.HBM.Ranges, b)
		if err != nil {
			continue
		}
		f := 0
		if idx == 0 || !cfg.Policy.DimmerLowestRangeOnly {
			f = floor
		}
		if lvl, err := backlight.RangeLevel(cfg.HBM.Ranges[idx], b, f); err == nil {
			plot(b, lvl, curveHBM)
		}
	}

	drawText(img, x0+4, 14, fmt.Sprintf("%s  brightness 0..%d -> level 0..%d", cfg.Name, bl.BrightnessMax, maxLevel), curveText)
	drawText(img, x0+4, curveHeight-10, "normal", curveNormal)
	if cfg.HBM != nil {
		drawText(img, x0+70, curveHeight-10, "hbm", curveHBM)
	}
	if floor > 0 {
		drawText(img, x0+120, curveHeight-10, fmt.Sprintf("floor %d", floor), curveText)
	}
	return img
}

func drawText(img draw.Image, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
