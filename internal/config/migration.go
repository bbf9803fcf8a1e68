package config

import (
	"log/slog"

	"github.com/micro-nova/panel-go/internal/models"
)

// migrateSettings fixes values that older or hand-edited settings files may
// carry out of range.
func migrateSettings(st *models.Settings) {
	if st.BacklightMin == 0 {
		st.BacklightMin = models.DefaultBacklightMin
	}
	if c := ClampBacklightMin(st.BacklightMin); c != st.BacklightMin {
		slog.Warn("config: backlight_min out of range, clamping", "value", st.BacklightMin, "clamped", c)
		st.BacklightMin = c
	}
}

// ClampBacklightMin limits a dimmer floor to the range the panel accepts.
func ClampBacklightMin(v int) int {
	return min(max(v, models.MinBacklightMin), models.MaxBacklightMin)
}
