package zeroconf_test

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/micro-nova/panel-go/internal/models"
	"github.com/micro-nova/panel-go/internal/zeroconf"
)

func TestTXT(t *testing.T) {
	cfg := models.PanelConfig{
		Name:  "s6e3hc2",
		Type:  "s6e3hc2",
		Modes: []models.DisplayMode{{RefreshRate: 60}, {RefreshRate: 90}},
		HBM:   &models.HBMConfig{},
	}
	got := zeroconf.TXT(cfg, "1.2.3")
	want := []string{"version=1.2.3", "panel=s6e3hc2", "type=s6e3hc2", "rates=60,90", "hbm=true"}
	if !slices.Equal(got, want) {
		t.Errorf("TXT = %v, want %v", got, want)
	}

	cfg.Type, cfg.HBM = "", nil
	got = zeroconf.TXT(cfg, "1.2.3")
	if got[2] != "type=default" || got[4] != "hbm=false" {
		t.Errorf("TXT = %v", got)
	}
}

// TestStart_Cancel verifies that Start returns once its context is done.
func TestStart_Cancel(t *testing.T) {
	svc := zeroconf.New("panelctl-test", 18080, models.PanelConfig{Name: "test"}, "test")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- svc.Start(ctx)
	}()

	select {
	case err := <-done:
		// mDNS may be unavailable in the test environment
		if err != nil {
			t.Logf("Start returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return within 3 seconds after context cancellation")
	}
}
