// Package zeroconf advertises the panel control API over mDNS/DNS-SD.
package zeroconf

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"

	"github.com/micro-nova/panel-go/internal/models"
)

// ServiceType is the DNS-SD type of the control API.
const ServiceType = "_panelctl._tcp"

// Service manages mDNS service registration.
type Service struct {
	name string
	port int
	txt  []string
}

// New creates a Service advertising the control API of the panel described
// by cfg on port.
func New(name string, port int, cfg models.PanelConfig, version string) *Service {
	return &Service{
		name: name,
		port: port,
		txt:  TXT(cfg, version),
	}
}

// TXT builds the TXT records describing a panel.
func TXT(cfg models.PanelConfig, version string) []string {
	rates := make([]string, len(cfg.Modes))
	for i, m := range cfg.Modes {
		rates[i] = strconv.Itoa(m.RefreshRate)
	}
	typ := cfg.Type
	if typ == "" {
		typ = "default"
	}
	return []string{
		"version=" + version,
		"panel=" + cfg.Name,
		"type=" + typ,
		"rates=" + strings.Join(rates, ","),
		"hbm=" + strconv.FormatBool(cfg.HBM != nil),
	}
}

// Start registers the service and blocks until ctx is cancelled, at which
// point it shuts the responder down.
func (s *Service) Start(ctx context.Context) error {
	server, err := zeroconf.Register(
		s.name,
		ServiceType,
		"local.",
		s.port,
		s.txt,
		nil, // all interfaces
	)
	if err != nil {
		return fmt.Errorf("zeroconf register: %w", err)
	}
	slog.Info("zeroconf: registered mDNS service", "name", s.name, "port", s.port, "txt", s.txt)

	<-ctx.Done()

	server.Shutdown()
	slog.Info("zeroconf: mDNS service unregistered")
	return nil
}
