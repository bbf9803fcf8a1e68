// Package identity reports who this daemon is: host name, installed
// release and the board it runs on.
package identity

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// DefaultVersion is reported when no release metadata is installed.
const DefaultVersion = "0.3.0-dev"

// MetadataFileName is the release metadata file in the settings directory.
const MetadataFileName = "metadata.json"

// DefaultModelPath holds the device-tree board model on ARM boards.
const DefaultModelPath = "/proc/device-tree/model"

// Info is the identity advertised over the API and mDNS.
type Info struct {
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
	Board    string `json:"board,omitempty"`
}

// Lookup gathers identity from the settings directory and the host.
func Lookup(settingsDir string) Info {
	return Info{
		Hostname: Hostname(),
		Version:  VersionFromDir(settingsDir),
		Board:    BoardModel(DefaultModelPath),
	}
}

// Hostname returns the system host name, or "panelctl" when it is unknown.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "panelctl"
	}
	return h
}

// VersionFromDir reads the release version from dir/metadata.json.
func VersionFromDir(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFileName))
	if err != nil {
		return DefaultVersion
	}
	var meta struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &meta); err != nil || meta.Version == "" {
		return DefaultVersion
	}
	return meta.Version
}

// BoardModel returns the board model string at path, or "" off ARM.
// Device-tree strings are NUL terminated.
func BoardModel(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(bytes.TrimRight(data, "\x00")))
}
