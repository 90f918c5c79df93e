// Package appconfig resolves the host-side directories imgforge owns:
// the layer arena, the index database, and per-build logs.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
)

// ensureFolder recursively creates a folder if it does not exist.
func ensureFolder(path string) error {
	return os.MkdirAll(path, 0o755)
}

// ensureFile ensures that the parent folder exists and the file exists.
// If the file already exists, it does nothing.
func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create/open file: %w", err)
	}
	defer f.Close()

	return nil
}

func ConfigBasePath() string {
	homedir, err := os.UserHomeDir()
	if err != nil {
		homedir = "/usr/local/config/imgforge"
	}

	return filepath.Join(homedir, ".config", "imgforge")
}

// LayerStorePath is the content-addressed layer arena shared by concurrent
// builds on this host.
func LayerStorePath() string {
	p := filepath.Join(ConfigBasePath(), "layers")
	ensureFolder(p)
	return p
}

// BaseCachePath holds materialized base image root filesystems, keyed by
// digest.
func BaseCachePath() string {
	p := filepath.Join(ConfigBasePath(), "bases")
	ensureFolder(p)
	return p
}

func IndexDBFile() string {
	return filepath.Join(ConfigBasePath(), "index.db")
}

func logsPath() string {
	return filepath.Join(ConfigBasePath(), "logs")
}

func BuildLogPath(buildID string) string {
	p := filepath.Join(logsPath(), "build-"+buildID+".log")
	ensureFile(p)
	return p
}

// WorkPath is scratch space for stage root filesystems of a single build.
func WorkPath(buildID string) string {
	p := filepath.Join(ConfigBasePath(), "work", buildID)
	ensureFolder(p)
	return p
}
