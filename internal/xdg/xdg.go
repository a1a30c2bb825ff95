// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

// Package xdg locates Cooksavvy files under the XDG Base Directory layout.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "cooksavvy"

// ConfigFileName is the file looked up in ConfigDir when no --config is given.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for cooksavvy.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns the path of ConfigFileName in ConfigDir, or ""
// when there is no such regular file.
func DefaultConfigFile() string {
	path := filepath.Join(ConfigDir(), ConfigFileName)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	return path
}

// ResolveConfigFile returns explicit when set, otherwise DefaultConfigFile.
func ResolveConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return DefaultConfigFile()
}
