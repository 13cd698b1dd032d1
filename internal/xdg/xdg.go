// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg locates authgate files under the XDG Base Directory layout.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const (
	appName    = "authgate"
	configFile = "config.yaml"
)

// ConfigDir returns the authgate config directory.
// Checks XDG_CONFIG_HOME first, falls back to $HOME/.config.
// Returns "" when neither variable is set.
func ConfigDir(getenv func(string) string) string {
	if base := getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, appName)
	}
	if home := getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", appName)
	}
	return ""
}

// DefaultConfigFile returns the config file path under ConfigDir if that
// file exists, or "" if it does not.
func DefaultConfigFile(getenv func(string) string) (string, error) {
	dir := ConfigDir(getenv)
	if dir == "" {
		return "", nil
	}
	path := filepath.Join(dir, configFile)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	case err != nil:
		return "", oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	case info.IsDir():
		return "", oops.Code("CONFIG_LOAD_FAILED").With("path", path).Errorf("config path is a directory")
	}
	return path, nil
}
