// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg provides XDG Base Directory paths for authsvc.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const (
	appName        = "authsvc"
	configFileName = "config.yaml"
)

// ConfigDir returns the XDG config directory for authsvc.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", oops.Code("XDG_HOME_UNSET").Errorf("neither XDG_CONFIG_HOME nor HOME is set")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigFile returns the path of the config file used when none is
// given on the command line.
func DefaultConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// FindConfigFile returns DefaultConfigFile if it exists as a regular file.
// A missing file is not an error; found reports whether one was located.
func FindConfigFile() (path string, found bool, err error) {
	path, err = DefaultConfigFile()
	if err != nil {
		// No home directory means there is nothing to discover.
		return "", false, nil
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", false, nil
	case err != nil:
		return "", false, oops.Code("XDG_CONFIG_STAT_FAILED").With("path", path).Wrap(err)
	case info.IsDir():
		return "", false, oops.Code("XDG_CONFIG_NOT_FILE").With("path", path).Errorf("%s is a directory", path)
	}
	return path, true, nil
}
