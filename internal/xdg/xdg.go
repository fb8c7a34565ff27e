// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xdg provides functions for locating per-user configuration
// files and the runtime directory.
package xdg

import (
	"os"
	"path/filepath"
	"syscall"
)

// Config returns the path to the named file found first in the list of
// config directories obtained from ConfigHome, and ConfigDirs if local is
// false. If no file is found Config returns ENOENT.
func Config(name string, local bool) (string, error) {
	return find(name,
		key_XDG_CONFIG_HOME, def_XDG_CONFIG_HOME,
		key_XDG_CONFIG_DIRS, def_XDG_CONFIG_DIRS,
		_HOME, local)
}

// RuntimeDir returns the path corresponding to XDG_RUNTIME_DIR.
func RuntimeDir() (string, bool) {
	return envOrDefault(key_XDG_RUNTIME_DIR, def_XDG_RUNTIME_DIR, _HOME)
}

// find returns the path to the named file found first in the home
// directory keyed by keyHome, or the list of paths keyed by keyDirs if
// local is false.
func find(name, keyHome, defHome, keyDirs, defDirs, home string, local bool) (string, error) {
	base, ok := envOrDefault(keyHome, defHome, home)
	if ok {
		path := filepath.Join(base, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	if local {
		return "", syscall.ENOENT
	}
	list, ok := envOrDefault(keyDirs, defDirs, "")
	if !ok {
		return "", syscall.ENOENT
	}
	for _, base := range filepath.SplitList(list) {
		path := filepath.Join(base, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", syscall.ENOENT
}

// envOrDefault return the path or path list corresponding to the provided
// key and default. If home is empty or the default is absolute, the default
// is returned unaltered, otherwise the default is returned relative to home.
func envOrDefault(key, def, home string) (string, bool) {
	if key != "" {
		val, ok := os.LookupEnv(key)
		if ok {
			return val, true
		}
	}
	if def == "" {
		return "", false
	}
	if home == "" || filepath.IsAbs(def) {
		return def, true
	}
	base, ok := os.LookupEnv(home)
	if !ok {
		return "", false
	}
	return filepath.Join(base, def), true
}
