// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config provides configuration loading, vetting and live
// reloading.
package config

import (
	"bytes"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/kortschak/flipbook/config"
)

// Alias the publicly visible types.
type (
	Sequence = config.Sequence
	Resize   = config.Resize
	Handler  = config.Handler
	Sum      = config.Sum
)

// Load reads and vets the TOML sequence configuration at path.
func Load(path string) (*Sequence, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, _, err := unmarshalConfig(sha1.New(), b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and vets the TOML sequence configuration in b.
// Fields not present in b take their default values.
func Parse(b []byte) (*Sequence, error) {
	cfg, _, err := unmarshalConfig(sha1.New(), b)
	return cfg, err
}

// unmarshalConfig returns a vetted configuration and its semantic hash
// from the provided raw data. The returned configuration is nil if
// err is not nil.
func unmarshalConfig(h hash.Hash, b []byte) (cfg *Sequence, sum Sum, err error) {
	c := config.Defaults()
	md, err := toml.NewDecoder(bytes.NewReader(b)).Decode(&c)
	if err != nil {
		return nil, sum, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slices.Sort(keys)
		return nil, sum, fmt.Errorf("unknown configuration keys: %s", strings.Join(keys, ", "))
	}

	_, err = Validate(config.Schema, &c)
	if err != nil {
		return nil, sum, err
	}
	err = check(&c)
	if err != nil {
		return nil, sum, err
	}

	err = json.NewEncoder(h).Encode(&c)
	if err != nil {
		return nil, sum, err
	}
	sum = ([sha1.Size]byte)(h.Sum(nil))
	h.Reset()
	c.Sum = &sum
	return &c, sum, nil
}

// check performs consistency checks that are not expressed in the
// schema.
func check(c *Sequence) error {
	var errs []error
	if c.Resize != nil {
		r := c.Resize
		if r.SWidth == 0 || r.SHeight == 0 || r.Width == 0 || r.Height == 0 {
			errs = append(errs, errors.New("resize: empty rectangle"))
		}
	}
	if c.CountFrames > 0 && (c.WidthFrames == 0 || c.HeightFrames == 0) {
		errs = append(errs, errors.New("frame size must be set"))
	}
	return errors.Join(errs...)
}
