// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"log/slog"
)

// LogValue implements slog.LogValuer.
func (v Change) LogValue() slog.Value {
	events := make([]eventValue, len(v.Event))
	for i, e := range v.Event {
		events[i] = eventValue{
			Name: e.Name,
			Op:   e.Op.String(),
			Code: int(e.Op),
		}
	}
	attrs := []slog.Attr{slog.Any("event", events)}
	if v.Config != nil {
		attrs = append(attrs,
			slog.String("canvas", v.Config.Canvas),
			slog.Int("count_frames", v.Config.CountFrames),
			slog.Any("sum", sumValue{*v.Config.Sum}),
		)
	}
	if v.Err != nil {
		attrs = append(attrs, slog.Any("error", v.Err))
	}
	return slog.GroupValue(attrs...)
}

type eventValue struct {
	Name string `json:"name"`
	Op   string `json:"op"`
	Code int    `json:"op_code"`
}

type sumValue struct {
	Sum
}

func (v sumValue) LogValue() slog.Value {
	return slog.StringValue(v.String())
}
