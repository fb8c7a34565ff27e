// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

type playLib struct{}

func (playLib) ProgramOptions() []cel.ProgramOption { return nil }

func (playLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("every",
			cel.Overload(
				"every_int_int_bool",
				[]*cel.Type{cel.IntType, cel.IntType},
				cel.BoolType,
				cel.BinaryBinding(every),
			),
		),
	}
}

// every returns whether frame is a multiple of n. It is used as
// every(frame, n).
func every(frame, n ref.Val) ref.Val {
	f, ok := frame.(types.Int)
	if !ok {
		return types.NewErr("invalid type for every frame: %T", frame)
	}
	d, ok := n.(types.Int)
	if !ok {
		return types.NewErr("invalid type for every step: %T", n)
	}
	if d <= 0 {
		return types.NewErr("invalid step for every: %d", d)
	}
	return types.Bool(f%d == 0)
}
