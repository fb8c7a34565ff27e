// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trigger provides CEL predicates over playback state.
package trigger

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// State is the playback state visible to a predicate.
//
// Predicates see it as the variables event (string), frame, direction,
// count, loaded and percent (int) and running (bool).
type State struct {
	Event     string
	Frame     int
	Direction int
	Count     int
	Loaded    int
	Percent   int
	Running   bool
}

func (s State) activation() map[string]any {
	return map[string]any{
		"event":     s.Event,
		"frame":     s.Frame,
		"direction": s.Direction,
		"count":     s.Count,
		"loaded":    s.Loaded,
		"percent":   s.Percent,
		"running":   s.Running,
	}
}

// Predicate is a compiled boolean CEL expression.
type Predicate struct {
	src string
	prg cel.Program
}

// Compile compiles src into a Predicate. The expression must evaluate
// to a bool.
func Compile(src string) (*Predicate, error) {
	env, err := cel.NewEnv(
		cel.Variable("event", cel.StringType),
		cel.Variable("frame", cel.IntType),
		cel.Variable("direction", cel.IntType),
		cel.Variable("count", cel.IntType),
		cel.Variable("loaded", cel.IntType),
		cel.Variable("percent", cel.IntType),
		cel.Variable("running", cel.BoolType),
		cel.Lib(playLib{}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create env: %w", err)
	}

	ast, iss := env.Compile(src)
	if iss.Err() != nil {
		return nil, fmt.Errorf("failed compilation: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("predicate is not bool: %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed program instantiation: %w", err)
	}
	return &Predicate{src: src, prg: prg}, nil
}

// String returns the source of the predicate.
func (p *Predicate) String() string {
	return p.src
}

// Eval evaluates the predicate against the provided state.
func (p *Predicate) Eval(s State) (bool, error) {
	out, _, err := p.prg.Eval(s.activation())
	if err != nil {
		return false, fmt.Errorf("failed eval: %w", err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, errors.New("predicate result is not bool")
	}
	return bool(b), nil
}
