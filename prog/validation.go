// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"fmt"
)

var debug = false // enabled in tests

type validCtx struct {
	m       *Model
	calls   map[*Call]bool
	objects map[*Object]bool
	levels  map[*Level]bool
}

// validate checks the links between calls, levels, objects and callbackers.
func (m *Model) validate() error {
	ctx := &validCtx{
		m:       m,
		calls:   make(map[*Call]bool),
		objects: make(map[*Object]bool),
		levels:  make(map[*Level]bool),
	}
	for i, c := range m.Calls {
		if c.ID != i {
			return fmt.Errorf("call %v has id %v", i, c.ID)
		}
	}
	for _, obj := range m.Objects {
		if ctx.objects[obj] {
			return fmt.Errorf("object %v is listed twice", obj)
		}
		ctx.objects[obj] = true
	}
	if err := ctx.level(m.Main); err != nil {
		return err
	}
	if len(ctx.calls) != len(m.Calls) {
		return fmt.Errorf("%v calls are not reachable from main", len(m.Calls)-len(ctx.calls))
	}
	for _, cb := range m.Callbackers {
		for i, lvl := range cb.Invocations {
			if lvl.Callbacker != cb || lvl.Invocation != i {
				return fmt.Errorf("invocation %v of %v is linked to %v", i, cb.Name, lvl)
			}
			if !ctx.levels[lvl] {
				return fmt.Errorf("invocation %v is not nested in any call", lvl)
			}
		}
	}
	return nil
}

func (ctx *validCtx) level(lvl *Level) error {
	if ctx.levels[lvl] {
		return fmt.Errorf("level %v is entered twice", lvl)
	}
	ctx.levels[lvl] = true
	if !lvl.IsMain() && len(lvl.Params) != len(lvl.Callbacker.ParamTypes) {
		return fmt.Errorf("level %v has %v params, want %v",
			lvl, len(lvl.Params), len(lvl.Callbacker.ParamTypes))
	}
	for _, obj := range lvl.Params {
		if obj != nil && obj.Level != lvl {
			return fmt.Errorf("param %v of %v is defined in %v", obj, lvl, obj.Level)
		}
	}
	if lvl.Ret != nil {
		if err := ctx.arg(lvl.Ret, lvl.String()); err != nil {
			return err
		}
	}
	for _, c := range lvl.Calls {
		if err := ctx.call(c, lvl); err != nil {
			return err
		}
	}
	return nil
}

func (ctx *validCtx) call(c *Call, lvl *Level) error {
	if ctx.calls[c] {
		return fmt.Errorf("call %v is listed twice", c)
	}
	ctx.calls[c] = true
	if c.Level != lvl {
		return fmt.Errorf("call %v belongs to %v, but is in %v", c, c.Level, lvl)
	}
	if ctx.m.Calls[c.ID] != c {
		return fmt.Errorf("call %v is not the call with id %v", c, c.ID)
	}
	if c.Predef && (c.Ret == nil || c.Code == "") {
		return fmt.Errorf("predef %v without object", c.Func)
	}
	if c.Ret != nil {
		if !c.HasRet {
			return fmt.Errorf("procedure %v returns %v", c.Func, c.Ret)
		}
		if c.Ret.Level != lvl {
			return fmt.Errorf("%v returns %v defined in %v", c.Func, c.Ret, c.Ret.Level)
		}
		if !ctx.objects[c.Ret] {
			return fmt.Errorf("%v returns unlisted object %v", c.Func, c.Ret)
		}
	}
	for _, arg := range c.Args {
		if err := ctx.arg(arg, c.Func); err != nil {
			return err
		}
	}
	for _, nested := range c.Nested {
		if nested.IsMain() {
			return fmt.Errorf("call %v nests main", c)
		}
		if err := ctx.level(nested); err != nil {
			return err
		}
	}
	return nil
}

func (ctx *validCtx) arg(arg *Arg, where string) error {
	switch arg.Kind {
	case ArgLiteral:
	case ArgObject:
		if arg.Obj == nil {
			return fmt.Errorf("%v: nil object in %v", where, arg.Name)
		}
		if !arg.Obj.IsNull() && !ctx.objects[arg.Obj] {
			return fmt.Errorf("%v: unlisted object %v", where, arg.Obj)
		}
	case ArgCallback:
		if arg.Callback == nil {
			return fmt.Errorf("%v: nil callback in %v", where, arg.Name)
		}
	default:
		return fmt.Errorf("%v: unknown arg kind %v", where, arg.Kind)
	}
	return nil
}
