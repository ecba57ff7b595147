// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package prog holds the in-memory model of a recorded isl call trace:
// objects, calls, callback slots and the levels they were recorded in.
// The model is built once by Parse and is read-only afterwards; all
// reduction state lives in MutationSet and Snapshot values.
package prog

import (
	"fmt"
	"strings"
)

type Model struct {
	// GenTime is the library version string the trace was generated with.
	GenTime     string
	Main        *Level
	Calls       []*Call // every recorded call and predef, in trace order
	Objects     []*Object
	Callbackers []*Callbacker
}

type Object struct {
	Name string
	Type string
	Addr uint64
	// Level the object was defined in (returned, predefined or bound as
	// a callback parameter). Nil for ad-hoc objects and NullObject.
	Level *Level
	// Init is the initializer of ad-hoc objects that were never defined
	// by a recorded statement.
	Init string
}

// NullObject is the sentinel for a null handle.
var NullObject = &Object{Name: "NULL"}

func (obj *Object) IsNull() bool {
	return obj == NullObject
}

func (obj *Object) String() string {
	return obj.Name
}

type ArgKind int

const (
	ArgLiteral ArgKind = iota
	ArgObject
	ArgCallback
)

type Arg struct {
	Kind ArgKind
	Name string // parameter name
	Type string // declared parameter type
	Val  string // C source of ArgLiteral
	Addr uint64 // recorded pointer value, if the argument was a pointer

	Obj *Object // target of ArgObject
	// Via names a getter applied to Obj when rendering (e.g. isl_set_get_ctx),
	// used by synthesized calls that derive a context from another handle.
	Via string

	Callback *Callbacker // target of ArgCallback
}

func literalArg(name, typ, val string) *Arg {
	return &Arg{Kind: ArgLiteral, Name: name, Type: typ, Val: val}
}

func objectArg(name, typ string, obj *Object) *Arg {
	return &Arg{Kind: ArgObject, Name: name, Type: typ, Obj: obj, Addr: obj.Addr}
}

// NullArg returns an argument referring to NullObject.
func NullArg(name, typ string) *Arg {
	return &Arg{Kind: ArgObject, Name: name, Type: typ, Obj: NullObject}
}

func (arg *Arg) IsNull() bool {
	return arg.Kind == ArgObject && arg.Obj.IsNull()
}

func (arg *Arg) String() string {
	switch arg.Kind {
	case ArgLiteral:
		return arg.Val
	case ArgObject:
		if arg.Via != "" {
			return fmt.Sprintf("%v(%v)", arg.Via, arg.Obj)
		}
		return arg.Obj.String()
	case ArgCallback:
		return arg.Callback.Name
	default:
		panic(fmt.Sprintf("unknown arg kind %v", arg.Kind))
	}
}

type Call struct {
	// ID is the position in Model.Calls. Synthesized replacement calls
	// carry the ID of the call they replace.
	ID      int
	Func    string
	Args    []*Arg
	HasRet  bool
	RetType string
	Ret     *Object // returned handle, nil if none was tracked
	RetVal  string  // recorded non-handle return value
	// Desc is the textual form of the returned object, if the tracer
	// captured one (e.g. for sets).
	Desc     string
	returned bool

	// Predefs introduce an object by a fixed statement.
	Predef bool
	Code   string

	Level *Level
	// Nested are the callback invocations entered while the call ran.
	Nested []*Level
}

func (c *Call) String() string {
	if c.Predef {
		return c.Code
	}
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = arg.String()
	}
	return fmt.Sprintf("%v(%v)", c.Func, strings.Join(args, ", "))
}

type Level struct {
	Calls []*Call

	// Set for callback invocation levels only.
	Callbacker *Callbacker
	Invocation int       // index among Callbacker.Invocations
	Params     []*Object // bound handle per callback parameter, nil if none
	Ret        *Arg      // value returned by the invocation
}

func (lvl *Level) IsMain() bool {
	return lvl.Callbacker == nil
}

// Param returns the index of obj among the parameters of the level or -1.
func (lvl *Level) Param(obj *Object) int {
	for i, p := range lvl.Params {
		if p == obj {
			return i
		}
	}
	return -1
}

func (lvl *Level) String() string {
	if lvl.IsMain() {
		return "main"
	}
	return fmt.Sprintf("%v#%v", lvl.Callbacker.Name, lvl.Invocation)
}

type Callbacker struct {
	Addr       uint64
	Name       string // name of the generated dispatcher
	Func       string // function the callback was registered with
	Param      string // name of the function pointer parameter
	RetType    string
	ParamTypes []string
	// Invocations in recorded order; the dispatcher replays them by index.
	Invocations []*Level
}

func (cb *Callbacker) HasRet() bool {
	return normalizeType(cb.RetType) != "void"
}

// Stats returns the number of calls, objects and callbackers of the model.
func (m *Model) Stats() (calls, objects, callbackers int) {
	return len(m.Calls), len(m.Objects), len(m.Callbackers)
}
