// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/ulikunitz/xz"
)

const maxLineSize = 64 << 20

// ParseError describes a structurally malformed trace.
type ParseError struct {
	Line int
	Text string
	Err  string
}

func (err *ParseError) Error() string {
	return fmt.Sprintf("trace line %v: %v\n\t%v", err.Line, err.Err, err.Text)
}

type recordKind int

const (
	recSession recordKind = iota
	recPredef
	recCallFunc
	recCallProc
	recReturn
	recCallback
	recCallbackEnter
	recCallbackExit
)

var recordKinds = map[string]recordKind{
	"isltrace":       recSession,
	"predef":         recPredef,
	"call_func":      recCallFunc,
	"call_proc":      recCallProc,
	"return":         recReturn,
	"callback":       recCallback,
	"callback_enter": recCallbackEnter,
	"callback_exit":  recCallbackExit,
}

type record struct {
	kind   recordKind
	fields map[string]string
}

// decodeRecord splits a trace line into the command and its key=value fields.
func decodeRecord(line string) (*record, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("bad quoting: %w", err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	kind, ok := recordKinds[tokens[0]]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", tokens[0])
	}
	rec := &record{
		kind:   kind,
		fields: make(map[string]string),
	}
	for _, tok := range tokens[1:] {
		key, val, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed field %q", tok)
		}
		rec.fields[key] = val
	}
	return rec, nil
}

func (rec *record) get(key string) (string, error) {
	val, ok := rec.fields[key]
	if !ok {
		return "", fmt.Errorf("missing field %v", key)
	}
	return val, nil
}

func (rec *record) addr(key string) (uint64, bool, error) {
	val, ok := rec.fields[key]
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(val, 0, 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad address %v=%q", key, val)
	}
	return v, true, nil
}

func (rec *record) int(key string) (int, error) {
	val, err := rec.get(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(val)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("bad number %v=%q", key, val)
	}
	return v, nil
}

// parser holds the registries that are only needed while reading the trace.
type parser struct {
	m           *Model
	memory      map[uint64]*Object
	callbackers map[uint64]*Callbacker
	stack       []*Level
	names       map[string]bool
	counters    map[string]int
}

func newParser() *parser {
	main := &Level{}
	return &parser{
		m:           &Model{Main: main},
		memory:      make(map[uint64]*Object),
		callbackers: make(map[uint64]*Callbacker),
		stack:       []*Level{main},
		names:       make(map[string]bool),
		counters:    make(map[string]int),
	}
}

// ParseFile parses a trace log, transparently decompressing .xz files.
func ParseFile(filename string) (*Model, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(filename, ".xz") {
		if r, err = xz.NewReader(bufio.NewReader(f)); err != nil {
			return nil, fmt.Errorf("failed to open %v: %w", filename, err)
		}
	}
	return Parse(r)
}

func ParseData(data []byte) (*Model, error) {
	return Parse(bytes.NewReader(data))
}

func Parse(r io.Reader) (*Model, error) {
	p := newParser()
	s := bufio.NewScanner(r)
	s.Buffer(nil, maxLineSize)
	line := 0
	for s.Scan() {
		line++
		text := strings.TrimSpace(s.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		if err := p.parseLine(text); err != nil {
			return nil, &ParseError{Line: line, Text: text, Err: err.Error()}
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if len(p.stack) != 1 {
		return nil, &ParseError{
			Line: line,
			Err:  fmt.Sprintf("trace ends inside callback %v", p.top()),
		}
	}
	if debug {
		if err := p.m.validate(); err != nil {
			panic(fmt.Sprintf("parsed invalid model: %v", err))
		}
	}
	return p.m, nil
}

func (p *parser) parseLine(text string) error {
	rec, err := decodeRecord(text)
	if err != nil || rec == nil {
		return err
	}
	switch rec.kind {
	case recSession:
		return p.parseSession(rec)
	case recPredef:
		return p.parsePredef(rec)
	case recCallFunc:
		return p.parseCall(rec, true)
	case recCallProc:
		return p.parseCall(rec, false)
	case recReturn:
		return p.parseReturn(rec)
	case recCallback:
		return p.parseCallback(rec)
	case recCallbackEnter:
		return p.parseCallbackEnter(rec)
	case recCallbackExit:
		return p.parseCallbackExit(rec)
	default:
		panic(fmt.Sprintf("unhandled record kind %v", rec.kind))
	}
}

func (p *parser) top() *Level {
	return p.stack[len(p.stack)-1]
}

func (p *parser) nextName(prefix string) string {
	for {
		p.counters[prefix]++
		name := prefix + strconv.Itoa(p.counters[prefix])
		if !p.names[name] {
			p.names[name] = true
			return name
		}
	}
}

// registerObject starts tracking a handle at addr. An address that is
// already known is rebound: the library may reuse memory of freed handles.
func (p *parser) registerObject(addr uint64, typ string, lvl *Level, name string) *Object {
	if name == "" {
		name = p.nextName(shortName(typ))
	} else {
		p.names[name] = true
	}
	obj := &Object{
		Name:  name,
		Type:  strings.TrimSpace(typ),
		Addr:  addr,
		Level: lvl,
	}
	p.memory[addr] = obj
	p.m.Objects = append(p.m.Objects, obj)
	return obj
}

func (p *parser) addCall(c *Call) {
	lvl := p.top()
	c.ID = len(p.m.Calls)
	c.Level = lvl
	lvl.Calls = append(lvl.Calls, c)
	p.m.Calls = append(p.m.Calls, c)
}

// pointerArg resolves a recorded pointer value.
func (p *parser) pointerArg(name, typ string, addr uint64) *Arg {
	if addr == 0 {
		return NullArg(name, typ)
	}
	if cb := p.callbackers[addr]; cb != nil {
		return &Arg{Kind: ArgCallback, Name: name, Type: typ, Addr: addr, Callback: cb}
	}
	if obj := p.memory[addr]; obj != nil {
		return objectArg(name, typ, obj)
	}
	if isHandleType(typ) {
		obj := p.registerObject(addr, typ, nil, "")
		obj.Init = fmt.Sprintf("(%v *)0x%x", pointeeType(typ), addr)
		return objectArg(name, typ, obj)
	}
	arg := literalArg(name, typ, fmt.Sprintf("(%v)0x%x", strings.TrimSpace(typ), addr))
	arg.Addr = addr
	return arg
}

func (p *parser) valueArg(rec *record, name, typ, valKey, ptrKey string) (*Arg, error) {
	if val, ok := rec.fields[valKey]; ok {
		return literalArg(name, typ, val), nil
	}
	addr, ok, err := rec.addr(ptrKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("neither %v nor %v is present", valKey, ptrKey)
	}
	return p.pointerArg(name, typ, addr), nil
}

func (p *parser) parseSession(rec *record) error {
	gentime, err := rec.get("gentime")
	if err != nil {
		return err
	}
	p.m.GenTime = gentime
	return nil
}

func (p *parser) parsePredef(rec *record) error {
	name, err := rec.get("name")
	if err != nil {
		return err
	}
	typ, err := rec.get("ty")
	if err != nil {
		return err
	}
	code, err := rec.get("code")
	if err != nil {
		return err
	}
	addr, ok, err := rec.addr("ptr")
	if err != nil {
		return err
	}
	if !ok || addr == 0 {
		return fmt.Errorf("predef %v without address", name)
	}
	if p.names[name] {
		return fmt.Errorf("predef name %v is already taken", name)
	}
	obj := p.registerObject(addr, typ, p.top(), name)
	p.addCall(&Call{
		Func:     name,
		HasRet:   true,
		RetType:  obj.Type,
		Ret:      obj,
		Predef:   true,
		Code:     code,
		returned: true,
	})
	return nil
}

func (p *parser) parseCall(rec *record, hasRet bool) error {
	fname, err := rec.get("fname")
	if err != nil {
		return err
	}
	numArgs, err := rec.int("numargs")
	if err != nil {
		return err
	}
	c := &Call{
		Func:    fname,
		HasRet:  hasRet,
		RetType: strings.TrimSpace(rec.fields["rettype"]),
	}
	for i := 0; i < numArgs; i++ {
		prefix := fmt.Sprintf("parm%v", i)
		typ, err := rec.get(prefix + "type")
		if err != nil {
			return err
		}
		arg, err := p.valueArg(rec, rec.fields[prefix+"name"], typ, prefix+"val", prefix+"ptr")
		if err != nil {
			return err
		}
		c.Args = append(c.Args, arg)
	}
	p.addCall(c)
	return nil
}

func (p *parser) parseReturn(rec *record) error {
	fname, err := rec.get("fname")
	if err != nil {
		return err
	}
	lvl := p.top()
	var last *Call
	for i := len(lvl.Calls) - 1; i >= 0; i-- {
		if !lvl.Calls[i].Predef {
			last = lvl.Calls[i]
			break
		}
	}
	if last == nil {
		return fmt.Errorf("return from %v without a call in %v", fname, lvl)
	}
	if last.Func != fname {
		return fmt.Errorf("return from %v, but the last call in %v is %v", fname, lvl, last.Func)
	}
	if !last.HasRet {
		return fmt.Errorf("return from procedure %v", fname)
	}
	if last.returned {
		return fmt.Errorf("duplicate return from %v", fname)
	}
	last.returned = true
	if rettype, ok := rec.fields["rettype"]; ok {
		last.RetType = strings.TrimSpace(rettype)
	}
	last.RetVal = rec.fields["retval"]
	last.Desc = rec.fields["desc"]
	addr, ok, err := rec.addr("retptr")
	if err != nil {
		return err
	}
	if ok && addr != 0 {
		last.Ret = p.registerObject(addr, last.RetType, lvl, "")
	}
	return nil
}

func (p *parser) parseCallback(rec *record) error {
	addr, ok, err := rec.addr("callbacker")
	if err != nil {
		return err
	}
	if !ok || addr == 0 {
		return fmt.Errorf("callback without callbacker address")
	}
	fname, err := rec.get("fname")
	if err != nil {
		return err
	}
	pname, err := rec.get("pname")
	if err != nil {
		return err
	}
	retty, err := rec.get("retty")
	if err != nil {
		return err
	}
	numArgs, err := rec.int("numargs")
	if err != nil {
		return err
	}
	var paramTypes []string
	if tys := strings.TrimSpace(rec.fields["paramtys"]); tys != "" {
		for _, ty := range strings.Split(tys, ",") {
			paramTypes = append(paramTypes, strings.TrimSpace(ty))
		}
	}
	if len(paramTypes) != numArgs {
		return fmt.Errorf("callback declares %v params, but has %v types", numArgs, len(paramTypes))
	}
	cb := &Callbacker{
		Addr:       addr,
		Name:       p.nextName(fname + "_" + pname + "_cb"),
		Func:       fname,
		Param:      pname,
		RetType:    strings.TrimSpace(retty),
		ParamTypes: paramTypes,
	}
	p.callbackers[addr] = cb
	p.m.Callbackers = append(p.m.Callbackers, cb)
	return nil
}

func (p *parser) lookupCallbacker(rec *record) (*Callbacker, error) {
	addr, ok, err := rec.addr("callbacker")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("missing field callbacker")
	}
	cb := p.callbackers[addr]
	if cb == nil {
		return nil, fmt.Errorf("unknown callbacker 0x%x", addr)
	}
	return cb, nil
}

func (p *parser) parseCallbackEnter(rec *record) error {
	cb, err := p.lookupCallbacker(rec)
	if err != nil {
		return err
	}
	if _, ok := rec.fields["numargs"]; ok {
		n, err := rec.int("numargs")
		if err != nil {
			return err
		}
		if n != len(cb.ParamTypes) {
			return fmt.Errorf("%v entered with %v args, declared with %v", cb.Name, n, len(cb.ParamTypes))
		}
	}
	outer := p.top()
	if len(outer.Calls) == 0 {
		return fmt.Errorf("%v entered outside of any call", cb.Name)
	}
	caller := outer.Calls[len(outer.Calls)-1]
	lvl := &Level{
		Callbacker: cb,
		Invocation: len(cb.Invocations),
		Params:     make([]*Object, len(cb.ParamTypes)),
	}
	cb.Invocations = append(cb.Invocations, lvl)
	caller.Nested = append(caller.Nested, lvl)
	for i, typ := range cb.ParamTypes {
		if !isPointerType(typ) {
			continue
		}
		addr, ok, err := rec.addr(fmt.Sprintf("arg%vptr", i))
		if err != nil {
			return err
		}
		if ok && addr != 0 {
			lvl.Params[i] = p.registerObject(addr, typ, lvl, "")
		}
	}
	p.stack = append(p.stack, lvl)
	return nil
}

func (p *parser) parseCallbackExit(rec *record) error {
	cb, err := p.lookupCallbacker(rec)
	if err != nil {
		return err
	}
	lvl := p.top()
	if lvl.IsMain() {
		return fmt.Errorf("exit from %v outside of any callback", cb.Name)
	}
	if lvl.Callbacker != cb {
		return fmt.Errorf("exit from %v inside of %v", cb.Name, lvl)
	}
	if retty, ok := rec.fields["retty"]; ok && !sameType(retty, cb.RetType) {
		return fmt.Errorf("%v returns %v, declared %v", cb.Name, retty, cb.RetType)
	}
	if cb.HasRet() {
		lvl.Ret, err = p.valueArg(rec, "", cb.RetType, "retval", "retptr")
		if err != nil {
			return err
		}
	}
	p.stack = p.stack[:len(p.stack)-1]
	return nil
}
