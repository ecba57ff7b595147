// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"bytes"
	"fmt"
	"strings"
)

// Serialize writes the model back in the trace log format.
// Parsing the result yields a structurally identical model.
func (m *Model) Serialize() []byte {
	s := &serializer{
		buf:     new(bytes.Buffer),
		emitted: make(map[*Callbacker]bool),
	}
	if m.GenTime != "" {
		s.record("isltrace", "gentime", m.GenTime)
	}
	s.level(m.Main)
	for _, cb := range m.Callbackers {
		s.callbacker(cb)
	}
	return s.buf.Bytes()
}

type serializer struct {
	buf     *bytes.Buffer
	emitted map[*Callbacker]bool
}

// record writes one line, fields are key/value pairs.
func (s *serializer) record(cmd string, fields ...string) {
	s.buf.WriteString(cmd)
	for i := 0; i < len(fields); i += 2 {
		fmt.Fprintf(s.buf, " %v=%v", fields[i], quote(fields[i+1]))
	}
	s.buf.WriteByte('\n')
}

func (s *serializer) level(lvl *Level) {
	for _, c := range lvl.Calls {
		s.call(c)
	}
}

func (s *serializer) callbacker(cb *Callbacker) {
	if s.emitted[cb] {
		return
	}
	s.emitted[cb] = true
	s.record("callback",
		"callbacker", hexAddr(cb.Addr),
		"fname", cb.Func,
		"pname", cb.Param,
		"retty", cb.RetType,
		"numargs", fmt.Sprint(len(cb.ParamTypes)),
		"paramtys", strings.Join(cb.ParamTypes, ", "))
}

func (s *serializer) call(c *Call) {
	if c.Predef {
		s.record("predef", "name", c.Ret.Name, "ty", c.Ret.Type, "ptr", hexAddr(c.Ret.Addr), "code", c.Code)
		return
	}
	cmd := "call_proc"
	if c.HasRet {
		cmd = "call_func"
	}
	fields := []string{"fname", c.Func, "rettype", c.RetType, "numargs", fmt.Sprint(len(c.Args))}
	for i, arg := range c.Args {
		s.prepareArg(arg)
		prefix := fmt.Sprintf("parm%v", i)
		if arg.Name != "" {
			fields = append(fields, prefix+"name", arg.Name)
		}
		fields = append(fields, prefix+"type", arg.Type)
		fields = append(fields, s.argFields(prefix+"val", prefix+"ptr", arg)...)
	}
	s.record(cmd, fields...)
	for _, lvl := range c.Nested {
		s.invocation(lvl)
	}
	if !c.returned {
		return
	}
	fields = []string{"fname", c.Func, "rettype", c.RetType}
	if c.RetVal != "" {
		fields = append(fields, "retval", c.RetVal)
	}
	if c.Ret != nil {
		fields = append(fields, "retptr", hexAddr(c.Ret.Addr))
	}
	if c.Desc != "" {
		fields = append(fields, "desc", c.Desc)
	}
	s.record("return", fields...)
}

func (s *serializer) invocation(lvl *Level) {
	cb := lvl.Callbacker
	s.callbacker(cb)
	fields := []string{"callbacker", hexAddr(cb.Addr), "numargs", fmt.Sprint(len(cb.ParamTypes))}
	for i, obj := range lvl.Params {
		if obj != nil {
			fields = append(fields, fmt.Sprintf("arg%vptr", i), hexAddr(obj.Addr))
		}
	}
	s.record("callback_enter", fields...)
	s.level(lvl)
	fields = []string{"callbacker", hexAddr(cb.Addr), "retty", cb.RetType}
	if lvl.Ret != nil {
		s.prepareArg(lvl.Ret)
		fields = append(fields, s.argFields("retval", "retptr", lvl.Ret)...)
	}
	s.record("callback_exit", fields...)
}

func (s *serializer) prepareArg(arg *Arg) {
	if arg.Kind == ArgCallback {
		s.callbacker(arg.Callback)
	}
}

func (s *serializer) argFields(valKey, ptrKey string, arg *Arg) []string {
	switch {
	case arg.Kind == ArgLiteral && arg.Addr == 0:
		return []string{valKey, arg.Val}
	case arg.Kind == ArgCallback:
		return []string{ptrKey, hexAddr(arg.Callback.Addr)}
	case arg.IsNull():
		return []string{ptrKey, "0"}
	default:
		return []string{ptrKey, hexAddr(arg.Addr)}
	}
}

func hexAddr(addr uint64) string {
	return fmt.Sprintf("0x%x", addr)
}

// quote makes v a single shell word.
func quote(v string) string {
	if v != "" && strings.IndexFunc(v, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			strings.ContainsRune("_-+.,:/*", r))
	}) == -1 {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
