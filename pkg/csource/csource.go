// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package csource generates a C program that replays a trace model.
package csource

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/Meinersbur/isl/prog"
)

// Write generates the C program for m with the mutations ms applied.
// If formatting was requested and fails, the unformatted source is returned along with the error.
func Write(m *prog.Model, ms *prog.MutationSet, opts Options) ([]byte, error) {
	ctx := &context{
		m:    m,
		snap: m.Analyze(ms),
		opts: opts,
	}
	src := ctx.generate()
	if opts.Format {
		return Format(src)
	}
	return src, nil
}

// Generate renders m for a snapshot that was computed for ms.
// The result is deterministic for fixed inputs.
func Generate(m *prog.Model, ms *prog.MutationSet, snap *prog.Snapshot) []byte {
	ctx := &context{
		m:    m,
		snap: snap,
		opts: DefaultOptions(),
	}
	return ctx.generate()
}

type context struct {
	m    *prog.Model
	snap *prog.Snapshot
	opts Options
}

const indent = "  "

func (ctx *context) generate() []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(prologue)
	buf.WriteString("\n// variables used across callbacks\n")
	for _, obj := range ctx.m.Objects {
		if !ctx.snap.Global[obj] {
			continue
		}
		if obj.Init != "" {
			fmt.Fprintf(buf, "%v = %v;\n", declare(obj.Type, obj.Name), obj.Init)
		} else {
			fmt.Fprintf(buf, "%v;\n", declare(obj.Type, obj.Name))
		}
	}
	buf.WriteString("\n")

	var callbackers []*prog.Callbacker
	for _, cb := range ctx.m.Callbackers {
		if ctx.snap.Callbackers[cb] {
			callbackers = append(callbackers, cb)
		}
	}
	for _, cb := range callbackers {
		fmt.Fprintf(buf, "%v;\n", dispatcherDecl(cb))
	}
	if len(callbackers) != 0 {
		buf.WriteString("\n")
	}
	for _, cb := range callbackers {
		ctx.dispatcher(buf, cb)
		buf.WriteString("\n")
	}

	buf.WriteString("int main() {\n")
	fmt.Fprintf(buf, "%vconst char *dynIslVersion = isl_version();\n", indent)
	fmt.Fprintf(buf, "%vconst char *genIslVersion = %v;\n", indent, prog.CString(ctx.m.GenTime))
	fmt.Fprintf(buf, "%vprintf(\"### ISL version  : %%s### at generation: %%s\\n\", dynIslVersion, genIslVersion);\n",
		indent)
	buf.WriteString("\n")
	ctx.level(buf, ctx.m.Main, indent)
	fmt.Fprintf(buf, "%vreturn EXIT_SUCCESS;\n", indent)
	buf.WriteString("}\n")
	return buf.Bytes()
}

func dispatcherDecl(cb *prog.Callbacker) string {
	params := make([]string, len(cb.ParamTypes))
	for i, typ := range cb.ParamTypes {
		params[i] = declare(typ, fmt.Sprintf("param%v", i))
	}
	if len(params) == 0 {
		params = []string{"void"}
	}
	return fmt.Sprintf("static %v(%v)", declare(cb.RetType, cb.Name), strings.Join(params, ", "))
}

// dispatcher replays the recorded invocations of cb, one per call.
func (ctx *context) dispatcher(buf *bytes.Buffer, cb *prog.Callbacker) {
	fmt.Fprintf(buf, "%v {\n", dispatcherDecl(cb))
	fmt.Fprintf(buf, "%vstatic int callidx = 0;\n", indent)
	fmt.Fprintf(buf, "%vswitch (callidx++) {\n", indent)
	body := indent + indent
	for i, lvl := range cb.Invocations {
		fmt.Fprintf(buf, "%vcase %v: {\n", indent, i)
		for j, obj := range lvl.Params {
			if obj != nil && ctx.snap.Global[obj] {
				fmt.Fprintf(buf, "%v%v = param%v;\n", body, obj.Name, j)
			}
		}
		ctx.level(buf, lvl, body)
		if cb.HasRet() {
			ret := "0"
			if lvl.Ret != nil {
				ret = ctx.arg(lvl.Ret, lvl)
			}
			fmt.Fprintf(buf, "%vreturn %v;\n", body, ret)
		}
		fmt.Fprintf(buf, "%v} break;\n", indent)
	}
	fmt.Fprintf(buf, "%vdefault:\n", indent)
	fmt.Fprintf(buf, "%v// trace only recorded the calls above\n", body)
	fmt.Fprintf(buf, "%vabort();\n", body)
	fmt.Fprintf(buf, "%v}\n", indent)
	buf.WriteString("}\n")
}

func (ctx *context) level(buf *bytes.Buffer, lvl *prog.Level, ind string) {
	for _, c := range lvl.Calls {
		if ctx.snap.Calls[c] {
			fmt.Fprintf(buf, "%v%v\n", ind, ctx.call(c, lvl))
		}
	}
}

func (ctx *context) call(c *prog.Call, lvl *prog.Level) string {
	eff := ctx.snap.Effective(c)
	ret := eff.Ret
	used := ctx.snap.Used(ret)
	global := used && ctx.snap.Global[ret]
	if eff.Predef {
		if global {
			return assignment(eff.Code, ret.Name)
		}
		return eff.Code
	}
	args := make([]string, len(eff.Args))
	for i, arg := range eff.Args {
		args[i] = ctx.arg(arg, lvl)
	}
	stmt := fmt.Sprintf("%v(%v);", eff.Func, strings.Join(args, ", "))
	switch {
	case global:
		stmt = fmt.Sprintf("%v = %v", ret.Name, stmt)
	case used:
		stmt = fmt.Sprintf("%v = %v", declare(ret.Type, ret.Name), stmt)
	}
	// Literal replacements carry the description in the call itself.
	if ctx.opts.Descriptions && eff == c && c.Desc != "" {
		stmt += " // " + comment(c.Desc)
	}
	return stmt
}

// arg renders a resolved argument; local callback parameters are
// referenced directly.
func (ctx *context) arg(arg *prog.Arg, lvl *prog.Level) string {
	res := ctx.snap.Resolve(arg)
	if res.Kind != prog.ArgObject || res.IsNull() || ctx.snap.Global[res.Obj] {
		return res.String()
	}
	i := lvl.Param(res.Obj)
	if i < 0 {
		return res.String()
	}
	name := fmt.Sprintf("param%v", i)
	if res.Via != "" {
		return fmt.Sprintf("%v(%v)", res.Via, name)
	}
	return name
}

// assignment turns the declaration "isl_ctx *ctx = expr;" into "ctx = expr;".
func assignment(code, name string) string {
	eq := strings.IndexByte(code, '=')
	if eq < 0 {
		return code
	}
	return name + " " + code[eq:]
}

// cleanType drops the isl ownership annotations: "__isl_give isl_set *" -> "isl_set *".
func cleanType(typ string) string {
	var fields []string
	for _, f := range strings.Fields(strings.ReplaceAll(typ, "*", " * ")) {
		if !strings.HasPrefix(f, "__isl_") {
			fields = append(fields, f)
		}
	}
	return strings.ReplaceAll(strings.Join(fields, " "), "* *", "**")
}

// declare returns a C declaration of name with type typ: "isl_set *set1".
func declare(typ, name string) string {
	t := cleanType(typ)
	base := strings.TrimRight(t, "* ")
	stars := strings.Count(t[len(base):], "*")
	return base + " " + strings.Repeat("*", stars) + name
}

func comment(desc string) string {
	desc = strings.Join(strings.Fields(desc), " ")
	return strings.TrimRight(desc, "\\")
}
