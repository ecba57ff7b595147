// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"errors"
	"fmt"
	"strings"
)

type MutationKind int

const (
	RemoveCall MutationKind = iota
	ForwardArg
	ReplaceLiteral
	NullOutArg
	Bulk
)

var mutationKindNames = [...]string{
	RemoveCall:     "remove",
	ForwardArg:     "forward",
	ReplaceLiteral: "literal",
	NullOutArg:     "null",
	Bulk:           "bulk",
}

func (kind MutationKind) String() string {
	return mutationKindNames[kind]
}

// Mutation describes one candidate transformation of the trace.
// Call is an index into Model.Calls, Arg an index into the call arguments.
type Mutation struct {
	Kind  MutationKind
	Call  int
	Arg   int
	Batch []Mutation // instances applied together by a Bulk mutation
}

func (mut Mutation) String() string {
	switch mut.Kind {
	case RemoveCall, ReplaceLiteral:
		return fmt.Sprintf("%v#%v", mut.Kind, mut.Call)
	case ForwardArg, NullOutArg:
		return fmt.Sprintf("%v#%v.%v", mut.Kind, mut.Call, mut.Arg)
	case Bulk:
		if len(mut.Batch) == 0 {
			return "bulk"
		}
		return fmt.Sprintf("bulk-%v[%v]", mut.Batch[0].Kind, len(mut.Batch))
	default:
		panic(fmt.Sprintf("unknown mutation kind %v", int(mut.Kind)))
	}
}

// Size is the number of atomic mutations in mut.
func (mut Mutation) Size() int {
	if mut.Kind == Bulk {
		return len(mut.Batch)
	}
	return 1
}

// ErrAlreadyApplied is returned when a mutation does not change the set.
var ErrAlreadyApplied = errors.New("mutation is already applied")

// ConflictError is returned when a mutation is incompatible with the set.
type ConflictError struct {
	Mutation Mutation
	Reason   string
}

func (err *ConflictError) Error() string {
	return fmt.Sprintf("%v conflicts: %v", err.Mutation, err.Reason)
}

// Mutations enumerates all applicable mutations of the model.
// Bulk variants of every family come first, followed by the individual
// removals, forwards, literal replacements and argument nullings.
// Coarse steps precede fine ones: a block that holds a bulk variant and some
// of its instances tries the bulk step, and the instances are shadowed by it
// (see FoldResult.Shadowed). They stay candidates for smaller blocks unless
// the block is accepted.
func (m *Model) Mutations() []Mutation {
	var removes, forwards, literals, nulls []Mutation
	for _, c := range m.Calls {
		removes = append(removes, Mutation{Kind: RemoveCall, Call: c.ID})
		if c.Predef {
			continue
		}
		for j, arg := range c.Args {
			if canForward(c, arg) {
				forwards = append(forwards, Mutation{Kind: ForwardArg, Call: c.ID, Arg: j})
			}
		}
		if literalFunc(c) != "" && contextArg(c.Args) != nil {
			literals = append(literals, Mutation{Kind: ReplaceLiteral, Call: c.ID})
		}
		if isReadFromStr(c.Func) {
			continue
		}
		for j, arg := range c.Args {
			if canNullOut(arg) {
				nulls = append(nulls, Mutation{Kind: NullOutArg, Call: c.ID, Arg: j})
			}
		}
	}
	var res []Mutation
	for _, family := range [][]Mutation{removes, forwards, literals, nulls} {
		if len(family) > 1 {
			res = append(res, Mutation{Kind: Bulk, Batch: family})
		}
	}
	for _, family := range [][]Mutation{removes, forwards, literals, nulls} {
		res = append(res, family...)
	}
	return res
}

func canForward(c *Call, arg *Arg) bool {
	return c.Ret != nil && arg.Kind == ArgObject && !arg.IsNull() &&
		pointeeType(arg.Type) != "" && pointeeType(arg.Type) == pointeeType(c.Ret.Type)
}

func canNullOut(arg *Arg) bool {
	return arg.Kind == ArgObject && !arg.IsNull() && isHandleType(arg.Type) && !isContextType(arg.Type)
}

// literalFunc returns the text constructor that can recreate the result of c.
func literalFunc(c *Call) string {
	if c.Predef || c.Ret == nil || c.Desc == "" || isReadFromStr(c.Func) {
		return ""
	}
	return readFromStr[pointeeType(c.RetType)]
}

// contextArg derives an isl_ctx argument from the arguments of a call:
// either a context passed directly or one obtained from another handle.
func contextArg(args []*Arg) *Arg {
	for _, arg := range args {
		if arg.Kind == ArgObject && !arg.IsNull() && isContextType(arg.Type) {
			return &Arg{Kind: ArgObject, Name: "ctx", Type: "isl_ctx *", Obj: arg.Obj, Addr: arg.Addr}
		}
	}
	for _, arg := range args {
		if arg.Kind == ArgObject && !arg.IsNull() && ctxGetters[pointeeType(arg.Type)] {
			return &Arg{Kind: ArgObject, Name: "ctx", Type: "isl_ctx *", Obj: arg.Obj, Addr: arg.Addr,
				Via: pointeeType(arg.Type) + "_get_ctx"}
		}
	}
	return nil
}

type mutator struct {
	m   *Model
	ms  *MutationSet
	mut Mutation
}

// mutate applies mut to ms in place. On error ms is not modified.
func (m *Model) mutate(ms *MutationSet, mut Mutation) error {
	if mut.Kind == Bulk {
		return m.mutateBulk(ms, mut)
	}
	if mut.Call < 0 || mut.Call >= len(m.Calls) {
		panic(fmt.Sprintf("mutation %v: call out of range", mut))
	}
	ctx := &mutator{m: m, ms: ms, mut: mut}
	c := m.Calls[mut.Call]
	switch mut.Kind {
	case RemoveCall:
		return ctx.removeCall(c)
	case ForwardArg:
		return ctx.forwardArg(c, mut.Arg)
	case ReplaceLiteral:
		return ctx.replaceLiteral(c)
	case NullOutArg:
		return ctx.nullOutArg(c, mut.Arg)
	default:
		panic(fmt.Sprintf("unknown mutation kind %v", int(mut.Kind)))
	}
}

// mutateBulk applies every instance of the batch that fits.
func (m *Model) mutateBulk(ms *MutationSet, mut Mutation) error {
	applied, conflicts := 0, 0
	for _, inst := range mut.Batch {
		err := m.mutate(ms, inst)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, ErrAlreadyApplied):
		default:
			conflicts++
		}
	}
	switch {
	case applied != 0:
		return nil
	case conflicts != 0:
		return &ConflictError{Mutation: mut, Reason: "no instance applies"}
	default:
		return ErrAlreadyApplied
	}
}

func (ctx *mutator) conflict(format string, args ...any) error {
	return &ConflictError{Mutation: ctx.mut, Reason: fmt.Sprintf(format, args...)}
}

func (ctx *mutator) removeCall(c *Call) error {
	ms := ctx.ms
	if ms.removed[c] {
		return ErrAlreadyApplied
	}
	ms.removed[c] = true
	if c.Ret != nil && ms.redirected[c.Ret] == nil {
		ms.redirected[c.Ret] = NullArg(c.Ret.Name, c.Ret.Type)
	}
	return nil
}

func (ctx *mutator) forwardArg(c *Call, j int) error {
	ms := ctx.ms
	if c.Ret == nil || j < 0 || j >= len(c.Args) {
		return ctx.conflict("%v has nothing to forward", c.Func)
	}
	eff := ms.effective(c)
	if eff.Func != c.Func {
		return ctx.conflict("%v was replaced by %v", c.Func, eff.Func)
	}
	target := eff.Args[j]
	if ms.removed[c] {
		if ms.redirected[c.Ret] == target {
			return ErrAlreadyApplied
		}
		return ctx.conflict("%v is removed", c.Func)
	}
	for arg := target; arg.Kind == ArgObject && !arg.IsNull(); {
		if arg.Obj == c.Ret {
			return ctx.conflict("forwarding %v to itself", c.Ret)
		}
		next := ms.Redirect(arg.Obj)
		if next == nil {
			break
		}
		arg = next
	}
	ms.removed[c] = true
	ms.redirected[c.Ret] = target
	return nil
}

func (ctx *mutator) replaceLiteral(c *Call) error {
	ms := ctx.ms
	fn := literalFunc(c)
	if fn == "" {
		return ctx.conflict("%v has no literal form", c.Func)
	}
	if ms.removed[c] {
		return ctx.conflict("%v is removed", c.Func)
	}
	eff := ms.effective(c)
	if eff.Func == fn {
		return ErrAlreadyApplied
	}
	if eff != c {
		return ctx.conflict("%v is already modified", c.Func)
	}
	ctxArg := contextArg(c.Args)
	if ctxArg == nil {
		return ctx.conflict("%v has no context argument", c.Func)
	}
	ms.replaced[c] = &Call{
		ID:       c.ID,
		Func:     fn,
		Args:     []*Arg{ctxArg, literalArg("str", "const char *", CString(c.Desc))},
		HasRet:   true,
		RetType:  c.RetType,
		Ret:      c.Ret,
		Desc:     c.Desc,
		returned: true,
		Level:    c.Level,
	}
	return nil
}

func (ctx *mutator) nullOutArg(c *Call, j int) error {
	ms := ctx.ms
	if j < 0 || j >= len(c.Args) {
		return ctx.conflict("%v has no argument %v", c.Func, j)
	}
	if ms.removed[c] {
		return ctx.conflict("%v is removed", c.Func)
	}
	eff := ms.effective(c)
	if eff.Func != c.Func {
		return ctx.conflict("%v was replaced by %v", c.Func, eff.Func)
	}
	if eff.Args[j].IsNull() {
		return ErrAlreadyApplied
	}
	repl := *eff
	repl.Args = append([]*Arg{}, eff.Args...)
	repl.Args[j] = NullArg(eff.Args[j].Name, eff.Args[j].Type)
	ms.replaced[c] = &repl
	return nil
}

// CString returns s as a C string literal. Non-printable and non-ASCII
// bytes are emitted as octal escapes, which are never greedy in C.
func CString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"' || ch == '\\':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case ch == '\n':
			b.WriteString(`\n`)
		case ch == '\t':
			b.WriteString(`\t`)
		case ch == '?' && i+1 < len(s) && s[i+1] == '?':
			// Avoid trigraphs.
			b.WriteString(`?\`)
		case ch < 0x20 || ch >= 0x7f:
			fmt.Fprintf(&b, `\%03o`, ch)
		default:
			b.WriteByte(ch)
		}
	}
	b.WriteByte('"')
	return b.String()
}
