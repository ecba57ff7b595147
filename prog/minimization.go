// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"errors"
)

// MutationSet accumulates the trace transformations accepted so far.
// A set that is shared (e.g. the base of concurrent trials) must not be
// modified: Apply and Fold always work on a clone.
type MutationSet struct {
	removed    map[*Call]bool
	replaced   map[*Call]*Call
	redirected map[*Object]*Arg
}

func NewMutationSet() *MutationSet {
	return &MutationSet{
		removed:    make(map[*Call]bool),
		replaced:   make(map[*Call]*Call),
		redirected: make(map[*Object]*Arg),
	}
}

// Clone copies the maps; calls and args stored in them are never modified.
func (ms *MutationSet) Clone() *MutationSet {
	ms1 := NewMutationSet()
	if ms == nil {
		return ms1
	}
	for c := range ms.removed {
		ms1.removed[c] = true
	}
	for c, repl := range ms.replaced {
		ms1.replaced[c] = repl
	}
	for obj, arg := range ms.redirected {
		ms1.redirected[obj] = arg
	}
	return ms1
}

func (ms *MutationSet) IsRemoved(c *Call) bool {
	return ms != nil && ms.removed[c]
}

// Replacement returns the substitute of c or nil.
func (ms *MutationSet) Replacement(c *Call) *Call {
	if ms == nil {
		return nil
	}
	return ms.replaced[c]
}

// Redirect returns the argument that stands in for obj or nil.
func (ms *MutationSet) Redirect(obj *Object) *Arg {
	if ms == nil {
		return nil
	}
	return ms.redirected[obj]
}

// Len returns the number of recorded transformations.
func (ms *MutationSet) Len() int {
	if ms == nil {
		return 0
	}
	return len(ms.removed) + len(ms.replaced) + len(ms.redirected)
}

// Resolve follows the redirection chain of an object argument.
func (ms *MutationSet) Resolve(arg *Arg) *Arg {
	if arg.Via != "" {
		res := ms.Resolve(&Arg{Kind: arg.Kind, Name: arg.Name, Type: arg.Type, Obj: arg.Obj, Addr: arg.Addr})
		if res.Kind != ArgObject || res.IsNull() {
			return res
		}
		via := *res
		via.Name, via.Type, via.Via = arg.Name, arg.Type, arg.Via
		return &via
	}
	for steps := 0; arg.Kind == ArgObject && !arg.Obj.IsNull(); steps++ {
		next := ms.Redirect(arg.Obj)
		if next == nil {
			break
		}
		if steps > len(ms.redirected) {
			panic("redirection cycle at " + arg.Obj.Name)
		}
		arg = next
	}
	return arg
}

// effective returns the call that is emitted in place of c.
func (ms *MutationSet) effective(c *Call) *Call {
	if repl := ms.Replacement(c); repl != nil {
		return repl
	}
	return c
}

type FoldResult struct {
	Set *MutationSet
	// Applied mutations changed the set.
	Applied []Mutation
	// Redundant mutations were already contained in the base set.
	Redundant []Mutation
	// Shadowed mutations are contained in Set only because of mutations
	// applied earlier in the same fold, e.g. an instance after its bulk variant.
	Shadowed []Mutation
	// Conflicting mutations are incompatible with the base set or with
	// mutations applied earlier in the same fold; they were left out.
	Conflicting []Mutation
}

// Fold applies muts in order on top of a clone of base.
// Mutations that are already applied are skipped (Redundant if base has them,
// Shadowed otherwise), conflicting ones are left out and reported, the rest are applied.
func (m *Model) Fold(base *MutationSet, muts []Mutation) *FoldResult {
	res := &FoldResult{Set: base.Clone()}
	for _, mut := range muts {
		err := m.mutate(res.Set, mut)
		var conflict *ConflictError
		switch {
		case err == nil:
			res.Applied = append(res.Applied, mut)
		case errors.Is(err, ErrAlreadyApplied):
			if errors.Is(m.mutate(base.Clone(), mut), ErrAlreadyApplied) {
				res.Redundant = append(res.Redundant, mut)
			} else {
				res.Shadowed = append(res.Shadowed, mut)
			}
		case errors.As(err, &conflict):
			res.Conflicting = append(res.Conflicting, mut)
		default:
			panic(err)
		}
	}
	return res
}

// Apply returns a new set with mut applied, ms is left untouched.
func (m *Model) Apply(ms *MutationSet, mut Mutation) (*MutationSet, error) {
	ms1 := ms.Clone()
	if err := m.mutate(ms1, mut); err != nil {
		return nil, err
	}
	return ms1, nil
}
