// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Reachability analysis of a model under a mutation set.

package prog

// Snapshot is the result of Analyze for one (model, mutation set) pair.
type Snapshot struct {
	// Calls that are emitted (keyed by the recorded call, see Effective).
	Calls map[*Call]bool
	// Objects that are defined and used by emitted calls.
	Objects map[*Object]bool
	// Global objects are used outside of the level that defined them.
	Global map[*Object]bool
	// Callbackers whose dispatcher is emitted.
	Callbackers map[*Callbacker]bool

	ms      *MutationSet
	defined map[*Object]bool
	uses    map[*Object]map[*Level]bool
}

// Analyze computes which calls, objects and callbackers survive ms.
// The walk starts at the main level; the invocations of a callbacker are
// only visited once a live call passes it as an argument.
func (m *Model) Analyze(ms *MutationSet) *Snapshot {
	s := &Snapshot{
		Calls:       make(map[*Call]bool),
		Objects:     make(map[*Object]bool),
		Global:      make(map[*Object]bool),
		Callbackers: make(map[*Callbacker]bool),
		ms:          ms,
		defined:     make(map[*Object]bool),
		uses:        make(map[*Object]map[*Level]bool),
	}
	s.walkLevel(m.Main)
	for obj, levels := range s.uses {
		if !s.defined[obj] {
			continue
		}
		s.Objects[obj] = true
		if obj.Level == nil {
			s.Global[obj] = true
			continue
		}
		for lvl := range levels {
			if lvl != obj.Level {
				s.Global[obj] = true
			}
		}
	}
	return s
}

func (s *Snapshot) walkLevel(lvl *Level) {
	for _, obj := range lvl.Params {
		if obj != nil {
			s.defined[obj] = true
		}
	}
	for _, c := range lvl.Calls {
		if s.ms.IsRemoved(c) {
			continue
		}
		s.Calls[c] = true
		eff := s.Effective(c)
		for _, arg := range eff.Args {
			s.use(arg, lvl)
		}
		if eff.Ret != nil {
			s.defined[eff.Ret] = true
		}
	}
	if lvl.Ret != nil {
		s.use(lvl.Ret, lvl)
	}
}

func (s *Snapshot) use(arg *Arg, lvl *Level) {
	arg = s.ms.Resolve(arg)
	switch arg.Kind {
	case ArgObject:
		obj := arg.Obj
		if obj.IsNull() {
			return
		}
		if obj.Level == nil {
			s.defined[obj] = true
		}
		if s.uses[obj] == nil {
			s.uses[obj] = make(map[*Level]bool)
		}
		s.uses[obj][lvl] = true
	case ArgCallback:
		cb := arg.Callback
		if s.Callbackers[cb] {
			return
		}
		s.Callbackers[cb] = true
		for _, inv := range cb.Invocations {
			s.walkLevel(inv)
		}
	}
}

// Effective returns the call emitted in place of the recorded call c.
func (s *Snapshot) Effective(c *Call) *Call {
	return s.ms.effective(c)
}

// Resolve returns the value emitted for arg: redirections are followed
// and references to objects that are never defined become NULL.
func (s *Snapshot) Resolve(arg *Arg) *Arg {
	res := s.ms.Resolve(arg)
	if res.Kind == ArgObject && !res.IsNull() && !s.Objects[res.Obj] {
		return NullArg(arg.Name, arg.Type)
	}
	return res
}

// Used says if the object is referenced by an emitted call.
func (s *Snapshot) Used(obj *Object) bool {
	return obj != nil && s.Objects[obj]
}

func (s *Snapshot) NumCalls() int {
	return len(s.Calls)
}
