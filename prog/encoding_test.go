// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shape flattens the model into comparable strings.
func shape(m *Model) []string {
	var res []string
	var level func(lvl *Level, indent string)
	level = func(lvl *Level, indent string) {
		for _, obj := range lvl.Params {
			res = append(res, fmt.Sprintf("%vparam %v", indent, obj))
		}
		for _, c := range lvl.Calls {
			line := fmt.Sprintf("%v%v", indent, c)
			if c.Ret != nil {
				line += fmt.Sprintf(" -> %v %q", c.Ret.Name, c.Ret.Type)
			}
			if c.RetVal != "" {
				line += " = " + c.RetVal
			}
			if c.Desc != "" {
				line += " // " + c.Desc
			}
			res = append(res, line)
			for _, nested := range c.Nested {
				res = append(res, fmt.Sprintf("%v%v:", indent, nested))
				level(nested, indent+"  ")
			}
		}
		if lvl.Ret != nil {
			res = append(res, fmt.Sprintf("%vreturn %v", indent, lvl.Ret))
		}
	}
	level(m.Main, "")
	for _, obj := range m.Objects {
		res = append(res, fmt.Sprintf("object %v %q 0x%x %v", obj.Name, obj.Type, obj.Addr, obj.Init))
	}
	for _, cb := range m.Callbackers {
		res = append(res, fmt.Sprintf("callbacker %v %v %q %q", cb.Name, cb.Func, cb.RetType, cb.ParamTypes))
	}
	return res
}

func TestSerializeRoundTrip(t *testing.T) {
	for name, trace := range map[string]string{
		"chain":   ChainTrace,
		"foreach": ForeachTrace,
		"escape":  EscapeTrace,
	} {
		t.Run(name, func(t *testing.T) {
			m := ParseTest(t, trace)
			data := m.Serialize()
			m1, err := ParseData(data)
			require.NoError(t, err, "%s", data)
			if diff := cmp.Diff(shape(m), shape(m1)); diff != "" {
				t.Fatalf("model changed after round trip:\n%v\n%s", diff, data)
			}
			assert.Equal(t, string(data), string(m1.Serialize()))
		})
	}
}

func TestSerializeCallbackOrder(t *testing.T) {
	// Callback records precede the first reference even if the trace
	// declared them elsewhere; unreferenced callbacks go last.
	m := ParseTest(t, `
callback callbacker=0x8 fname=g pname=fn retty=void numargs=0
callback callbacker=0x9 fname=f pname=fn retty=void numargs=0
call_proc fname=f numargs=1 parm0type=fn parm0ptr=0x9
callback_enter callbacker=0x9 numargs=0
callback_exit callbacker=0x9 retty=void
`)
	want := "callback callbacker=0x9 fname=f pname=fn retty=void numargs=0 paramtys=''\n" +
		"call_proc fname=f rettype='' numargs=1 parm0type=fn parm0ptr=0x9\n" +
		"callback_enter callbacker=0x9 numargs=0\n" +
		"callback_exit callbacker=0x9 retty=void\n" +
		"callback callbacker=0x8 fname=g pname=fn retty=void numargs=0 paramtys=''\n"
	assert.Equal(t, want, string(m.Serialize()))
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"":                   "''",
		"isl_set_free":       "isl_set_free",
		"0x1000":             "0x1000",
		"isl_set *":          "'isl_set *'",
		`"{ [i] }"`:          `'"{ [i] }"'`,
		"it's":               `'it'\''s'`,
		"#hash":              "'#hash'",
		"isl_stat (*)(void)": "'isl_stat (*)(void)'",
	}
	for in, want := range tests {
		assert.Equal(t, want, quote(in), "quote(%q)", in)
	}
}
