// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"testing"
)

// ChainTrace records A()->set1, B(set1)->set2, C(set2) where B merely
// coalesces its argument.
const ChainTrace = `isltrace gentime=isl-0.27
predef name=ctx1 ty='isl_ctx *' ptr=0x1000 code='isl_ctx *ctx1 = isl_ctx_alloc();'
call_func fname=isl_set_read_from_str rettype='__isl_give isl_set *' numargs=2 parm0name=ctx parm0type='isl_ctx *' parm0ptr=0x1000 parm1name=str parm1type='const char *' parm1val='"{ [i] : 0 <= i < 10 }"'
return fname=isl_set_read_from_str rettype='__isl_give isl_set *' retptr=0x2000 desc='{ [i] : 0 <= i <= 9 }'
call_func fname=isl_set_coalesce rettype='__isl_give isl_set *' numargs=1 parm0name=set parm0type='__isl_take isl_set *' parm0ptr=0x2000
return fname=isl_set_coalesce rettype='__isl_give isl_set *' retptr=0x2100 desc='{ [i] : 0 <= i <= 9 }'
call_func fname=isl_set_is_empty rettype=isl_bool numargs=1 parm0name=set parm0type='__isl_keep isl_set *' parm0ptr=0x2100
return fname=isl_set_is_empty rettype=isl_bool retval=isl_bool_false
`

// ForeachTrace records a callback that is invoked twice with different bodies.
const ForeachTrace = `isltrace gentime=isl-0.27
predef name=ctx1 ty='isl_ctx *' ptr=0x1000 code='isl_ctx *ctx1 = isl_ctx_alloc();'
call_func fname=isl_union_set_read_from_str rettype='__isl_give isl_union_set *' numargs=2 parm0name=ctx parm0type='isl_ctx *' parm0ptr=0x1000 parm1name=str parm1type='const char *' parm1val='"{ A[i] : 0 <= i < 10; B[] }"'
return fname=isl_union_set_read_from_str rettype='__isl_give isl_union_set *' retptr=0x2000
callback callbacker=0x9000 fname=isl_union_set_foreach_set pname=fn retty=isl_stat numargs=2 paramtys='isl_set *, void *'
call_func fname=isl_union_set_foreach_set rettype=isl_stat numargs=3 parm0name=uset parm0type='__isl_keep isl_union_set *' parm0ptr=0x2000 parm1name=fn parm1type='isl_stat (*)(isl_set *, void *)' parm1ptr=0x9000 parm2name=user parm2type='void *' parm2ptr=0x0
callback_enter callbacker=0x9000 numargs=2 arg0ptr=0x3000
call_func fname=isl_set_free rettype='__isl_null isl_set *' numargs=1 parm0name=set parm0type='__isl_take isl_set *' parm0ptr=0x3000
return fname=isl_set_free rettype='__isl_null isl_set *' retptr=0x0
callback_exit callbacker=0x9000 retty=isl_stat retval=isl_stat_ok
callback_enter callbacker=0x9000 numargs=2 arg0ptr=0x3100
call_func fname=isl_set_coalesce rettype='__isl_give isl_set *' numargs=1 parm0name=set parm0type='__isl_take isl_set *' parm0ptr=0x3100
return fname=isl_set_coalesce rettype='__isl_give isl_set *' retptr=0x3200 desc='{ A[i] : 0 <= i <= 9 }'
call_func fname=isl_set_free rettype='__isl_null isl_set *' numargs=1 parm0name=set parm0type='__isl_take isl_set *' parm0ptr=0x3200
return fname=isl_set_free rettype='__isl_null isl_set *' retptr=0x0
callback_exit callbacker=0x9000 retty=isl_stat retval=isl_stat_ok
return fname=isl_union_set_foreach_set rettype=isl_stat retval=isl_stat_ok
call_func fname=isl_union_set_free rettype='__isl_null isl_union_set *' numargs=1 parm0name=uset parm0type='__isl_take isl_union_set *' parm0ptr=0x2000
return fname=isl_union_set_free rettype='__isl_null isl_union_set *' retptr=0x0
call_proc fname=isl_ctx_free rettype=void numargs=1 parm0name=ctx parm0type='isl_ctx *' parm0ptr=0x1000
`

// EscapeTrace stores a set from a callback into a global and uses it
// after the callback returned; it also passes handles the trace never defined.
const EscapeTrace = `isltrace gentime=isl-0.27
predef name=ctx1 ty='isl_ctx *' ptr=0x1000 code='isl_ctx *ctx1 = isl_ctx_alloc();'
call_func fname=isl_union_set_read_from_str rettype='__isl_give isl_union_set *' numargs=2 parm0name=ctx parm0type='isl_ctx *' parm0ptr=0x1000 parm1name=str parm1type='const char *' parm1val='"{ A[i] : 0 <= i < 10 }"'
return fname=isl_union_set_read_from_str rettype='__isl_give isl_union_set *' retptr=0x2000
callback callbacker=0x9000 fname=isl_union_set_foreach_set pname=fn retty=isl_stat numargs=2 paramtys='isl_set *, void *'
call_func fname=isl_union_set_foreach_set rettype=isl_stat numargs=3 parm0name=uset parm0type='__isl_keep isl_union_set *' parm0ptr=0x2000 parm1name=fn parm1type='isl_stat (*)(isl_set *, void *)' parm1ptr=0x9000 parm2name=user parm2type='void *' parm2ptr=0x7ffc0
callback_enter callbacker=0x9000 numargs=2 arg0ptr=0x3000 arg1ptr=0x7ffc0
call_func fname=isl_set_copy rettype='__isl_give isl_set *' numargs=1 parm0name=set parm0type='__isl_keep isl_set *' parm0ptr=0x3000
return fname=isl_set_copy rettype='__isl_give isl_set *' retptr=0x3100
callback_exit callbacker=0x9000 retty=isl_stat retval=isl_stat_ok
return fname=isl_union_set_foreach_set rettype=isl_stat retval=isl_stat_ok
call_func fname=isl_set_union rettype='__isl_give isl_set *' numargs=2 parm0name=set1 parm0type='__isl_take isl_set *' parm0ptr=0x3100 parm1name=set2 parm1type='__isl_take isl_set *' parm1ptr=0x5000
return fname=isl_set_union rettype='__isl_give isl_set *' retptr=0x3200
call_proc fname=isl_set_dump rettype=void numargs=1 parm0name=set parm0type='__isl_keep isl_set *' parm0ptr=0x3200
`

// ParseTest parses one of the traces above.
func ParseTest(t testing.TB, trace string) *Model {
	t.Helper()
	m, err := ParseData([]byte(trace))
	if err != nil {
		t.Fatalf("failed to parse trace: %v", err)
	}
	return m
}

// CallByFunc returns the n-th recorded call of fn.
func (m *Model) CallByFunc(fn string, n int) *Call {
	for _, c := range m.Calls {
		if c.Func == fn {
			if n == 0 {
				return c
			}
			n--
		}
	}
	return nil
}
