// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package csource

import (
	"bytes"
	"errors"
	"math/rand"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/Meinersbur/isl/pkg/osutil"
	"github.com/Meinersbur/isl/pkg/testutil"
	"github.com/Meinersbur/isl/prog"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const banner = `int main() {
  const char *dynIslVersion = isl_version();
  const char *genIslVersion = "isl-0.27";
  printf("### ISL version  : %s### at generation: %s\n", dynIslVersion, genIslVersion);

`

func generate(t *testing.T, m *prog.Model, muts ...prog.Mutation) string {
	t.Helper()
	res := m.Fold(nil, muts)
	require.Len(t, res.Applied, len(muts))
	src, err := Write(m, res.Set, DefaultOptions())
	require.NoError(t, err)
	return string(src)
}

func checkSource(t *testing.T, want, got string) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("wrong source:\n%v", diff)
	}
}

func TestGenerateChain(t *testing.T) {
	m := prog.ParseTest(t, prog.ChainTrace)
	want := prologue + `
// variables used across callbacks

` + banner + `  isl_ctx *ctx1 = isl_ctx_alloc();
  isl_set *set1 = isl_set_read_from_str(ctx1, "{ [i] : 0 <= i < 10 }"); // { [i] : 0 <= i <= 9 }
  isl_set *set2 = isl_set_coalesce(set1); // { [i] : 0 <= i <= 9 }
  isl_set_is_empty(set2);
  return EXIT_SUCCESS;
}
`
	checkSource(t, want, generate(t, m))
}

func TestGenerateForeach(t *testing.T) {
	m := prog.ParseTest(t, prog.ForeachTrace)
	want := prologue + `
// variables used across callbacks

static isl_stat isl_union_set_foreach_set_fn_cb1(isl_set *param0, void *param1);

static isl_stat isl_union_set_foreach_set_fn_cb1(isl_set *param0, void *param1) {
  static int callidx = 0;
  switch (callidx++) {
  case 0: {
    isl_set_free(param0);
    return isl_stat_ok;
  } break;
  case 1: {
    isl_set *set3 = isl_set_coalesce(param0); // { A[i] : 0 <= i <= 9 }
    isl_set_free(set3);
    return isl_stat_ok;
  } break;
  default:
    // trace only recorded the calls above
    abort();
  }
}

` + banner + `  isl_ctx *ctx1 = isl_ctx_alloc();
  isl_union_set *uset1 = isl_union_set_read_from_str(ctx1, "{ A[i] : 0 <= i < 10; B[] }");
  isl_union_set_foreach_set(uset1, isl_union_set_foreach_set_fn_cb1, NULL);
  isl_union_set_free(uset1);
  isl_ctx_free(ctx1);
  return EXIT_SUCCESS;
}
`
	checkSource(t, want, generate(t, m))
}

func TestGenerateEscape(t *testing.T) {
	m := prog.ParseTest(t, prog.EscapeTrace)
	want := prologue + `
// variables used across callbacks
isl_set *set2;
isl_set *set3 = (isl_set *)0x5000;

static isl_stat isl_union_set_foreach_set_fn_cb1(isl_set *param0, void *param1);

static isl_stat isl_union_set_foreach_set_fn_cb1(isl_set *param0, void *param1) {
  static int callidx = 0;
  switch (callidx++) {
  case 0: {
    set2 = isl_set_copy(param0);
    return isl_stat_ok;
  } break;
  default:
    // trace only recorded the calls above
    abort();
  }
}

` + banner + `  isl_ctx *ctx1 = isl_ctx_alloc();
  isl_union_set *uset1 = isl_union_set_read_from_str(ctx1, "{ A[i] : 0 <= i < 10 }");
  isl_union_set_foreach_set(uset1, isl_union_set_foreach_set_fn_cb1, (void *)0x7ffc0);
  isl_set *set4 = isl_set_union(set2, set3);
  isl_set_dump(set4);
  return EXIT_SUCCESS;
}
`
	checkSource(t, want, generate(t, m))
}

func TestGenerateMutated(t *testing.T) {
	m := prog.ParseTest(t, prog.ForeachTrace)
	src := generate(t, m,
		prog.Mutation{Kind: prog.RemoveCall, Call: 3},
		prog.Mutation{Kind: prog.RemoveCall, Call: 4},
	)
	// The dispatcher keeps one case per recorded invocation.
	assert.Contains(t, src, "  case 0: {\n    return isl_stat_ok;\n  } break;\n")
	assert.Contains(t, src, "  case 1: {\n    isl_set_free(NULL);\n    return isl_stat_ok;\n  } break;\n")
	assert.NotContains(t, src, "set3")

	src = generate(t, m, prog.Mutation{Kind: prog.ReplaceLiteral, Call: 4})
	assert.Contains(t, src,
		`    isl_set *set3 = isl_set_read_from_str(isl_set_get_ctx(param0), "{ A[i] : 0 <= i <= 9 }");`+"\n")

	// Without the registering call the dispatcher is not emitted at all.
	src = generate(t, m, prog.Mutation{Kind: prog.RemoveCall, Call: 2})
	assert.NotContains(t, src, "isl_union_set_foreach_set_fn_cb1")
	assert.Contains(t, src, "  isl_union_set_free(uset1);\n")
}

func TestGenerateForward(t *testing.T) {
	m := prog.ParseTest(t, prog.ChainTrace)
	src := generate(t, m, prog.Mutation{Kind: prog.ForwardArg, Call: 2, Arg: 0})
	assert.Contains(t, src, "  isl_set_is_empty(set1);\n")
	assert.NotContains(t, src, "isl_set_coalesce")

	src = generate(t, m,
		prog.Mutation{Kind: prog.ReplaceLiteral, Call: 2},
		prog.Mutation{Kind: prog.RemoveCall, Call: 3},
	)
	// set2 is no longer used, the replacement is emitted as a bare call.
	assert.Contains(t, src, `  isl_set_read_from_str(isl_set_get_ctx(set1), "{ [i] : 0 <= i <= 9 }");`+"\n")
}

func TestGeneratePredefGlobal(t *testing.T) {
	m := prog.ParseTest(t, `
callback callbacker=0x9000 fname=isl_ctx_foreach pname=fn retty=void numargs=0 paramtys=''
predef name=ctx1 ty='isl_ctx *' ptr=0x1000 code='isl_ctx *ctx1 = isl_ctx_alloc();'
call_proc fname=isl_ctx_foreach numargs=1 parm0type='void (*)(void)' parm0ptr=0x9000
callback_enter callbacker=0x9000 numargs=0
call_proc fname=isl_ctx_free numargs=1 parm0type='isl_ctx *' parm0ptr=0x1000
callback_exit callbacker=0x9000 retty=void
`)
	src := generate(t, m)
	assert.Contains(t, src, "isl_ctx *ctx1;\n")
	assert.Contains(t, src, "  ctx1 = isl_ctx_alloc();\n")
	assert.Contains(t, src, "static void isl_ctx_foreach_fn_cb1(void);\n")
	assert.Contains(t, src, "  case 0: {\n    isl_ctx_free(ctx1);\n  } break;\n")
}

func TestGenerateDeterministic(t *testing.T) {
	rs := testutil.RandSource(t)
	r := rand.New(rs)
	for _, trace := range []string{prog.ChainTrace, prog.ForeachTrace, prog.EscapeTrace} {
		m := prog.ParseTest(t, trace)
		muts := m.Mutations()
		for i := 0; i < testutil.IterCount(); i++ {
			var subset []prog.Mutation
			for _, mut := range muts {
				if r.Intn(3) == 0 {
					subset = append(subset, mut)
				}
			}
			ms := m.Fold(nil, subset).Set
			src1, err := Write(m, ms, DefaultOptions())
			require.NoError(t, err)
			src2 := Generate(m, ms, m.Analyze(ms))
			require.Equal(t, string(src1), string(src2))
			checkDeclared(t, m, string(src1))
		}
	}
}

var (
	identRe = regexp.MustCompile(`\b([a-z]+[0-9]+)\b`)
	declRe  = regexp.MustCompile(`^\s*[a-z_]+ \*([a-z]+[0-9]+)( =|;)`)
)

// checkDeclared verifies that every object name used in src is declared before.
func checkDeclared(t *testing.T, m *prog.Model, src string) {
	t.Helper()
	names := make(map[string]bool)
	for _, obj := range m.Objects {
		names[obj.Name] = true
	}
	declared := make(map[string]bool)
	for _, line := range strings.Split(src, "\n") {
		if strings.HasPrefix(line, "#include") {
			continue
		}
		if decl := declRe.FindStringSubmatch(line); decl != nil {
			declared[decl[1]] = true
		}
		for _, match := range identRe.FindAllStringSubmatch(line, -1) {
			if names[match[1]] && !declared[match[1]] {
				t.Fatalf("%v is used before declaration in line %q\n%s", match[1], line, src)
			}
		}
	}
}

func TestDeclare(t *testing.T) {
	tests := []struct {
		typ  string
		name string
		want string
	}{
		{"isl_set *", "set1", "isl_set *set1"},
		{"__isl_give isl_set *", "set1", "isl_set *set1"},
		{"__isl_take isl_union_map*", "umap1", "isl_union_map *umap1"},
		{"const char *", "str", "const char *str"},
		{"isl_stat", "ret", "isl_stat ret"},
		{"char **", "argv", "char **argv"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, declare(test.typ, test.name))
	}
}

func TestAssignment(t *testing.T) {
	assert.Equal(t, "ctx1 = isl_ctx_alloc();", assignment("isl_ctx *ctx1 = isl_ctx_alloc();", "ctx1"))
	assert.Equal(t, "isl_foo();", assignment("isl_foo();", "ctx1"))
}

func TestComment(t *testing.T) {
	assert.Equal(t, "{ [i] : i >= 0 }", comment("{ [i] :\n\ti >= 0 }"))
	assert.Equal(t, "a", comment("a\\"))
}

func TestCompilerArgs(t *testing.T) {
	opts := BuildOptions{
		Compiler:    "/usr/bin/gcc-12",
		CFlags:      []string{"-O1"},
		IncludeDirs: []string{"/opt/isl/include"},
		LibDirs:     []string{"/opt/isl/lib"},
		Libs:        []string{"isl", "gmp"},
	}
	want := []string{"-fmax-errors=1", "-g", "-Werror=incompatible-pointer-types", "-O1",
		"-I", "/opt/isl/include", SourceFile, "-L", "/opt/isl/lib", "-Wl,-rpath,/opt/isl/lib",
		"-lisl", "-lgmp", "-o", "/tmp/bin"}
	assert.Equal(t, want, compilerArgs(opts, "/tmp/bin"))

	opts.Compiler = "clang"
	assert.NotContains(t, compilerArgs(opts, "/tmp/bin"), "-fmax-errors=1")
}

func TestBuildDescriptor(t *testing.T) {
	want := `cmake_minimum_required(VERSION 3.13)
project(isltrace C)

add_executable(isltrace isltrace.c)
target_include_directories(isltrace PRIVATE "/opt/isl/include")
target_link_directories(isltrace PRIVATE "/opt/isl/lib" "/opt/gmp/lib")
set_target_properties(isltrace PROPERTIES BUILD_RPATH "/opt/isl/lib;/opt/gmp/lib")
target_link_libraries(isltrace PRIVATE "isl" "gmp")
`
	got := BuildDescriptor(BuildOptions{
		IncludeDirs: []string{"/opt/isl/include"},
		LibDirs:     []string{"/opt/isl/lib", "/opt/gmp/lib"},
		Libs:        []string{"isl", "gmp"},
	})
	checkSource(t, want, string(got))
	assert.Equal(t, `"a\\b\"c\$d"`, cmakeQuote(`a\b"c$d`))
}

func TestBuildNoCompiler(t *testing.T) {
	_, err := Build(t.TempDir(), []byte("int main() {}"), BuildOptions{
		Compiler: "no-such-compiler-for-isltrace",
		Timeout:  time.Minute,
	})
	assert.True(t, errors.Is(err, ErrNoCompiler), "err: %v", err)
}

func TestBuild(t *testing.T) {
	compiler, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler")
	}
	dir := t.TempDir()
	opts := BuildOptions{
		Compiler: compiler,
		Timeout:  time.Minute,
	}
	bin, err := Build(dir, []byte("#include <stdio.h>\nint main() { printf(\"ok\"); return 0; }\n"), opts)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, SourceFile))
	assert.FileExists(t, filepath.Join(dir, cmakeFile))
	out, err := osutil.RunSplit(time.Minute, osutil.Command(bin))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out.Stdout))
	assert.Equal(t, 0, out.ExitCode)

	_, err = Build(dir, []byte("int main() { return undeclared; }\n"), opts)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCompiler)
}

func TestFormat(t *testing.T) {
	if _, err := exec.LookPath("clang-format"); err != nil {
		t.Skip("clang-format is not installed")
	}
	m := prog.ParseTest(t, prog.ForeachTrace)
	src := generate(t, m)
	formatted, err := Format([]byte(src))
	require.NoError(t, err)
	assert.Contains(t, string(formatted), "isl_union_set_foreach_set(uset1, isl_union_set_foreach_set_fn_cb1, NULL);")
	assert.True(t, bytes.HasPrefix(formatted, []byte("#include")))
}
