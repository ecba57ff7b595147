// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prog

import (
	"strings"
)

// Annotations that do not change the C type.
var typeQualifiers = []string{"__isl_give", "__isl_take", "__isl_keep", "__isl_null", "__isl_export", "const"}

// normalizeType strips qualifiers and whitespace: "__isl_take isl_set *" -> "isl_set*".
func normalizeType(typ string) string {
	fields := strings.Fields(strings.ReplaceAll(typ, "*", " * "))
	res := make([]string, 0, len(fields))
outer:
	for _, f := range fields {
		for _, q := range typeQualifiers {
			if f == q {
				continue outer
			}
		}
		res = append(res, f)
	}
	return strings.ReplaceAll(strings.Join(res, " "), " *", "*")
}

func isPointerType(typ string) bool {
	return strings.HasSuffix(strings.TrimSpace(typ), "*")
}

// pointeeType returns the struct name of a pointer type: "isl_set *" -> "isl_set".
func pointeeType(typ string) string {
	t := normalizeType(typ)
	if !strings.HasSuffix(t, "*") {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(t, "*"))
}

// isHandleType says if typ is a pointer to an isl object.
func isHandleType(typ string) bool {
	pointee := pointeeType(typ)
	return strings.HasPrefix(pointee, "isl_") && !strings.Contains(pointee, "*")
}

func isContextType(typ string) bool {
	return pointeeType(typ) == "isl_ctx"
}

func sameType(a, b string) bool {
	return normalizeType(a) == normalizeType(b)
}

var shortNames = map[string]string{
	"isl_ctx":                  "ctx",
	"isl_printer":              "printer",
	"isl_id":                   "id",
	"isl_multi_id":             "mid",
	"isl_space":                "space",
	"isl_local_space":          "ls",
	"isl_set":                  "set",
	"isl_union_set":            "uset",
	"isl_basic_set":            "bset",
	"isl_map":                  "map",
	"isl_union_map":            "umap",
	"isl_basic_map":            "bmap",
	"isl_aff":                  "aff",
	"isl_multi_aff":            "ma",
	"isl_pw_aff":               "pwaff",
	"isl_pw_multi_aff":         "pwma",
	"isl_multi_pw_aff":         "mpwa",
	"isl_union_pw_aff":         "upwa",
	"isl_union_pw_multi_aff":   "upwma",
	"isl_multi_union_pw_aff":   "mupwa",
	"isl_val":                  "val",
	"isl_multi_val":            "mval",
	"isl_point":                "point",
	"isl_constraint":           "constr",
	"isl_union_access_info":    "accesses",
	"isl_union_flow":           "flow",
	"isl_schedule":             "sched",
	"isl_schedule_node":        "node",
	"isl_schedule_constraints": "constraints",
	"isl_ast_build":            "build",
	"isl_ast_node":             "node",
	"isl_ast_expr":             "expr",
	"isl_ast_print_options":    "options",
	"isl_vec":                  "vec",
	"isl_mat":                  "mat",
	"isl_fixed_box":            "box",
	"isl_stride_info":          "stride",
	"isl_id_to_ast_expr":       "idmap",
	"isl_union_pw_qpolynomial": "upwqp",
	"isl_pw_qpolynomial":       "pwqp",
	"isl_qpolynomial":          "qp",
	"isl_term":                 "term",
	"isl_restriction":          "restriction",
	"isl_access_info":          "access",
	"isl_flow":                 "flow",
}

// shortName returns the variable name prefix for objects of type typ.
func shortName(typ string) string {
	pointee := pointeeType(typ)
	if pointee == "" {
		return "val"
	}
	if name := shortNames[pointee]; name != "" {
		return name
	}
	if strings.HasSuffix(pointee, "_list") {
		return "list"
	}
	return "ptr"
}

// Types that can be reconstructed from their textual description.
var readFromStr = map[string]string{
	"isl_set":                "isl_set_read_from_str",
	"isl_map":                "isl_map_read_from_str",
	"isl_basic_set":          "isl_basic_set_read_from_str",
	"isl_basic_map":          "isl_basic_map_read_from_str",
	"isl_union_set":          "isl_union_set_read_from_str",
	"isl_union_map":          "isl_union_map_read_from_str",
	"isl_aff":                "isl_aff_read_from_str",
	"isl_pw_aff":             "isl_pw_aff_read_from_str",
	"isl_multi_aff":          "isl_multi_aff_read_from_str",
	"isl_pw_multi_aff":       "isl_pw_multi_aff_read_from_str",
	"isl_multi_pw_aff":       "isl_multi_pw_aff_read_from_str",
	"isl_union_pw_aff":       "isl_union_pw_aff_read_from_str",
	"isl_union_pw_multi_aff": "isl_union_pw_multi_aff_read_from_str",
	"isl_multi_union_pw_aff": "isl_multi_union_pw_aff_read_from_str",
	"isl_val":                "isl_val_read_from_str",
	"isl_multi_val":          "isl_multi_val_read_from_str",
	"isl_schedule":           "isl_schedule_read_from_str",
}

// Types that provide an isl_<type>_get_ctx getter.
var ctxGetters = makeSet(
	"isl_set", "isl_map", "isl_basic_set", "isl_basic_map", "isl_union_set",
	"isl_union_map", "isl_space", "isl_local_space", "isl_aff", "isl_pw_aff",
	"isl_multi_aff", "isl_pw_multi_aff", "isl_multi_pw_aff", "isl_union_pw_aff",
	"isl_union_pw_multi_aff", "isl_multi_union_pw_aff", "isl_val",
	"isl_multi_val", "isl_id", "isl_schedule", "isl_schedule_node",
	"isl_schedule_constraints", "isl_constraint", "isl_point", "isl_printer",
	"isl_ast_build", "isl_ast_node", "isl_ast_expr", "isl_vec", "isl_mat",
	"isl_union_access_info", "isl_union_flow",
)

func makeSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

func isReadFromStr(fn string) bool {
	for _, f := range readFromStr {
		if f == fn {
			return true
		}
	}
	return false
}
