// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package log

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func init() {
	EnableLogCaching(4, 20)
}

func TestCaching(t *testing.T) {
	tests := []struct{ str, want string }{
		{"", ""},
		{"a", "a\n"},
		{"bb", "a\nbb\n"},
		{"ccc", "a\nbb\nccc\n"},
		{"dddd", "a\nbb\nccc\ndddd\n"},
		{"eeeee", "bb\nccc\ndddd\neeeee\n"},
		{"ffffff", "ccc\ndddd\neeeee\nffffff\n"},
		{"ggggggg", "eeeee\nffffff\nggggggg\n"},
		{"hhhhhhhh", "ggggggg\nhhhhhhhh\n"},
		{"jjjjjjjjjjjjjjjjjjjjjjjjj", "jjjjjjjjjjjjjjjjjjjjjjjjj\n"},
	}
	prependTime = false
	for _, test := range tests {
		Logf(1, "%v", test.str)
		assert.Equal(t, test.want, CachedLogOutput(), "wrote: %q", test.str)
	}
	// Verbose lines are not cached.
	Logf(2, "verbose")
	assert.Equal(t, "jjjjjjjjjjjjjjjjjjjjjjjjj\n", CachedLogOutput())
}

func TestVerboseWriter(t *testing.T) {
	prependTime = false
	fmt.Fprintf(VerboseWriter(1), "warn")
	Errorf("x%v", 1)
	fmt.Fprintf(VerboseWriter(2), "noise")
	assert.Equal(t, "warn\nERROR: x1\n", CachedLogOutput())
}
