// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package config

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Nested struct {
	Aaa int    `json:"aaa" yaml:"aaa"`
	Bbb string `json:"bbb" yaml:"bbb"`
}

type Config struct {
	Foo int      `json:"foo" yaml:"foo"`
	Bar string   `json:"bar" yaml:"bar"`
	Qux []string `json:"qux" yaml:"qux"`
	Box Nested   `json:"box" yaml:"box"`
	Boq *Nested  `json:"boq" yaml:"boq"`
}

func TestLoadData(t *testing.T) {
	tests := []struct {
		input  string
		output Config
		err    string
	}{
		{
			input:  `{"foo": 42}`,
			output: Config{Foo: 42},
		},
		{
			input: `
# comment
{
	"foo": 1,
	# another comment
	"box": {"aaa": 12, "bbb": "bbb"}
}`,
			output: Config{Foo: 1, Box: Nested{Aaa: 12, Bbb: "bbb"}},
		},
		{
			input:  `{"qux": ["aaa", "bbb"], "boq": {"aaa": 1}}`,
			output: Config{Qux: []string{"aaa", "bbb"}, Boq: &Nested{Aaa: 1}},
		},
		{
			input: `{"foobar": 42}`,
			err:   `failed to parse config file: json: unknown field "foobar"`,
		},
	}
	for i, test := range tests {
		var cfg Config
		err := LoadData([]byte(test.input), &cfg)
		if test.err != "" {
			assert.EqualError(t, err, test.err, "#%v", i)
			continue
		}
		require.NoError(t, err, "#%v", i)
		if diff := cmp.Diff(test.output, cfg); diff != "" {
			t.Errorf("#%v: config mismatch (-want +got):\n%v", i, diff)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	var cfg Config
	require.NoError(t, LoadYAML([]byte("foo: 3\nqux: [a, b]\nbox:\n  bbb: x\n"), &cfg))
	assert.Equal(t, Config{Foo: 3, Qux: []string{"a", "b"}, Box: Nested{Bbb: "x"}}, cfg)
	assert.Error(t, LoadYAML([]byte("unknown: 1\n"), &cfg))
	assert.NoError(t, LoadYAML(nil, &cfg))
}

func TestSaveLoadFile(t *testing.T) {
	cfg := Config{Foo: 7, Bar: "bar", Qux: []string{"q"}, Boq: &Nested{Bbb: "z"}}
	for _, name := range []string{"cfg.json", "cfg.yaml"} {
		file := filepath.Join(t.TempDir(), name)
		require.NoError(t, SaveFile(file, cfg))
		var loaded Config
		require.NoError(t, LoadFile(file, &loaded))
		assert.Equal(t, cfg, loaded, name)
	}
}
