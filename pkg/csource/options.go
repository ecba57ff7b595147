// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package csource

// Options control various aspects of source generation.
type Options struct {
	// Format the result with clang-format.
	Format bool `json:"format,omitempty"`
	// Descriptions adds the recorded textual form of returned objects as comments.
	Descriptions bool `json:"descriptions,omitempty"`
}

func DefaultOptions() Options {
	return Options{
		Descriptions: true,
	}
}
