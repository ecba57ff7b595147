// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package repro

import (
	"context"
	"time"

	"github.com/Meinersbur/isl/pkg/oracle"
	"github.com/Meinersbur/isl/prog"
	"golang.org/x/sync/errgroup"
)

// trial is one candidate reduction: the accepted set with a block of candidates folded in.
type trial struct {
	ctx     context.Context
	gen     int
	start   int // index of the block in the candidate list
	block   []*candidate
	fold    *prog.FoldResult
	src     []byte
	calls   int
	res     *oracle.Result
	latency time.Duration
}

// pool runs trials on a fixed number of workers.
// Results of trials that were sent after the pool is stopped are dropped.
type pool struct {
	work chan *trial
	done chan *trial
	g    *errgroup.Group
	stop context.CancelFunc
}

func startPool(ctx context.Context, procs int, tester Tester) *pool {
	ctx, stop := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	p := &pool{
		work: make(chan *trial),
		done: make(chan *trial),
		g:    g,
		stop: stop,
	}
	for i := 0; i < procs; i++ {
		g.Go(func() error {
			for {
				var t *trial
				select {
				case t = <-p.work:
				case <-ctx.Done():
					return nil
				}
				start := time.Now()
				t.res = tester.Test(t.ctx, t.src)
				t.latency = time.Since(start)
				select {
				case p.done <- t:
				case <-ctx.Done():
					return nil
				}
			}
		})
	}
	return p
}

// shutdown waits for the running oracle invocations to return.
func (p *pool) shutdown() {
	p.stop()
	p.g.Wait()
}
