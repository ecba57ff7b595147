// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package repro searches for a minimal combination of trace mutations that
// still reproduces the failure. The search is a concurrent variant of ddmin:
// candidates are tried in blocks, the first interesting block wins and the
// block size halves once a sequential and a shuffled pass found nothing.
package repro

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/Meinersbur/isl/pkg/csource"
	"github.com/Meinersbur/isl/pkg/log"
	"github.com/Meinersbur/isl/pkg/oracle"
	"github.com/Meinersbur/isl/pkg/osutil"
	"github.com/Meinersbur/isl/pkg/stat"
	"github.com/Meinersbur/isl/prog"
)

// Tester judges generated source; *oracle.Oracle is the production implementation.
type Tester interface {
	Test(ctx context.Context, src []byte) *oracle.Result
}

type Options struct {
	// Number of concurrent trials.
	Procs int
	// Seed of the shuffled passes, 0 means time based.
	Seed int64
	// Source options of the final result; trials are never formatted.
	Source csource.Options
	// Output is rewritten with the best source after every acceptance.
	Output string
	// HistoryDir keeps every accepted source if set.
	HistoryDir string
	Compress   bool
	// Logf defaults to log.Logf.
	Logf func(v int, msg string, args ...any)
}

type Result struct {
	Set      *prog.MutationSet
	Source   []byte
	Accepted []prog.Mutation
	// Calls is the number of calls in Source.
	Calls    int
	Trials   int
	Duration time.Duration
	// Interrupted is set if ctx was cancelled before the search converged.
	Interrupted bool
}

var ErrNotInteresting = errors.New("the unmodified trace does not reproduce the failure")

var (
	statTrials      = stat.New("trials", "Number of tested candidates", stat.Rate{}, stat.Prometheus("isl_reduce_trials"))
	statInteresting = stat.New("interesting", "Candidates that reproduced", stat.Prometheus("isl_reduce_interesting"))
	statBoring      = stat.New("boring", "Candidates that failed differently", stat.Prometheus("isl_reduce_boring"))
	statMalformed   = stat.New("malformed", "Candidates that did not build or run", stat.Prometheus("isl_reduce_malformed"))
	statSkip        = stat.New("skip", "Candidates with unexpected exit status or stdout",
		stat.Prometheus("isl_reduce_skip"))
	statCancelled = stat.New("cancelled", "Results dropped after an acceptance", stat.Prometheus("isl_reduce_cancelled"))
	statAccepted  = stat.New("accepted", "Accepted mutations", stat.Console, stat.Prometheus("isl_reduce_accepted"))
	statCands     = stat.New("candidates", "Mutations left to try", stat.Console, stat.Prometheus("isl_reduce_candidates"))
	statBatch     = stat.New("batch size", "Current block size", stat.Console, stat.Prometheus("isl_reduce_batch"))
	statCalls     = stat.New("calls", "Calls in the best reduction", stat.Console, stat.Prometheus("isl_reduce_calls"))
	statTestTime  = stat.New("test time", "Oracle latency (ms)", stat.Distribution{},
		stat.Prometheus("isl_reduce_test_ms"))
)

var verdictStats = map[oracle.Verdict]*stat.Val{
	oracle.Interesting: statInteresting,
	oracle.Boring:      statBoring,
	oracle.Malformed:   statMalformed,
	oracle.Skip:        statSkip,
}

// candidate remembers the catalog position to restore the order after shuffled passes.
type candidate struct {
	mut prog.Mutation
	pos int
}

type reducer struct {
	m      *prog.Model
	tester Tester
	opts   Options
	logf   func(v int, msg string, args ...any)
	rnd    *rand.Rand
	pool   *pool

	ms         *prog.MutationSet
	src        []byte
	calls      int
	candidates []*candidate
	accepted   []prog.Mutation
	history    *history
	gen        int
	trials     int
}

// Run minimizes the trace m with respect to tester. It fails with
// ErrNotInteresting if the unmodified trace does not reproduce.
// If ctx is cancelled, the best reduction found so far is returned.
func Run(ctx context.Context, m *prog.Model, tester Tester, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Procs < 1 {
		opts.Procs = 1
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	r := &reducer{
		m:      m,
		tester: tester,
		opts:   opts,
		logf:   opts.Logf,
		rnd:    rand.New(rand.NewSource(opts.Seed)),
		ms:     prog.NewMutationSet(),
	}
	if r.logf == nil {
		r.logf = log.Logf
	}
	for i, mut := range m.Mutations() {
		r.candidates = append(r.candidates, &candidate{mut: mut, pos: i})
	}
	if err := r.baseline(ctx); err != nil {
		return nil, err
	}
	r.pool = startPool(ctx, opts.Procs, tester)
	r.search(ctx)
	r.pool.shutdown()
	res, err := r.result()
	if err != nil {
		return nil, err
	}
	res.Interrupted = ctx.Err() != nil
	res.Duration = time.Since(start)
	r.logf(0, "reduced to %v calls with %v mutations in %v trials (%v)",
		res.Calls, len(res.Accepted), res.Trials, res.Duration)
	return res, nil
}

// generate renders ms without formatting; trials never run clang-format.
func (r *reducer) generate(ms *prog.MutationSet) ([]byte, int) {
	snap := r.m.Analyze(ms)
	opts := r.opts.Source
	opts.Format = false
	if opts == csource.DefaultOptions() {
		return csource.Generate(r.m, ms, snap), snap.NumCalls()
	}
	src, err := csource.Write(r.m, ms, opts)
	if err != nil {
		panic(err)
	}
	return src, snap.NumCalls()
}

func (r *reducer) baseline(ctx context.Context) error {
	r.src, r.calls = r.generate(r.ms)
	r.logf(0, "testing the unmodified trace: %v calls, %v candidate mutations", r.calls, len(r.candidates))
	res := r.test(ctx, r.src)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if res.Verdict != oracle.Interesting {
		if res.Err != nil {
			return fmt.Errorf("%w: %v: %w", ErrNotInteresting, res.Verdict, res.Err)
		}
		return fmt.Errorf("%w: %v\nstdout: %s\nstderr: %s", ErrNotInteresting, res.Verdict, res.Stdout, res.Stderr)
	}
	statCalls.Set(r.calls)
	statCands.Set(len(r.candidates))
	if r.opts.HistoryDir != "" {
		h, err := newHistory(r.opts.HistoryDir, r.opts.Compress, r.src)
		if err != nil {
			return err
		}
		r.history = h
	}
	return r.writeOutput()
}

func (r *reducer) test(ctx context.Context, src []byte) *oracle.Result {
	start := time.Now()
	res := r.tester.Test(ctx, src)
	r.record(res, time.Since(start))
	return res
}

func (r *reducer) record(res *oracle.Result, latency time.Duration) {
	r.trials++
	statTrials.Add(1)
	verdictStats[res.Verdict].Add(1)
	statTestTime.Add(int(latency.Milliseconds()))
}

// search runs passes with shrinking block sizes until a pass at size 1 finds nothing.
// A shuffled pass follows only a sequential pass that found nothing; any
// acceptance repeats the sequential pass at the same size.
func (r *reducer) search(ctx context.Context) {
	size := max(1, len(r.candidates)/32)
	for len(r.candidates) != 0 && ctx.Err() == nil {
		statBatch.Set(size)
		r.logf(0, "%v", heartbeat())
		found := r.sweep(ctx, size, false)
		if !found && ctx.Err() == nil && len(r.candidates) != 0 {
			found = r.sweep(ctx, size, true)
		}
		if found {
			continue
		}
		if size == 1 {
			break
		}
		size = (size + 1) / 2
	}
}

// sweep partitions the candidates into blocks of size and tests them concurrently.
// After an acceptance scanning resumes at the first block that was not judged.
func (r *reducer) sweep(ctx context.Context, size int, shuffled bool) bool {
	if shuffled {
		r.rnd.Shuffle(len(r.candidates), func(i, j int) {
			r.candidates[i], r.candidates[j] = r.candidates[j], r.candidates[i]
		})
		defer func() {
			sort.SliceStable(r.candidates, func(i, j int) bool {
				return r.candidates[i].pos < r.candidates[j].pos
			})
		}()
	}
	r.gen++
	sweepCtx, cancel := context.WithCancel(ctx)
	defer func() { cancel() }()
	found := false
	defer func() {
		r.logf(1, "%v pass at block size %v found %v", passName(shuffled), size, found)
	}()
	pos := 0
	var next *trial
	inflight := make(map[*trial]bool)
	for ctx.Err() == nil {
		if next == nil && len(inflight) < r.opts.Procs {
			next, pos = r.nextTrial(sweepCtx, pos, size)
			if next != nil && bytes.Equal(next.src, r.src) {
				// The block has no visible effect on the program.
				r.accept(next)
				found = true
				pos = r.restart(next.start, inflight, nil)
				next = nil
				cancel()
				sweepCtx, cancel = r.newGeneration(ctx, inflight)
				continue
			}
		}
		if next == nil && len(inflight) == 0 {
			break
		}
		var work chan *trial
		if next != nil {
			work = r.pool.work
		}
		select {
		case work <- next:
			inflight[next] = true
			next = nil
		case t := <-r.pool.done:
			if t.gen != r.gen {
				statCancelled.Add(1)
				continue
			}
			delete(inflight, t)
			r.record(t.res, t.latency)
			r.logf(1, "block %v+%v (%v applied): %v", t.start, len(t.block), len(t.fold.Applied), t.res.Verdict)
			if t.res.Verdict != oracle.Interesting {
				continue
			}
			r.accept(t)
			found = true
			pos = r.restart(t.start, inflight, next)
			next = nil
			cancel()
			sweepCtx, cancel = r.newGeneration(ctx, inflight)
		case <-ctx.Done():
		}
	}
	return found
}

// newGeneration makes the results of all outstanding trials stale.
func (r *reducer) newGeneration(ctx context.Context, inflight map[*trial]bool) (context.Context, context.CancelFunc) {
	r.gen++
	for t := range inflight {
		delete(inflight, t)
	}
	return context.WithCancel(ctx)
}

// restart returns the first position that has not been judged after an
// acceptance at start. Called before inflight is cleared.
func (r *reducer) restart(start int, inflight map[*trial]bool, next *trial) int {
	for t := range inflight {
		start = min(start, t.start)
	}
	if next != nil {
		start = min(start, next.start)
	}
	return start
}

// nextTrial builds the trial for the first block at or after pos that changes the accepted set.
// Candidates that the accepted set already contains are dropped, blocks that only
// conflict are skipped. Shadowed candidates stay until their block is accepted.
func (r *reducer) nextTrial(ctx context.Context, pos, size int) (*trial, int) {
	for pos < len(r.candidates) {
		end := min(pos+size, len(r.candidates))
		block := r.candidates[pos:end]
		fold := r.m.Fold(r.ms, mutations(block))
		if len(fold.Redundant) != 0 {
			r.dropCandidates(pos, end, fold.Redundant)
			statCands.Set(len(r.candidates))
			continue
		}
		if len(fold.Applied) == 0 {
			pos = end
			continue
		}
		src, calls := r.generate(fold.Set)
		return &trial{
			ctx:   ctx,
			gen:   r.gen,
			start: pos,
			block: block,
			fold:  fold,
			src:   src,
			calls: calls,
		}, end
	}
	return nil, pos
}

// accept makes the mutations of t permanent and removes its block from the candidates.
// Conflicting mutations of the block stay candidates.
func (r *reducer) accept(t *trial) {
	r.ms = t.fold.Set
	r.src = t.src
	r.calls = t.calls
	r.accepted = append(r.accepted, t.fold.Applied...)
	var drop []prog.Mutation
	drop = append(drop, t.fold.Applied...)
	drop = append(drop, t.fold.Redundant...)
	drop = append(drop, t.fold.Shadowed...)
	r.dropCandidates(t.start, t.start+len(t.block), drop)
	statAccepted.Add(len(t.fold.Applied))
	statCands.Set(len(r.candidates))
	statCalls.Set(r.calls)
	r.logf(0, "accepted %v: %v calls, %v candidates left", describe(t.fold.Applied), r.calls, len(r.candidates))
	if r.history != nil {
		if err := r.history.add(r.src); err != nil {
			log.Errorf("failed to write history: %v", err)
		}
	}
	if err := r.writeOutput(); err != nil {
		log.Errorf("failed to write output: %v", err)
	}
}

// dropCandidates removes the muts from candidates[start:end].
func (r *reducer) dropCandidates(start, end int, muts []prog.Mutation) {
	drop := make(map[string]bool)
	for _, mut := range muts {
		drop[mut.String()] = true
	}
	var keep []*candidate
	for _, cand := range r.candidates[start:end] {
		if !drop[cand.mut.String()] {
			keep = append(keep, cand)
		}
	}
	rest := append(keep, r.candidates[end:]...)
	r.candidates = append(r.candidates[:start:start], rest...)
}

func (r *reducer) writeOutput() error {
	if r.opts.Output == "" {
		return nil
	}
	return osutil.WriteFileAtomically(r.opts.Output, r.src)
}

func (r *reducer) result() (*Result, error) {
	src, err := csource.Write(r.m, r.ms, r.opts.Source)
	if err != nil {
		if src == nil {
			return nil, err
		}
		log.Errorf("%v", err)
	}
	res := &Result{
		Set:      r.ms,
		Source:   src,
		Accepted: r.accepted,
		Calls:    r.calls,
		Trials:   r.trials,
	}
	if r.opts.Output != "" {
		if err := osutil.WriteFileAtomically(r.opts.Output, src); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func mutations(block []*candidate) []prog.Mutation {
	muts := make([]prog.Mutation, len(block))
	for i, cand := range block {
		muts[i] = cand.mut
	}
	return muts
}

func describe(muts []prog.Mutation) string {
	if len(muts) > 3 {
		return fmt.Sprintf("%v, %v and %v more", muts[0], muts[1], len(muts)-2)
	}
	var buf bytes.Buffer
	for i, mut := range muts {
		if i != 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(mut.String())
	}
	return buf.String()
}

func passName(shuffled bool) string {
	if shuffled {
		return "shuffled"
	}
	return "sequential"
}

// heartbeat formats the console metrics.
func heartbeat() string {
	var parts []string
	for _, v := range stat.Collect(stat.Console) {
		parts = append(parts, fmt.Sprintf("%v %v", v.Name, v.Value))
	}
	return strings.Join(parts, ", ")
}
