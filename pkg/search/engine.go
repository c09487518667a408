// Package search maps peptide queries onto a protein index by backtracking
// over backward extensions, pruning on mass, ambiguity, modification and
// edit budgets.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/PepMap/pkg/core"
	"github.com/ChrisMcGann/PepMap/pkg/index"
	"github.com/ChrisMcGann/PepMap/pkg/sites"
)

// Engine runs queries against one index. An Engine holds no per-query state
// and is safe for concurrent use.
type Engine struct {
	index   index.Accessor
	table   *core.MassTable
	sites   *sites.Enumerator
	workers int
	ranking Ranking
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets how many subtrees of one query are walked in parallel.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithRanking sets the order used to pick the canonical match among
// duplicates and to sort results.
func WithRanking(r Ranking) Option {
	return func(e *Engine) {
		e.ranking = r
	}
}

// WithLogger sets the logger. If nil, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithSites sets the enumerator used to confirm modification sites.
func WithSites(en *sites.Enumerator) Option {
	return func(e *Engine) {
		e.sites = en
	}
}

// NewEngine creates an engine over idx. When idx also provides protein
// sequences it is used for flanking context of modification rules.
func NewEngine(idx index.Accessor, table *core.MassTable, opts ...Option) *Engine {
	e := &Engine{
		index:   idx,
		table:   table,
		workers: runtime.GOMAXPROCS(0),
		ranking: DefaultRanking,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.sites == nil {
		provider, _ := idx.(index.SequenceProvider)
		e.sites = sites.New(provider)
	}
	return e
}

// Search validates q and returns its result stream. Configuration errors are
// returned here; the search itself runs when the stream is first read.
func (e *Engine) Search(ctx context.Context, q *Query) (*Results, error) {
	if err := q.Validate(e.table); err != nil {
		queriesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	return &Results{
		run: func() ([]core.Match, Stats, error) {
			return e.run(ctx, q, e.workers)
		},
	}, nil
}

// run walks the whole search tree of q and resolves the accepted nodes.
func (e *Engine) run(ctx context.Context, q *Query, workers int) ([]core.Match, Stats, error) {
	start := time.Now()
	s := e.newSearcher(q)
	logger := e.logger.With(slog.String("query_id", q.ID))
	logger.Debug("search: starting",
		slog.String("sequence", q.Sequence),
		slog.Float64("low", q.Window.Low),
		slog.Float64("high", q.Window.High),
		slog.Int("max_edits", q.MaxEdits),
		slog.Int("max_combinations", q.MaxCombinations))

	matches, stats, err := e.walk(ctx, s, workers)
	stats.Duration = time.Since(start)
	observe(stats, err)

	if err != nil {
		logger.Warn("search: failed", slog.String("error", err.Error()))
		return nil, stats, err
	}
	if stats.Truncated {
		logger.Info("search: budget exhausted, returning partial results",
			slog.Int64("nodes", stats.Expanded),
			slog.Int("matches", stats.Matches))
	}
	logger.Debug("search: complete",
		slog.Int64("nodes", stats.Expanded),
		slog.Int64("accepted", stats.Accepted),
		slog.Int("matches", stats.Matches),
		slog.Duration("duration", stats.Duration))
	return matches, stats, nil
}

func (e *Engine) walk(ctx context.Context, s *searcher, workers int) ([]core.Match, Stats, error) {
	var stats Stats
	collector := NewCollector(s.q, e.ranking)

	root := &Node{Interval: e.index.Root()}
	if !root.Interval.Valid() {
		return nil, stats, fmt.Errorf("%w: root interval %s", index.ErrIndexInconsistent, root.Interval)
	}

	// The root's children are independent subtrees.
	subtrees, err := s.expand(root, collector, &stats)
	if err != nil {
		return nil, stats, err
	}

	locals := make([]*Collector, len(subtrees))
	subStats := make([]Stats, len(subtrees))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, sub := range subtrees {
		locals[i] = NewCollector(s.q, e.ranking)
		g.Go(func() error {
			return s.walkSubtree(gctx, sub, locals[i], &subStats[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	for i := range locals {
		collector.Merge(locals[i])
		stats.add(subStats[i])
	}
	stats.Truncated = s.stop.Load()

	matches, err := collector.Matches(e.index, e.sites, s.q.ID)
	if err != nil {
		return nil, stats, err
	}
	stats.Canonical = collector.Len()
	stats.Matches = len(matches)
	return matches, stats, nil
}

// searcher holds the per-query state shared by all subtrees of one search.
type searcher struct {
	q     *Query
	table *core.MassTable
	index index.Accessor

	symbols []byte

	varResidue   []*core.ModDefinition
	varNTerm     []*core.ModDefinition
	varCTerm     []*core.ModDefinition
	fixedResidue []*core.ModDefinition
	fixedNTerm   []*core.ModDefinition
	fixedCTerm   []*core.ModDefinition

	minLen, maxLen int

	maxNodes int64
	deadline time.Time
	nodes    atomic.Int64
	stop     atomic.Bool
}

func (e *Engine) newSearcher(q *Query) *searcher {
	s := &searcher{
		q:        q,
		table:    e.table,
		index:    e.index,
		maxNodes: q.Limits.MaxNodes,
	}
	if q.Limits.Timeout > 0 {
		s.deadline = time.Now().Add(q.Limits.Timeout)
	}
	if q.Open() {
		s.minLen, s.maxLen = q.lengthBounds()
	}

	symbols := e.table.Symbols()
	if lister, ok := e.index.(symbolLister); ok {
		present := make(map[byte]bool)
		for _, sym := range lister.Symbols() {
			present[sym] = true
		}
		symbols = symbols[:0:0]
		for _, sym := range e.table.Symbols() {
			if present[sym] {
				symbols = append(symbols, sym)
			}
		}
	}
	s.symbols = symbols

	split := func(defs []*core.ModDefinition) (residue, nterm, cterm []*core.ModDefinition) {
		for _, def := range defs {
			switch {
			case def.Type.NTerminal():
				nterm = append(nterm, def)
			case def.Type.CTerminal():
				cterm = append(cterm, def)
			default:
				residue = append(residue, def)
			}
		}
		return residue, nterm, cterm
	}
	if q.MaxModifications > 0 {
		s.varResidue, s.varNTerm, s.varCTerm = split(q.Variable)
	}
	s.fixedResidue, s.fixedNTerm, s.fixedCTerm = split(q.Fixed)
	return s
}

// exhausted checks the node budget and deadline. Once either is hit every
// subtree stops.
func (s *searcher) exhausted() bool {
	if s.stop.Load() {
		return true
	}
	if s.maxNodes > 0 && s.nodes.Add(1) > s.maxNodes {
		s.stop.Store(true)
		return true
	}
	if !s.deadline.IsZero() && time.Now().After(s.deadline) {
		s.stop.Store(true)
		return true
	}
	return false
}

// walkSubtree expands nodes depth-first from start until the subtree is
// exhausted, the budget runs out or ctx is cancelled.
func (s *searcher) walkSubtree(ctx context.Context, start *Node, out *Collector, st *Stats) error {
	done := ctx.Done()
	stack := []*Node{start}
	for len(stack) > 0 {
		select {
		case <-done:
			return ctx.Err()
		default:
		}
		if s.exhausted() {
			return nil
		}

		n := stack[len(stack)-1]
		stack[len(stack)-1] = nil
		stack = stack[:len(stack)-1]

		children, err := s.expand(n, out, st)
		if err != nil {
			return err
		}
		stack = append(stack, children...)
	}
	return nil
}

// expand creates the children of n, hands accepted ones to out and returns
// those that can be expanded further.
func (s *searcher) expand(n *Node, out *Collector, st *Stats) ([]*Node, error) {
	n.State = Expanded
	st.Expanded++

	cands, err := s.candidates(n, st)
	if err != nil {
		return nil, err
	}

	var active []*Node
	for _, c := range cands {
		for _, child := range s.children(n, c) {
			st.Created++
			if s.overweight(child) {
				child.State = Rejected
				st.PrunedMass++
				continue
			}
			s.accept(child, out, st)
			if s.growable(child) {
				child.State = Active
				active = append(active, child)
			} else {
				child.State = Rejected
			}
		}
	}
	return active, nil
}

// children materializes candidate c of n, fanning out over the variable
// modifications its residue can carry.
func (s *searcher) children(n *Node, c candidate) []*Node {
	if c.kind == kindModified {
		return []*Node{{
			Interval:     n.Interval,
			parent:       n,
			Mass:         n.Mass + c.mod.Mass,
			Combinations: n.Combinations,
			Pending:      &PendingMod{Def: c.mod, Site: 0, Variable: true},
			ModCount:     n.ModCount + 1,
		}}
	}

	base := &Node{
		Interval:     c.interval,
		Symbol:       c.corpus,
		Residue:      c.residue,
		parent:       n,
		Mass:         n.Mass,
		Depth:        n.Depth,
		Span:         n.Span,
		QueryPos:     n.QueryPos,
		Combinations: n.Combinations,
		ModCount:     n.ModCount,
		Edits:        n.Edits,
		EditOp:       c.editOp(),
	}
	if c.corpus != 0 {
		base.Span++
	}
	if c.consumesQuery() && !s.q.Open() {
		base.QueryPos++
	}
	if c.combo {
		base.Combinations++
	}
	if base.EditOp != core.EditNone {
		base.Edits++
	}

	if c.residue == 0 {
		// Insertions add nothing to the peptide.
		base.partial = n.partial
		if base.partial == nil {
			base.materialize()
		}
		return []*Node{base}
	}

	base.Depth++
	base.Mass += s.table.Mass(c.residue)
	site := base.Depth

	if site == 1 && n.Pending != nil && !sites.Candidate(n.Pending.Def, c.residue) {
		return nil
	}

	for _, def := range s.fixedResidue {
		if sites.Candidate(def, c.residue) {
			base.fixed = append(base.fixed, PendingMod{Def: def, Site: site})
			base.Mass += def.Mass
		}
	}
	if site == 1 {
		for _, def := range s.fixedNTerm {
			if sites.Candidate(def, c.residue) {
				base.fixed = append(base.fixed, PendingMod{Def: def, Site: 0})
				base.Mass += def.Mass
			}
		}
	}

	if n.partial != nil || c.combo || base.EditOp != core.EditNone {
		base.materialize()
	}

	out := []*Node{base}
	if base.ModCount < s.q.MaxModifications {
		for _, def := range s.varResidue {
			if !sites.Candidate(def, c.residue) {
				continue
			}
			m := *base
			m.Pending = &PendingMod{Def: def, Site: site, Variable: true}
			m.Mass += def.Mass
			m.ModCount++
			out = append(out, &m)
		}
	}
	return out
}

// overweight reports whether no continuation of n can come back into the
// window, allowing for negative modification deltas still to be placed.
func (s *searcher) overweight(n *Node) bool {
	if s.q.Window.IsZero() {
		return false
	}
	return n.Mass > s.q.Window.High+massEpsilon+s.q.upperSlack(n.ModCount)
}

// acceptable reports whether n is a complete peptide, mass aside.
func (s *searcher) acceptable(n *Node) bool {
	if n.Span < 1 || n.Depth < 1 || n.EditOp == core.EditInsertion {
		return false
	}
	if s.q.Open() {
		return n.Depth >= s.minLen && (s.maxLen == 0 || n.Depth <= s.maxLen)
	}
	return n.QueryPos == len(s.q.Sequence)
}

// accept tries n as a complete peptide with each admissible C-terminal
// modification and hands every variant inside the window to out. Variants are
// terminal children of n, so an open search can keep extending n itself.
func (s *searcher) accept(n *Node, out *Collector, st *Stats) {
	if !s.acceptable(n) {
		return
	}
	last := n.Residue
	site := n.Depth + 1

	base := &Node{
		Interval:     n.Interval,
		parent:       n,
		partial:      n.partial,
		Mass:         n.Mass,
		Depth:        n.Depth,
		Span:         n.Span,
		QueryPos:     n.QueryPos,
		Combinations: n.Combinations,
		ModCount:     n.ModCount,
		Edits:        n.Edits,
	}
	for _, def := range s.fixedCTerm {
		if sites.Candidate(def, last) {
			base.fixed = append(base.fixed, PendingMod{Def: def, Site: site})
			base.Mass += def.Mass
		}
	}

	variants := []*Node{base}
	if base.ModCount < s.q.MaxModifications {
		for _, def := range s.varCTerm {
			if !sites.Candidate(def, last) {
				continue
			}
			m := *base
			m.Pending = &PendingMod{Def: def, Site: site, Variable: true}
			m.Mass += def.Mass
			m.ModCount++
			variants = append(variants, &m)
		}
	}

	for _, v := range variants {
		if !s.q.Window.IsZero() && !s.q.Window.Contains(v.Mass) {
			v.State = Rejected
			continue
		}
		v.State = Accepted
		v.Fingerprint = v.fingerprint()
		st.Accepted++
		out.Add(v)
	}
}
