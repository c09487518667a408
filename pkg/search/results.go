package search

import (
	"time"

	"github.com/ChrisMcGann/PepMap/pkg/core"
)

// Stats summarizes the work done by one search.
type Stats struct {
	Expanded int64 // nodes expanded
	Created  int64 // child nodes materialized
	Accepted int64 // accepted nodes before deduplication

	PrunedEmpty        int64 // extensions absent from the index
	PrunedMass         int64 // children above the mass window
	PrunedCombinations int64 // extensions over the ambiguity budget

	Canonical int // distinct accepted classes
	Matches   int // resolved matches

	Truncated bool
	Duration  time.Duration
}

func (s *Stats) add(o Stats) {
	s.Expanded += o.Expanded
	s.Created += o.Created
	s.Accepted += o.Accepted
	s.PrunedEmpty += o.PrunedEmpty
	s.PrunedMass += o.PrunedMass
	s.PrunedCombinations += o.PrunedCombinations
}

// Results is the match stream of one query. The first call to Next runs the
// whole search and blocks until every match is collected and ranked; later
// calls hand the matches out one at a time in rank order. No match is
// available before the search completes. Results is finite, cannot be
// restarted and is not safe for concurrent use.
//
//	res, err := engine.Search(ctx, q)
//	if err != nil {
//		return err
//	}
//	for res.Next() {
//		m := res.Match()
//		...
//	}
//	if err := res.Err(); err != nil {
//		return err
//	}
type Results struct {
	run func() ([]core.Match, Stats, error)

	matches []core.Match
	current *core.Match
	stats   Stats
	err     error
}

// Next advances to the next match. It returns false when the stream is
// exhausted or the search failed.
func (r *Results) Next() bool {
	if r.run != nil {
		r.matches, r.stats, r.err = r.run()
		r.run = nil
	}
	if r.err != nil || len(r.matches) == 0 {
		r.current = nil
		return false
	}
	r.current = &r.matches[0]
	r.matches = r.matches[1:]
	return true
}

// Match returns the current match.
func (r *Results) Match() *core.Match {
	return r.current
}

// Err returns the error that stopped the search: an index inconsistency or
// the cancellation of the search context. Budget exhaustion is not an error.
func (r *Results) Err() error {
	return r.err
}

// Truncated reports whether the node budget or deadline cut the search short.
// The matches returned are then those found before the cut.
func (r *Results) Truncated() bool {
	return r.stats.Truncated
}

// Stats returns the search statistics. They are complete once Next has
// returned false.
func (r *Results) Stats() Stats {
	return r.stats
}

// Collect drains r.
func Collect(r *Results) ([]core.Match, error) {
	var out []core.Match
	for r.Next() {
		out = append(out, *r.Match())
	}
	return out, r.Err()
}
