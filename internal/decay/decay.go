// Package decay evaluates TTL and reference-count over episodic rows and
// classifies them into archive/prune/retain buckets (spec §4.8). It is a
// pure function of its inputs — no I/O — so the Reflection/Memory layers
// supply the current time and the set of semantic-record ids still
// referenced by something.
package decay

import (
	"time"

	"github.com/sl4m3/agentmem/internal/types"
)

// Policy configures decay thresholds.
type Policy struct {
	TTL time.Duration
}

// Report summarizes one decay evaluation.
type Report struct {
	ToArchive []int64
	ToPrune   []int64
	Retained  []int64
}

// ArchivedCount, PrunedCount, RetainedCount expose the report's counts
// directly, matching the spec's "(archived_count, pruned_count,
// retained_count)" tuple.
func (r Report) ArchivedCount() int { return len(r.ToArchive) }
func (r Report) PrunedCount() int  { return len(r.ToPrune) }
func (r Report) RetainedCount() int { return len(r.Retained) }

// Evaluate partitions rows given now and policy. referencedSemanticIDs is
// the set of semantic record ids a decision still points to (via
// linked_semantic_id references elsewhere); a row whose LinkedSemanticID is
// in that set is never pruned regardless of age.
func Evaluate(rows []types.EpisodicRow, now time.Time, policy Policy, referencedSemanticIDs map[string]bool) Report {
	var r Report
	for _, row := range rows {
		age := now.Sub(row.IngestedAt)
		referenced := row.LinkedSemanticID != "" && referencedSemanticIDs[row.LinkedSemanticID]

		switch {
		case row.Status == types.EpisodicActive && age > policy.TTL && !referenced:
			r.ToArchive = append(r.ToArchive, row.ID)
		case row.Status == types.EpisodicArchived && age > 2*policy.TTL && !referenced:
			r.ToPrune = append(r.ToPrune, row.ID)
		default:
			r.Retained = append(r.Retained, row.ID)
		}
	}
	return r
}
