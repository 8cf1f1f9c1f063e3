// Package integrity is the whole-corpus structural validator (spec §4.3):
// bidirectional supersede (I3), single-active-per-target (I4), and acyclic
// evolution (I5). It memoizes a successful pass against a fingerprint of the
// corpus' (filename, mtime) pairs, invalidated on every write, mirroring the
// teacher's dirty/fingerprint memoization in
// internal/storage/sqlite/dirty_helpers.go and its own cycle-detection test
// fixtures in cycle_detection_test.go.
package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sl4m3/agentmem/internal/types"
)

// RecordView is the minimal per-record shape the checker needs: a parsed
// header's decision fields, regardless of storage representation.
type RecordView struct {
	ID           string
	Kind         types.Kind
	Target       string
	Status       types.Status
	Supersedes   []string
	SupersededBy string
	ModTime      int64 // unix nanos; part of the fingerprint
}

// Checker validates a corpus snapshot and memoizes success per-process.
type Checker struct {
	lastFingerprint string
	lastOK          bool
}

// New returns a Checker with an empty memoization cache.
func New() *Checker {
	return &Checker{}
}

// Invalidate clears the memoized result. Called by the Semantic Store
// after any mutating operation.
func (c *Checker) Invalidate() {
	c.lastFingerprint = ""
	c.lastOK = false
}

// Fingerprint computes the memoization key from the sorted (id, mtime)
// pairs of the given views.
func Fingerprint(views []RecordView) string {
	sorted := make([]RecordView, len(views))
	copy(sorted, views)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	h := sha256.New()
	for _, v := range sorted {
		fmt.Fprintf(h, "%s:%d\n", v.ID, v.ModTime)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Validate checks I3/I4/I5 over views. If force is false and the computed
// fingerprint matches the last successful validation, the cached success is
// returned without re-checking. The three invariant passes run concurrently
// via errgroup, mirroring the teacher's fan-out style for independent
// corpus-wide passes.
func (c *Checker) Validate(ctx context.Context, views []RecordView, force bool) error {
	fp := Fingerprint(views)
	if !force && c.lastOK && fp == c.lastFingerprint {
		return nil
	}

	byID := make(map[string]RecordView, len(views))
	for _, v := range views {
		byID[v.ID] = v
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return checkBidirectionalSupersede(byID) })
	g.Go(func() error { return checkSingleActivePerTarget(views) })
	g.Go(func() error { return checkAcyclic(byID) })
	if err := g.Wait(); err != nil {
		c.lastOK = false
		return err
	}

	c.lastFingerprint = fp
	c.lastOK = true
	return nil
}

// checkBidirectionalSupersede enforces I3: for every decision D with
// superseded_by = E, E exists and D is in E.supersedes; conversely every id
// in E.supersedes exists.
func checkBidirectionalSupersede(byID map[string]RecordView) error {
	for _, d := range byID {
		if d.Kind != types.KindDecision || d.SupersededBy == "" {
			continue
		}
		e, ok := byID[d.SupersededBy]
		if !ok {
			return &types.IntegrityViolation{
				RecordID: d.ID,
				Reason:   "Dangling reference",
				Detail:   map[string]any{"superseded_by": d.SupersededBy},
			}
		}
		if !containsID(e.Supersedes, d.ID) {
			return &types.IntegrityViolation{
				RecordID: d.ID,
				Reason:   "Bidirectional supersede violation",
				Detail:   map[string]any{"superseded_by": d.SupersededBy, "missing_backlink_in": e.ID},
			}
		}
	}
	for _, e := range byID {
		for _, sid := range e.Supersedes {
			if _, ok := byID[sid]; !ok {
				return &types.IntegrityViolation{
					RecordID: e.ID,
					Reason:   "Dangling reference",
					Detail:   map[string]any{"supersedes": sid},
				}
			}
		}
	}
	return nil
}

// checkSingleActivePerTarget enforces I4 over the whole corpus. This is the
// authoritative check: the metadata index's own Upsert only enforces I4
// eagerly outside a transaction, so the final post-commit state must always
// be validated here regardless of what the index allowed transiently.
func checkSingleActivePerTarget(views []RecordView) error {
	seen := make(map[string]string)
	for _, v := range views {
		if v.Kind != types.KindDecision || v.Status != types.StatusActive {
			continue
		}
		if prior, ok := seen[v.Target]; ok {
			return &types.IntegrityViolation{
				RecordID: v.ID,
				Reason:   "Single-active-per-target violation",
				Detail:   map[string]any{"target": v.Target, "other_active": prior},
			}
		}
		seen[v.Target] = v.ID
	}
	return nil
}

// checkAcyclic enforces I5: the superseded_by relation over decisions must
// form a DAG.
func checkAcyclic(byID map[string]RecordView) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(byID))

	var visit func(id string, chain []string) error
	visit = func(id string, chain []string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return &types.IntegrityViolation{
				RecordID: id,
				Reason:   "Cycle detected",
				Detail:   map[string]any{"chain": append(append([]string{}, chain...), id)},
			}
		}
		v, ok := byID[id]
		if !ok || v.SupersededBy == "" {
			state[id] = done
			return nil
		}
		state[id] = visiting
		if err := visit(v.SupersededBy, append(chain, id)); err != nil {
			return err
		}
		state[id] = done
		return nil
	}

	ids := make([]string, 0, len(byID))
	for id, v := range byID {
		if v.Kind == types.KindDecision {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := visit(id, nil); err != nil {
			return err
		}
	}
	return nil
}

func containsID(ids []string, target string) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}
