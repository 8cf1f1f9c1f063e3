// Package semantic is the Semantic Store orchestrator (spec §4.6): it ties
// the record codec, metadata index, integrity checker, transition
// validator, and version log together behind a cross-process lock, and
// exposes save/update/list/transaction. Grounded on the teacher's
// internal/storage.Storage.RunInTransaction contract (commit-on-nil,
// rollback-on-error/panic) adapted from a SQL transaction to a
// file+index+version-log compensating transaction.
package semantic

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sl4m3/agentmem/internal/integrity"
	"github.com/sl4m3/agentmem/internal/lockutil"
	"github.com/sl4m3/agentmem/internal/metaindex"
	"github.com/sl4m3/agentmem/internal/recordio"
	"github.com/sl4m3/agentmem/internal/transition"
	"github.com/sl4m3/agentmem/internal/types"
	"github.com/sl4m3/agentmem/internal/versionlog"
)

// TrustBoundary configures how record writes from agent-sourced events are
// treated (spec §6.5).
type TrustBoundary string

const (
	TrustAgentWithIntent TrustBoundary = "agent_with_intent"
	TrustHumanOnly       TrustBoundary = "human_only"
)

const (
	lockFileName  = ".lock"
	indexFileName = "semantic_meta.db"
	quarantineDir = ".quarantine"
	gitignoreBody = ".lock\n.quarantine/\n"
)

// Store is the Semantic Store: a content-addressed, version-controlled
// repository of decision records.
type Store struct {
	dir           string
	lock          *lockutil.Lock
	idx           *metaindex.Index
	checker       *integrity.Checker
	vlog          *versionlog.Log
	trustBoundary TrustBoundary

	txDepth int // >0 while inside Transaction
}

// Open constructs a Store rooted at dir (typically "<root>/semantic"),
// running crash recovery, index rebuild, and a forced integrity check
// before returning, per spec §4.6.
func Open(dir string, tb TrustBoundary) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("semantic: mkdir %s: %w", dir, err)
	}
	if err := os.MkdirAll(filepath.Join(dir, quarantineDir), 0o755); err != nil {
		return nil, fmt.Errorf("semantic: mkdir quarantine: %w", err)
	}
	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(gitignorePath, []byte(gitignoreBody), 0o644); err != nil {
			return nil, fmt.Errorf("semantic: write .gitignore: %w", err)
		}
	}

	s := &Store{
		dir:           dir,
		lock:          lockutil.New(filepath.Join(dir, lockFileName)),
		checker:       integrity.New(),
		vlog:          versionlog.New(dir),
		trustBoundary: tb,
	}

	ctx := context.Background()
	release, err := s.lock.AcquireExclusive(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.vlog.Init(); err != nil {
		return nil, err
	}
	if err := s.crashRecovery(); err != nil {
		return nil, err
	}
	// A repository with no commit yet gets one for .gitignore, so every
	// later rollback has a head to reset to.
	head, err := s.vlog.HeadHash()
	if err != nil {
		return nil, err
	}
	if head == "" {
		if err := s.vlog.Add(".gitignore"); err != nil {
			return nil, err
		}
		if err := s.vlog.Commit("init semantic store"); err != nil {
			return nil, err
		}
	}

	idx, err := metaindex.Open(filepath.Join(dir, indexFileName))
	if err != nil {
		return nil, err
	}
	s.idx = idx

	views, err := s.diskViews()
	if err != nil {
		return nil, err
	}
	n, err := s.idx.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n != len(views) {
		if err := s.rebuildIndex(ctx, views); err != nil {
			return nil, err
		}
	}

	if err := s.checker.Validate(ctx, views, true); err != nil {
		return nil, err
	}

	return s, nil
}

// Close releases the underlying metadata index handle.
func (s *Store) Close() error {
	if s.idx == nil {
		return nil
	}
	return s.idx.Close()
}

// crashRecovery implements spec §4.6.2: for every untracked/modified entry
// reported by the version log, skip dotfiles and the lock file; add+commit
// valid records; quarantine everything else.
func (s *Store) crashRecovery() error {
	entries, err := s.vlog.StatusShort()
	if err != nil {
		return err
	}
	for _, e := range entries {
		base := filepath.Base(e.Path)
		if strings.HasPrefix(base, ".") {
			continue
		}
		full := filepath.Join(s.dir, e.Path)
		data, err := os.ReadFile(full)
		if err != nil {
			continue // file already gone (deleted entry); nothing to recover
		}
		if _, _, derr := recordio.Decode(string(data)); derr == nil {
			if err := s.vlog.Add(e.Path); err != nil {
				return err
			}
			if err := s.vlog.Commit("recovery: " + base); err != nil {
				return err
			}
			continue
		}
		if err := s.quarantine(full, base); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) quarantine(fullPath, base string) error {
	dest := filepath.Join(s.dir, quarantineDir, base)
	if err := os.Rename(fullPath, dest); err != nil {
		return fmt.Errorf("semantic: quarantine %s: %w", base, err)
	}
	return nil
}

// ListQuarantined returns the filenames currently set aside in .quarantine/.
// Read-only: per spec §9, quarantined files are never automatically
// re-admitted.
func (s *Store) ListQuarantined() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, quarantineDir))
	if err != nil {
		return nil, fmt.Errorf("semantic: list quarantine: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// diskViews reads every record file on disk into an integrity.RecordView.
func (s *Store) diskViews() ([]integrity.RecordView, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("semantic: read dir: %w", err)
	}
	var views []integrity.RecordView
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		v, err := s.recordView(e.Name())
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *Store) recordView(id string) (integrity.RecordView, error) {
	full := filepath.Join(s.dir, id)
	data, err := os.ReadFile(full)
	if err != nil {
		return integrity.RecordView{}, fmt.Errorf("semantic: read %s: %w", id, err)
	}
	info, err := os.Stat(full)
	if err != nil {
		return integrity.RecordView{}, fmt.Errorf("semantic: stat %s: %w", id, err)
	}
	ev, _, err := recordio.Decode(string(data))
	if err != nil {
		return integrity.RecordView{}, &types.SchemaError{Detail: fmt.Sprintf("%s: %v", id, err)}
	}
	dc := ev.DecisionContext()
	v := integrity.RecordView{ID: id, Kind: ev.Kind, ModTime: info.ModTime().UnixNano()}
	if dc != nil {
		v.Target = dc.Target
		v.Status = dc.Status
		if v.Status == "" {
			v.Status = types.DefaultStatus(ev.Kind)
		}
		v.Supersedes = dc.Supersedes
		v.SupersededBy = dc.SupersededBy
	}
	return v, nil
}

func (s *Store) rebuildIndex(ctx context.Context, views []integrity.RecordView) error {
	rows := make([]metaindex.Row, 0, len(views))
	for _, v := range views {
		rows = append(rows, metaindex.Row{
			ID: v.ID, Target: v.Target, Status: v.Status, Kind: v.Kind,
			Timestamp: fmt.Sprint(v.ModTime), SupersededBy: v.SupersededBy,
		})
	}
	return s.idx.RebuildFromDisk(ctx, rows)
}

// checkTrustBoundary enforces spec §6.5: in human_only mode, any write
// whose source=agent and kind=decision is rejected.
func (s *Store) checkTrustBoundary(e types.Event) error {
	if s.trustBoundary == TrustHumanOnly && e.Source == types.SourceAgent && e.Kind == types.KindDecision {
		return &types.PermissionError{Reason: "Trust Boundary Violation"}
	}
	return nil
}

// Save writes a new record for event and returns its id (spec §4.6.1).
func (s *Store) Save(ctx context.Context, event types.Event) (string, error) {
	if err := s.checkTrustBoundary(event); err != nil {
		return "", err
	}
	if err := event.Validate(); err != nil {
		return "", &types.SchemaError{Detail: err.Error()}
	}

	release, err := s.lock.AcquireExclusive(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	return s.saveLocked(ctx, event)
}

func (s *Store) saveLocked(ctx context.Context, event types.Event) (string, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	id, err := recordio.NewID(event.Kind, event.Timestamp)
	if err != nil {
		return "", err
	}
	body := recordio.DefaultBody(event)
	text, err := recordio.Encode(event, body)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.dir, id)

	prevHead, herr := s.vlog.HeadHash()
	if herr != nil {
		return "", herr
	}

	if err := os.WriteFile(full, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("semantic: write %s: %w", id, err)
	}

	row := metaindex.Row{ID: id, Kind: event.Kind}
	if dc := event.DecisionContext(); dc != nil {
		row.Target = dc.Target
		row.Status = dc.Status
		if row.Status == "" {
			row.Status = types.DefaultStatus(event.Kind)
		}
		row.SupersededBy = dc.SupersededBy
	}
	row.Timestamp = event.Timestamp.UTC().Format(time.RFC3339Nano)

	if err := s.idx.Upsert(ctx, row, s.txDepth == 0); err != nil {
		_ = os.Remove(full)
		return "", err
	}

	if s.txDepth > 0 {
		if err := s.vlog.Add(id); err != nil {
			return s.rollback(ctx, id, prevHead, err)
		}
		return id, nil
	}

	return id, s.finalizeWrite(ctx, id, prevHead, "save "+id)
}

// finalizeWrite stages, validates, and commits a single non-transactional
// write, rolling back to prevHead on any failure.
func (s *Store) finalizeWrite(ctx context.Context, id, prevHead, msg string) error {
	if err := s.vlog.Add(id); err != nil {
		return s.rollback(ctx, id, prevHead, err)
	}
	views, err := s.diskViews()
	if err != nil {
		return s.rollback(ctx, id, prevHead, err)
	}
	if err := s.checker.Validate(ctx, views, true); err != nil {
		return s.rollback(ctx, id, prevHead, err)
	}
	if err := s.vlog.Commit(msg); err != nil {
		return s.rollback(ctx, id, prevHead, err)
	}
	s.checker.Invalidate()
	return nil
}

// rollback restores consistency after a failed write: delete the file,
// delete its index row, reset the version log to prevHead, and rebuild the
// index from the restored disk state.
func (s *Store) rollback(ctx context.Context, id, prevHead string, cause error) error {
	_ = os.Remove(filepath.Join(s.dir, id))
	_ = s.idx.Delete(ctx, id)
	if prevHead != "" {
		_ = s.vlog.ResetHard(prevHead)
	}
	if views, verr := s.diskViews(); verr == nil {
		_ = s.rebuildIndex(ctx, views)
	}
	s.checker.Invalidate()
	return cause
}

// DecisionUpdates carries the mutable fields update_decision may change
// (spec §4.6.1): status, confidence, supersede links, consequences.
type DecisionUpdates struct {
	Status              *types.Status
	Confidence          *float64
	Supersedes          []string
	SupersededBy        *string
	Consequences        []string
	HitCount            *int
	MissCount           *int
	EvidenceEventIDs    []string
	CounterEvidenceIDs  []string
	CompetingProposals  []string
	ReadyForReview      *bool
	LastObservedAt      *time.Time
}

// UpdateDecision applies updates to the record identified by id (spec
// §4.6.1). The transition validator enforces immutable fields and the
// status matrix; any failure after the disk write restores the prior bytes.
func (s *Store) UpdateDecision(ctx context.Context, id string, updates DecisionUpdates, msg string) error {
	release, err := s.lock.AcquireExclusive(ctx)
	if err != nil {
		return err
	}
	defer release()
	return s.updateLocked(ctx, id, updates, msg)
}

func (s *Store) updateLocked(ctx context.Context, id string, updates DecisionUpdates, msg string) error {
	full := filepath.Join(s.dir, id)
	orig, err := os.ReadFile(full)
	if err != nil {
		return &types.NotFoundError{ID: id}
	}
	event, body, err := recordio.Decode(string(orig))
	if err != nil {
		return &types.SchemaError{Detail: err.Error()}
	}
	dc := event.DecisionContext()
	if dc == nil {
		return &types.TransitionError{RecordID: id, Reason: "record does not carry a DecisionContent"}
	}

	oldHdr := transition.Header{Target: dc.Target, Kind: event.Kind,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano), Status: dc.Status}

	newDC := *dc
	applyUpdates(&newDC, updates)
	newEvent := event
	newEvent.Context = &newDC

	newHdr := transition.Header{Target: newDC.Target, Kind: newEvent.Kind,
		Timestamp: newEvent.Timestamp.UTC().Format(time.RFC3339Nano), Status: newDC.Status,
		DecisionFieldsPresent: newDC.Title != "" && newDC.Target != "" && newDC.Rationale != ""}

	if err := transition.Validate(oldHdr, newHdr); err != nil {
		return err
	}

	prevHead, herr := s.vlog.HeadHash()
	if herr != nil {
		return herr
	}

	text, err := recordio.Encode(newEvent, body)
	if err != nil {
		return err
	}
	if err := os.WriteFile(full, []byte(text), 0o644); err != nil {
		return fmt.Errorf("semantic: write %s: %w", id, err)
	}

	row := metaindex.Row{ID: id, Target: newDC.Target, Status: newDC.Status, Kind: newEvent.Kind,
		Timestamp: newEvent.Timestamp.UTC().Format(time.RFC3339Nano), SupersededBy: newDC.SupersededBy}
	if err := s.idx.Upsert(ctx, row, s.txDepth == 0); err != nil {
		_ = os.WriteFile(full, orig, 0o644)
		return err
	}

	if s.txDepth > 0 {
		if err := s.vlog.Add(id); err != nil {
			return s.rollbackUpdate(ctx, id, orig, prevHead, err)
		}
		return nil
	}

	if err := s.vlog.Add(id); err != nil {
		return s.rollbackUpdate(ctx, id, orig, prevHead, err)
	}
	views, err := s.diskViews()
	if err != nil {
		return s.rollbackUpdate(ctx, id, orig, prevHead, err)
	}
	if err := s.checker.Validate(ctx, views, true); err != nil {
		return s.rollbackUpdate(ctx, id, orig, prevHead, err)
	}
	if err := s.vlog.Commit(msg); err != nil {
		return s.rollbackUpdate(ctx, id, orig, prevHead, err)
	}
	s.checker.Invalidate()
	return nil
}

func (s *Store) rollbackUpdate(ctx context.Context, id string, orig []byte, prevHead string, cause error) error {
	_ = os.WriteFile(filepath.Join(s.dir, id), orig, 0o644)
	if prevHead != "" {
		_ = s.vlog.ResetHard(prevHead)
	}
	if views, verr := s.diskViews(); verr == nil {
		_ = s.rebuildIndex(ctx, views)
	}
	s.checker.Invalidate()
	return cause
}

func applyUpdates(dc *types.DecisionContent, u DecisionUpdates) {
	if u.Status != nil {
		dc.Status = *u.Status
	}
	if u.Confidence != nil {
		dc.Confidence = *u.Confidence
	}
	if u.Supersedes != nil {
		dc.Supersedes = u.Supersedes
	}
	if u.SupersededBy != nil {
		dc.SupersededBy = *u.SupersededBy
	}
	if u.Consequences != nil {
		dc.Consequences = u.Consequences
	}
	if u.HitCount != nil {
		dc.HitCount = *u.HitCount
	}
	if u.MissCount != nil {
		dc.MissCount = *u.MissCount
	}
	if u.EvidenceEventIDs != nil {
		dc.EvidenceEventIDs = u.EvidenceEventIDs
	}
	if u.CounterEvidenceIDs != nil {
		dc.CounterEvidenceEventIDs = u.CounterEvidenceIDs
	}
	if u.CompetingProposals != nil {
		dc.CompetingProposalIDs = u.CompetingProposals
	}
	if u.ReadyForReview != nil {
		dc.ReadyForReview = *u.ReadyForReview
	}
	if u.LastObservedAt != nil {
		dc.LastObservedAt = u.LastObservedAt
	}
}

// Transaction runs fn under a single exclusive lock acquisition. Nested
// Save/UpdateDecision calls skip their individual commit/integrity-check;
// on successful return the store validates once and commits once. On
// failure (fn returns an error, or panics) the version log is reset to the
// pre-transaction head and the index is rebuilt (spec §4.6.1); the error
// that caused the abort is returned unchanged.
func (s *Store) Transaction(ctx context.Context, msg string, fn func(ctx context.Context) error) (err error) {
	release, lerr := s.lock.AcquireExclusive(ctx)
	if lerr != nil {
		return lerr
	}
	defer release()

	prevHead, herr := s.vlog.HeadHash()
	if herr != nil {
		return herr
	}

	s.txDepth++
	defer func() {
		s.txDepth--
		if r := recover(); r != nil {
			_ = s.abortTransaction(ctx, prevHead, nil)
			panic(r)
		}
	}()

	if ferr := fn(ctx); ferr != nil {
		return s.abortTransaction(ctx, prevHead, ferr)
	}

	views, verr := s.diskViews()
	if verr != nil {
		return s.abortTransaction(ctx, prevHead, verr)
	}
	if verr := s.checker.Validate(ctx, views, true); verr != nil {
		return s.abortTransaction(ctx, prevHead, verr)
	}
	if cerr := s.vlog.Commit(msg); cerr != nil {
		return s.abortTransaction(ctx, prevHead, cerr)
	}
	s.checker.Invalidate()
	return nil
}

func (s *Store) abortTransaction(ctx context.Context, prevHead string, cause error) error {
	if prevHead != "" {
		_ = s.vlog.ResetHard(prevHead)
	}
	if views, verr := s.diskViews(); verr == nil {
		_ = s.rebuildIndex(ctx, views)
	}
	s.checker.Invalidate()
	return cause
}

// Decision is a read-only view of a decision record, for list/query results.
type Decision struct {
	ID      string
	Event   types.Event
	Content types.DecisionContent
}

// ListDecisions returns every decision-kind record under a shared lock.
func (s *Store) ListDecisions(ctx context.Context) ([]Decision, error) {
	release, err := s.lock.AcquireShared(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("semantic: read dir: %w", err)
	}
	var out []Decision
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		if recordio.KindFromID(e.Name()) != types.KindDecision {
			continue
		}
		d, err := s.readDecision(e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) readDecision(id string) (Decision, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id))
	if err != nil {
		return Decision{}, fmt.Errorf("semantic: read %s: %w", id, err)
	}
	ev, _, err := recordio.Decode(string(data))
	if err != nil {
		return Decision{}, &types.SchemaError{Detail: err.Error()}
	}
	dc := ev.DecisionContext()
	if dc == nil {
		return Decision{}, &types.SchemaError{Detail: id + ": missing DecisionContent"}
	}
	return Decision{ID: id, Event: ev, Content: *dc}, nil
}

// Get returns the decision record for id.
func (s *Store) Get(ctx context.Context, id string) (Decision, error) {
	release, err := s.lock.AcquireShared(ctx)
	if err != nil {
		return Decision{}, err
	}
	defer release()
	if _, err := os.Stat(filepath.Join(s.dir, id)); err != nil {
		return Decision{}, &types.NotFoundError{ID: id}
	}
	return s.readDecision(id)
}

// ListActiveConflicts returns the active decision records for target
// (normally 0 or 1, but the query itself does not assume uniqueness — that
// invariant is what the caller is checking for).
func (s *Store) ListActiveConflicts(ctx context.Context, target string) ([]Decision, error) {
	decisions, err := s.ListDecisions(ctx)
	if err != nil {
		return nil, err
	}
	var out []Decision
	for _, d := range decisions {
		if d.Content.Target == target && d.Content.Status == types.StatusActive {
			out = append(out, d)
		}
	}
	return out, nil
}

// FindProposal returns the proposal-kind record for target with the greatest
// id (ids are timestamp-prefixed, so the most recently created one),
// whatever its status; found is false if target has no proposal.
func (s *Store) FindProposal(ctx context.Context, target string) (Decision, bool, error) {
	release, err := s.lock.AcquireShared(ctx)
	if err != nil {
		return Decision{}, false, err
	}
	defer release()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return Decision{}, false, fmt.Errorf("semantic: read dir: %w", err)
	}
	var best Decision
	found := false
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		if recordio.KindFromID(e.Name()) != types.KindProposal {
			continue
		}
		d, err := s.readDecision(e.Name())
		if err != nil {
			return Decision{}, false, err
		}
		if d.Content.Target != target {
			continue
		}
		if !found || d.ID > best.ID {
			best = d
			found = true
		}
	}
	return best, found, nil
}

// ListAllProposals returns every proposal-kind record.
func (s *Store) ListAllProposals(ctx context.Context) ([]Decision, error) {
	release, err := s.lock.AcquireShared(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("semantic: read dir: %w", err)
	}
	var out []Decision
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		if recordio.KindFromID(e.Name()) != types.KindProposal {
			continue
		}
		d, err := s.readDecision(e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
