package workspace

import (
	"bytes"
	"fmt"
	"path"

	"sprig/internal/commit"
	"sprig/internal/repo"

	"go.uber.org/zap"
)

// Outcome says which path a merge took.
type Outcome int

const (
	// Ancestor: the other branch is already contained in the current one.
	Ancestor Outcome = iota
	// FastForward: the current head moved to the other head.
	FastForward
	// Merged: a two-parent merge commit was created.
	Merged
)

func (o Outcome) String() string {
	switch o {
	case Ancestor:
		return "ancestor"
	case FastForward:
		return "fast-forward"
	case Merged:
		return "merged"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

type MergeResult struct {
	Outcome Outcome
	// Commit is the merge commit, or the new head after a fast-forward.
	Commit     *commit.Commit
	Conflicted bool
	Conflicts  []string
}

// Messages returns the lines reported to the user.
func (r *MergeResult) Messages() []string {
	switch r.Outcome {
	case Ancestor:
		return []string{"Given branch is an ancestor of the current branch."}
	case FastForward:
		return []string{"Current branch fast-forwarded."}
	}
	if r.Conflicted {
		return []string{"Encountered a merge conflict."}
	}
	return nil
}

// ActionKind is what a merge does to one path.
type ActionKind int

const (
	// Take writes the other side's blob and stages it.
	Take ActionKind = iota
	// Drop deletes the file and stages its removal.
	Drop
	// Conflict writes both sides between markers and stages the result.
	Conflict
)

// Action is one step of a merge plan. Ours and Theirs are digests, empty
// when the side does not have the path.
type Action struct {
	Kind   ActionKind
	Path   string
	Ours   string
	Theirs string
}

func changed(base, side commit.Mapping, p string) bool {
	b, inBase := base[p]
	s, inSide := side[p]
	return inBase != inSide || b != s
}

// Plan classifies every path of the three snapshots relative to the split
// point. Paths only the current side changed, or both sides changed the
// same way, need no action. The result is sorted by path.
func Plan(split, cur, other commit.Mapping) []Action {
	paths := make(commit.Mapping)
	for _, m := range []commit.Mapping{split, cur, other} {
		for p := range m {
			paths[p] = ""
		}
	}

	var plan []Action
	for _, p := range paths.Paths() {
		if !changed(split, other, p) {
			continue
		}
		ours, inCur := cur[p]
		theirs, inOther := other[p]

		if !changed(split, cur, p) {
			if inOther {
				plan = append(plan, Action{Kind: Take, Path: p, Ours: ours, Theirs: theirs})
			} else {
				plan = append(plan, Action{Kind: Drop, Path: p, Ours: ours})
			}
			continue
		}

		if inCur == inOther && ours == theirs {
			continue
		}
		plan = append(plan, Action{Kind: Conflict, Path: p, Ours: ours, Theirs: theirs})
	}
	return plan
}

// ConflictContent wraps both versions of a file in conflict markers. A
// missing side contributes nothing.
func ConflictContent(ours, theirs []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("<<<<<<< HEAD\n")
	buf.Write(ours)
	buf.WriteString("=======\n")
	buf.Write(theirs)
	buf.WriteString(">>>>>>>\n")
	return buf.Bytes()
}

// Merge merges the named branch into the active branch.
func (w *Workspace) Merge(name string) (*MergeResult, error) {
	other, ok := w.repo.Branch(name)
	if !ok {
		return nil, repo.ErrBranchNotFound
	}
	cur := w.repo.Active()
	if name == cur.Name {
		return nil, ErrSelfMerge
	}
	if !cur.Stage.Empty() {
		return nil, ErrUncommitted
	}
	if err := w.checkUntracked(); err != nil {
		return nil, err
	}

	c := w.repo.HeadCommit(cur)
	g := w.repo.HeadCommit(other)
	splitID, err := w.repo.SplitPoint(c.ID, g.ID)
	if err != nil {
		return nil, err
	}

	if splitID == g.ID {
		return &MergeResult{Outcome: Ancestor, Commit: c}, nil
	}
	if splitID == c.ID {
		if err := w.materialize(g.Mapping); err != nil {
			return nil, err
		}
		if err := w.repo.MoveHead(cur, g.ID); err != nil {
			return nil, err
		}
		w.logger.Debug("fast-forward", zap.String("branch", cur.Name), zap.String("head", g.ID))
		return &MergeResult{Outcome: FastForward, Commit: g}, nil
	}

	s, _ := w.repo.Commit(splitID)
	plan := Plan(s.Mapping, c.Mapping, g.Mapping)
	if len(plan) == 0 {
		return nil, ErrNothingToCommit
	}

	contents, err := w.planContents(plan)
	if err != nil {
		return nil, err
	}

	if p, ok := pathClash(merged(c.Mapping, plan)); ok {
		w.logger.Debug("merge path clash", zap.String("path", p))
		return nil, ErrPathClash
	}

	// Drops run first; a dropped directory may be replaced by a file.
	for _, a := range plan {
		if a.Kind != Drop {
			continue
		}
		if err := w.tree.Remove(a.Path); err != nil {
			return nil, err
		}
		if _, err := cur.Stage.Remove(a.Path); err != nil {
			return nil, err
		}
	}

	result := &MergeResult{Outcome: Merged}
	for _, a := range plan {
		if a.Kind == Drop {
			continue
		}
		if err := w.tree.Write(a.Path, contents[a.Path]); err != nil {
			return nil, err
		}
		d, err := w.tree.Digest(a.Path)
		if err != nil {
			return nil, err
		}
		cur.Stage.Add(a.Path, d)
		if a.Kind == Conflict {
			result.Conflicted = true
			result.Conflicts = append(result.Conflicts, a.Path)
		}
	}

	msg := fmt.Sprintf("Merged %s into %s.", other.Name, cur.Name)
	mc, err := w.commitStage(cur, []string{c.ID, g.ID}, msg)
	if err != nil {
		return nil, err
	}
	result.Commit = mc

	w.logger.Debug("merge committed",
		zap.String("id", mc.ID),
		zap.String("split", splitID),
		zap.Int("actions", len(plan)),
		zap.Int("conflicts", len(result.Conflicts)),
	)
	return result, nil
}

// merged returns the paths the working tree holds once plan is applied on
// top of cur.
func merged(cur commit.Mapping, plan []Action) map[string]bool {
	paths := make(map[string]bool, len(cur))
	for p := range cur {
		paths[p] = true
	}
	for _, a := range plan {
		paths[a.Path] = a.Kind != Drop
	}
	return paths
}

// pathClash finds a path that is also a parent directory of another path.
func pathClash(paths map[string]bool) (string, bool) {
	for p, ok := range paths {
		if !ok {
			continue
		}
		for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
			if paths[dir] {
				return dir, true
			}
		}
	}
	return "", false
}

// planContents loads the bytes every Take and Conflict action will write.
func (w *Workspace) planContents(plan []Action) (map[string][]byte, error) {
	load := func(d string) ([]byte, error) {
		if d == "" {
			return nil, nil
		}
		return w.store.Get(d)
	}

	contents := make(map[string][]byte)
	for _, a := range plan {
		if a.Kind == Drop {
			continue
		}
		theirs, err := load(a.Theirs)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", a.Path, err)
		}
		if a.Kind == Take {
			contents[a.Path] = theirs
			continue
		}
		ours, err := load(a.Ours)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", a.Path, err)
		}
		contents[a.Path] = ConflictContent(ours, theirs)
	}
	return contents, nil
}
