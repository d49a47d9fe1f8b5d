// Package stage implements the staging area layered on a branch head.
//
// A Stage holds a baseline mapping (the head commit's snapshot) and two
// disjoint path sets: pending additions and pending removals. It does no
// I/O itself; callers hash working-tree files and pass digests in.
package stage

import (
	"fmt"
	"sort"

	"sprig/internal/commit"
	"sprig/internal/errors"
)

var ErrNoReasonToRemove = errors.Validation("no reason to remove the file")

type set map[string]struct{}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type Stage struct {
	baseline  commit.Mapping
	additions set
	removals  set
}

// New returns an empty stage rooted at baseline. The mapping is copied.
func New(baseline commit.Mapping) *Stage {
	return &Stage{
		baseline:  baseline.Clone(),
		additions: set{},
		removals:  set{},
	}
}

// Tracked returns the baseline digest of path.
func (s *Stage) Tracked(path string) (string, bool) {
	d, ok := s.baseline[path]
	return d, ok
}

// Add records that path currently hashes to digest. A path whose digest
// equals the baseline is not staged (and is unstaged if it was). Adding
// always cancels a pending removal.
func (s *Stage) Add(path, digest string) (staged bool) {
	delete(s.removals, path)
	if d, ok := s.baseline[path]; ok && d == digest {
		delete(s.additions, path)
		return false
	}
	s.additions[path] = struct{}{}
	return true
}

// Remove unstages path and, if the baseline tracks it, marks it for removal.
// deleteFromTree reports whether the caller must delete the working file.
func (s *Stage) Remove(path string) (deleteFromTree bool, err error) {
	_, added := s.additions[path]
	_, tracked := s.baseline[path]
	if !added && !tracked {
		return false, ErrNoReasonToRemove
	}

	delete(s.additions, path)
	if tracked {
		s.removals[path] = struct{}{}
	}
	return tracked, nil
}

func (s *Stage) IsAdded(path string) bool {
	_, ok := s.additions[path]
	return ok
}

func (s *Stage) IsRemoved(path string) bool {
	_, ok := s.removals[path]
	return ok
}

// Additions returns pending additions, sorted.
func (s *Stage) Additions() []string { return s.additions.sorted() }

// Removals returns pending removals, sorted.
func (s *Stage) Removals() []string { return s.removals.sorted() }

// Empty reports whether nothing is pending.
func (s *Stage) Empty() bool {
	return len(s.additions) == 0 && len(s.removals) == 0
}

// Apply materializes the next snapshot: baseline minus removals, plus each
// addition with the digest returned by put.
func (s *Stage) Apply(put func(path string) (string, error)) (commit.Mapping, error) {
	next := s.baseline.Clone()
	for p := range s.removals {
		delete(next, p)
	}
	for _, p := range s.Additions() {
		d, err := put(p)
		if err != nil {
			return nil, fmt.Errorf("staging %s: %w", p, err)
		}
		next[p] = d
	}
	return next, nil
}

// State is the persisted form of the pending sets. The baseline is not
// stored; it is always the owning branch's head mapping.
type State struct {
	Additions []string `json:"additions,omitempty"`
	Removals  []string `json:"removals,omitempty"`
}

func (s *Stage) State() State {
	return State{Additions: s.Additions(), Removals: s.Removals()}
}

// Restore rebuilds a stage from its persisted state.
func Restore(baseline commit.Mapping, st State) (*Stage, error) {
	s := New(baseline)
	for _, p := range st.Additions {
		s.additions[p] = struct{}{}
	}
	for _, p := range st.Removals {
		if _, ok := s.additions[p]; ok {
			return nil, fmt.Errorf("path %q is both added and removed", p)
		}
		if _, ok := s.baseline[p]; !ok {
			return nil, fmt.Errorf("path %q staged for removal is not tracked", p)
		}
		s.removals[p] = struct{}{}
	}
	return s, nil
}
