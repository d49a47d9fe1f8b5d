package workspace

import (
	"sort"
	"strings"

	"sprig/internal/errors"
	"sprig/internal/worktree"
)

// Status is the five-section report printed by the status command.
type Status struct {
	Active    string
	Branches  []string
	Staged    []string
	Removed   []string
	Modified  []string
	Untracked []string
}

// String renders the report. Each section ends with a blank line.
func (s *Status) String() string {
	var sb strings.Builder
	section := func(header string, lines []string) {
		sb.WriteString("=== " + header + " ===\n")
		for _, l := range lines {
			sb.WriteString(l + "\n")
		}
		sb.WriteString("\n")
	}

	branches := make([]string, len(s.Branches))
	for i, b := range s.Branches {
		if b == s.Active {
			b = "*" + b
		}
		branches[i] = b
	}

	section("Branches", branches)
	section("Staged Files", s.Staged)
	section("Removed Files", s.Removed)
	section("Modifications Not Staged For Commit", s.Modified)
	section("Untracked Files", s.Untracked)
	return sb.String()
}

// Status compares the active head, its stage and the working tree.
func (w *Workspace) Status() (*Status, error) {
	b := w.repo.Active()
	head := w.repo.HeadCommit(b)

	st := &Status{
		Active:   b.Name,
		Branches: w.repo.BranchNames(),
		Staged:   b.Stage.Additions(),
		Removed:  b.Stage.Removals(),
	}

	onDisk := make(map[string]string)
	files, err := w.tree.Files()
	if err != nil {
		return nil, err
	}
	for _, p := range files {
		d, err := w.tree.Digest(p)
		if err != nil {
			if errors.Is(err, worktree.ErrFileNotFound) {
				continue
			}
			return nil, err
		}
		onDisk[p] = d
	}

	for _, p := range head.Mapping.Paths() {
		if b.Stage.IsRemoved(p) || b.Stage.IsAdded(p) {
			continue
		}
		d, ok := onDisk[p]
		switch {
		case !ok:
			st.Modified = append(st.Modified, p+" (deleted)")
		case d != head.Mapping[p]:
			st.Modified = append(st.Modified, p+" (modified)")
		}
	}
	for _, p := range st.Staged {
		if _, ok := onDisk[p]; !ok {
			st.Modified = append(st.Modified, p+" (deleted)")
		}
	}
	sort.Strings(st.Modified)

	for _, p := range files {
		_, tracked := head.Mapping[p]
		if b.Stage.IsAdded(p) || (tracked && !b.Stage.IsRemoved(p)) {
			continue
		}
		st.Untracked = append(st.Untracked, p)
	}

	return st, nil
}
