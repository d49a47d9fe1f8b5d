package repo

import (
	"fmt"

	"sprig/internal/commit"
)

// FirstParents walks the first-parent chain from id down to the root,
// starting with id itself.
func (r *Repository) FirstParents(id string) ([]*commit.Commit, error) {
	var chain []*commit.Commit
	for id != "" {
		c, ok := r.commits[id]
		if !ok {
			return nil, fmt.Errorf("commit %s missing from history", id)
		}
		chain = append(chain, c)
		id = c.Parent()
	}
	return chain, nil
}

// depth counts the commits on the first-parent chain below id, so the root
// has depth 0.
func (r *Repository) depth(id string) (int, error) {
	n := -1
	for id != "" {
		c, ok := r.commits[id]
		if !ok {
			return 0, fmt.Errorf("commit %s missing from history", id)
		}
		n++
		id = c.Parent()
	}
	return n, nil
}

// SplitPoint returns the nearest common ancestor of a and b along their
// first-parent chains. The deeper side is walked up until both are
// equidistant from the root, then both advance in step.
func (r *Repository) SplitPoint(a, b string) (string, error) {
	da, err := r.depth(a)
	if err != nil {
		return "", err
	}
	db, err := r.depth(b)
	if err != nil {
		return "", err
	}

	for ; da > db; da-- {
		a = r.commits[a].Parent()
	}
	for ; db > da; db-- {
		b = r.commits[b].Parent()
	}

	for a != b {
		if a == "" || b == "" {
			return "", fmt.Errorf("no common ancestor")
		}
		a = r.commits[a].Parent()
		b = r.commits[b].Parent()
	}
	if a == "" {
		return "", fmt.Errorf("no common ancestor")
	}
	return a, nil
}
