package workspace

import (
	"strings"

	"sprig/internal/commit"
	"sprig/internal/repo"
	"sprig/internal/safe"

	"go.uber.org/zap"
)

// Add stages the current content of path on the active branch. Content
// identical to the head's version is unstaged instead.
func (w *Workspace) Add(path string) error {
	rel, err := w.tree.Clean(path)
	if err != nil {
		return err
	}
	d, err := w.tree.Digest(rel)
	if err != nil {
		return err
	}

	staged := w.repo.Active().Stage.Add(rel, d)
	w.logger.Debug("add", zap.String("path", rel), zap.Bool("staged", staged))
	return nil
}

// Remove unstages path and, when the head tracks it, stages its removal and
// deletes it from the working tree.
func (w *Workspace) Remove(path string) error {
	rel, err := w.tree.Clean(path)
	if err != nil {
		return err
	}
	deleteFromTree, err := w.repo.Active().Stage.Remove(rel)
	if err != nil {
		return err
	}
	if deleteFromTree {
		if err := w.tree.Remove(rel); err != nil {
			return err
		}
	}
	w.logger.Debug("rm", zap.String("path", rel), zap.Bool("deleted", deleteFromTree))
	return nil
}

// Commit snapshots the active branch's stage.
func (w *Workspace) Commit(message string) (*commit.Commit, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	b := w.repo.Active()
	return w.commitStage(b, []string{b.Head}, message)
}

// commitStage turns b's stage into a commit with the given parents and
// advances b to it. The first parent must be b's head.
func (w *Workspace) commitStage(b *repo.Branch, parents []string, message string) (*commit.Commit, error) {
	head := w.repo.HeadCommit(b)

	contents := make(map[string][]byte)
	mapping, err := b.Stage.Apply(func(p string) (string, error) {
		data, err := w.tree.Read(p)
		if err != nil {
			return "", err
		}
		contents[p] = data
		return safe.Digest(data), nil
	})
	if err != nil {
		return nil, err
	}
	if mapping.Equal(head.Mapping) {
		return nil, ErrNothingToCommit
	}

	for _, p := range mapping.Paths() {
		data, ok := contents[p]
		if !ok {
			continue
		}
		if _, err := w.store.Put(data); err != nil {
			return nil, err
		}
	}

	c := commit.New(parents, message, w.clock(), mapping)
	w.repo.AddCommit(c)
	if err := w.repo.MoveHead(b, c.ID); err != nil {
		return nil, err
	}

	w.logger.Debug("commit created",
		zap.String("id", c.ID),
		zap.String("branch", b.Name),
		zap.Int("files", len(mapping)),
	)
	return c, nil
}

// Log returns the first-parent history of the active head, newest first.
func (w *Workspace) Log() ([]*commit.Commit, error) {
	return w.repo.FirstParents(w.repo.Active().Head)
}

// GlobalLog returns every commit ever made.
func (w *Workspace) GlobalLog() []*commit.Commit {
	return w.repo.Commits()
}

// Find returns the ids of all commits with the given message.
func (w *Workspace) Find(message string) ([]string, error) {
	return w.repo.FindByMessage(message)
}

// Branch creates a branch at the active head without switching to it.
func (w *Workspace) Branch(name string) error {
	b, err := w.repo.CreateBranch(name)
	if err != nil {
		return err
	}
	w.logger.Debug("branch created", zap.String("name", name), zap.String("head", b.Head))
	return nil
}

// RemoveBranch deletes the branch pointer; its commits are kept.
func (w *Workspace) RemoveBranch(name string) error {
	return w.repo.DeleteBranch(name)
}

// CheckoutBranch switches to name, replacing the working tree with its
// head snapshot. Both branches are left with empty stages.
func (w *Workspace) CheckoutBranch(name string) error {
	target, ok := w.repo.Branch(name)
	if !ok {
		return ErrNoSuchBranch
	}
	if name == w.repo.ActiveName() {
		return ErrAlreadyOnBranch
	}
	if err := w.checkUntracked(); err != nil {
		return err
	}

	if err := w.materialize(w.repo.HeadCommit(target).Mapping); err != nil {
		return err
	}
	cur := w.repo.Active()
	if err := w.repo.MoveHead(cur, cur.Head); err != nil {
		return err
	}
	if err := w.repo.SetActive(name); err != nil {
		return err
	}

	w.logger.Debug("checked out branch", zap.String("from", cur.Name), zap.String("to", name))
	return nil
}

// CheckoutFile restores path from the active head.
func (w *Workspace) CheckoutFile(path string) error {
	return w.checkoutFile(w.head(), path)
}

// CheckoutFileAt restores path from the commit id resolves to.
func (w *Workspace) CheckoutFileAt(id, path string) error {
	c, err := w.repo.Resolve(id)
	if err != nil {
		return err
	}
	return w.checkoutFile(c, path)
}

// checkoutFile overwrites the working copy of path with its version in c.
// The stage is left alone.
func (w *Workspace) checkoutFile(c *commit.Commit, path string) error {
	rel, err := w.tree.Clean(path)
	if err != nil {
		return ErrFileNotInCommit
	}
	d, ok := c.Mapping[rel]
	if !ok {
		return ErrFileNotInCommit
	}
	data, err := w.store.Get(d)
	if err != nil {
		return err
	}
	if err := w.tree.Write(rel, data); err != nil {
		return err
	}
	w.logger.Debug("checked out file", zap.String("path", rel), zap.String("commit", c.ID))
	return nil
}

// Reset moves the active branch to the commit id resolves to and makes
// the working tree match it.
func (w *Workspace) Reset(id string) error {
	c, err := w.repo.Resolve(id)
	if err != nil {
		return err
	}
	if err := w.checkUntracked(); err != nil {
		return err
	}

	if err := w.materialize(c.Mapping); err != nil {
		return err
	}
	b := w.repo.Active()
	if err := w.repo.MoveHead(b, c.ID); err != nil {
		return err
	}
	w.logger.Debug("reset", zap.String("branch", b.Name), zap.String("head", c.ID))
	return nil
}
