// Package workspace implements the user-facing operations of a sprig
// repository on top of the Repository aggregate, the working tree and the
// object store.
//
// Every operation checks all of its preconditions before it touches the
// working tree or the Repository, so a returned user error means nothing
// was changed. Persisting the Repository is left to the caller.
package workspace

import (
	"fmt"
	"time"

	"sprig/internal/commit"
	"sprig/internal/errors"
	"sprig/internal/repo"
	"sprig/internal/worktree"

	"go.uber.org/zap"
)

var (
	ErrNothingToCommit   = errors.Validation("nothing to commit")
	ErrEmptyMessage      = errors.Validation("Please enter a commit message.")
	ErrFileNotInCommit   = errors.NotFound("File does not exist in that commit.")
	ErrUncommitted       = errors.Conflict("You have uncommitted changes.")
	ErrUntrackedInTheWay = errors.Conflict("There is an untracked file in the way; delete it, or add and commit it first.")
	ErrNoSuchBranch      = errors.NotFound("No such branch exists.")
	ErrAlreadyOnBranch   = errors.Validation("No need to checkout the current branch.")
	ErrSelfMerge         = errors.Validation("Cannot merge a branch with itself.")
	ErrPathClash         = errors.Conflict("Merging would place a file where a directory is needed.")
)

// BlobStore is the content-addressable store blobs are read from and
// written to. *safe.Safe satisfies it.
type BlobStore interface {
	Put(content []byte) (string, error)
	Get(hash string) ([]byte, error)
}

type Options struct {
	// Clock stamps new commits. Defaults to time.Now.
	Clock  func() time.Time
	Logger *zap.Logger
}

type Workspace struct {
	repo   *repo.Repository
	tree   *worktree.Tree
	store  BlobStore
	clock  func() time.Time
	logger *zap.Logger
}

func New(r *repo.Repository, tree *worktree.Tree, store BlobStore, opts Options) *Workspace {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Workspace{
		repo:   r,
		tree:   tree,
		store:  store,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
}

// Repository exposes the aggregate the workspace operates on.
func (w *Workspace) Repository() *repo.Repository { return w.repo }

func (w *Workspace) head() *commit.Commit {
	return w.repo.HeadCommit(w.repo.Active())
}

// checkUntracked refuses when any working file differs from the active
// head and is not staged for addition.
func (w *Workspace) checkUntracked() error {
	b := w.repo.Active()
	head := w.repo.HeadCommit(b)

	files, err := w.tree.Files()
	if err != nil {
		return err
	}
	for _, p := range files {
		if b.Stage.IsAdded(p) {
			continue
		}
		d, err := w.tree.Digest(p)
		if err != nil {
			return err
		}
		if tracked, ok := head.Mapping[p]; ok && tracked == d {
			continue
		}
		w.logger.Debug("file in the way", zap.String("path", p))
		return ErrUntrackedInTheWay
	}
	return nil
}

// materialize makes the working tree hold exactly target. Every blob is
// loaded before the first file is touched.
func (w *Workspace) materialize(target commit.Mapping) error {
	blobs := make(map[string][]byte)
	for _, p := range target.Paths() {
		if d, err := w.tree.Digest(p); err == nil && d == target[p] {
			continue
		}
		data, err := w.store.Get(target[p])
		if err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
		blobs[p] = data
	}

	files, err := w.tree.Files()
	if err != nil {
		return err
	}
	for _, p := range files {
		if _, keep := target[p]; !keep {
			if err := w.tree.Remove(p); err != nil {
				return err
			}
		}
	}
	for _, p := range target.Paths() {
		data, ok := blobs[p]
		if !ok {
			continue
		}
		if err := w.tree.Write(p, data); err != nil {
			return err
		}
	}

	w.logger.Debug("working tree materialized",
		zap.Int("files", len(target)),
		zap.Int("written", len(blobs)),
	)
	return nil
}
