// internal/session/session.go
package session

import (
	"fmt"
	"path/filepath"
	"time"

	"sprig/internal/config"
	"sprig/internal/errors"
	"sprig/internal/logging"
	"sprig/internal/repo"
	"sprig/internal/safe"
	"sprig/internal/storage"
	"sprig/internal/workspace"
	"sprig/internal/worktree"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var ErrAlreadyInitialized = errors.Validation("A sprig repository already exists in the current directory.")

const (
	objectsDir = "objects"
	dbDir      = "db"
)

// Session is one opened repository: its configuration, stores, working
// tree and the Repository loaded from disk.
type Session struct {
	Root      string
	Config    *config.Config
	Logger    *logging.Logger
	FS        afero.Fs
	DB        *badger.DB
	Safe      *safe.Safe
	Tree      *worktree.Tree
	Repo      *repo.Repository
	Workspace *workspace.Workspace
}

type Options struct {
	// FS defaults to the host filesystem.
	FS afero.Fs
	// Logger overrides the logger built from the configured level.
	Logger *logging.Logger
	// InMemoryIndex keeps the blob index in memory regardless of config.
	InMemoryIndex bool
	Clock         func() time.Time
}

func (o *Options) fs() afero.Fs {
	if o.FS == nil {
		o.FS = afero.NewOsFs()
	}
	return o.FS
}

// Init creates a repository in dir and returns it opened.
func Init(dir string, opts Options) (*Session, error) {
	fs := opts.fs()
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for %s: %w", dir, err)
	}

	tree := worktree.New(fs, root)
	if ok, err := afero.DirExists(fs, tree.MetaPath()); err != nil {
		return nil, fmt.Errorf("checking %s: %w", tree.MetaPath(), err)
	} else if ok {
		return nil, ErrAlreadyInitialized
	}

	s, err := create(tree, root, opts)
	if err != nil {
		if rmErr := fs.RemoveAll(tree.MetaPath()); rmErr != nil {
			return nil, errors.Internal("removing partial repository", rmErr)
		}
		return nil, err
	}
	s.Logger.Debug("repository initialized", zap.String("root", root))
	return s, nil
}

// create lays out the metadata directory and writes the initial state.
func create(tree *worktree.Tree, root string, opts Options) (*Session, error) {
	for _, d := range []string{tree.MetaPath(objectsDir), tree.MetaPath(dbDir)} {
		if err := opts.FS.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	s, err := open(root, repo.Init(), opts)
	if err != nil {
		return nil, err
	}
	if err := s.Save(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Open finds the repository enclosing dir and loads its state.
func Open(dir string, opts Options) (*Session, error) {
	fs := opts.fs()
	root, err := worktree.FindRoot(fs, dir)
	if err != nil {
		return nil, err
	}
	return open(root, nil, opts)
}

// open wires every component for root. A nil r is loaded from disk once
// the stores are up.
func open(root string, r *repo.Repository, opts Options) (*Session, error) {
	fs := opts.fs()
	tree := worktree.New(fs, root)

	cfg, err := config.Load(fs, tree.MetaPath())
	if err != nil {
		if errors.IsUser(err) {
			return nil, err
		}
		return nil, errors.Internal("loading configuration", err)
	}

	logger := opts.Logger
	if logger == nil {
		if logger, err = logging.NewLogger(cfg.LogLevel); err != nil {
			return nil, errors.Internal("creating logger", err)
		}
	}

	db, err := storage.OpenBadger(tree.MetaPath(dbDir), cfg.Storage.InMemoryIndex || opts.InMemoryIndex)
	if err != nil {
		return nil, errors.Internal("opening index", err)
	}

	store, err := safe.New(fs, db, safe.Options{
		Root:      tree.MetaPath(objectsDir),
		CacheSize: cfg.Store.CacheSize,
		Compression: safe.CompressionOptions{
			MinSize: cfg.Store.Compression.MinSize,
			Level:   cfg.Store.Compression.Level,
		},
		Logger: logger.Logger,
	})
	if err != nil {
		db.Close()
		return nil, errors.Internal("opening object store", err)
	}

	if r == nil {
		if r, err = repo.Load(fs, tree.MetaPath(repo.StateFile)); err != nil {
			store.Close()
			db.Close()
			return nil, errors.Internal("loading repository", err)
		}
	}

	return &Session{
		Root:   root,
		Config: cfg,
		Logger: logger,
		FS:     fs,
		DB:     db,
		Safe:   store,
		Tree:   tree,
		Repo:   r,
		Workspace: workspace.New(r, tree, store, workspace.Options{
			Clock:  opts.Clock,
			Logger: logger.Logger,
		}),
	}, nil
}

// Save atomically replaces the persisted Repository.
func (s *Session) Save() error {
	if err := repo.Save(s.FS, s.Tree.MetaPath(repo.StateFile), s.Repo); err != nil {
		return errors.Internal("saving repository", err)
	}
	return nil
}

func (s *Session) Close() error {
	s.Safe.Close()
	if err := s.DB.Close(); err != nil {
		return fmt.Errorf("closing index: %w", err)
	}
	_ = s.Logger.Sync()
	return nil
}
