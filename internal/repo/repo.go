// Package repo holds the Repository aggregate: the commit table, the
// short-id and message indexes, the branch table and the active branch.
//
// A Repository is a plain in-memory value. It is loaded once per command,
// mutated by the workspace operations and persisted once at the end.
package repo

import (
	"sort"
	"strings"
	"unicode"

	"sprig/internal/commit"
	"sprig/internal/errors"
	"sprig/internal/stage"
)

// DefaultBranch is the branch created by Init.
const DefaultBranch = "master"

var (
	ErrNoSuchCommit        = errors.NotFound("No commit with that id exists.")
	ErrNoCommitWithMessage = errors.NotFound("Found no commit with that message.")
	ErrBranchExists        = errors.Validation("A branch with that name already exists.")
	ErrBranchNotFound      = errors.NotFound("A branch with that name does not exist.")
	ErrRemoveActiveBranch  = errors.Validation("Cannot remove the current branch.")
	ErrInvalidBranchName   = errors.Validation("Invalid branch name.")
)

// Branch is a named pointer to a head commit plus its own staging area.
type Branch struct {
	Name  string
	Head  string
	Stage *stage.Stage
}

type Repository struct {
	commits  map[string]*commit.Commit
	shortIDs map[string][]string
	branches map[string]*Branch
	messages map[string][]string
	active   string
}

func empty() *Repository {
	return &Repository{
		commits:  make(map[string]*commit.Commit),
		shortIDs: make(map[string][]string),
		branches: make(map[string]*Branch),
		messages: make(map[string][]string),
	}
}

// Init returns a fresh repository holding the root commit and a single
// active branch named DefaultBranch.
func Init() *Repository {
	r := empty()
	root := commit.Root()
	r.AddCommit(root)
	r.branches[DefaultBranch] = &Branch{
		Name:  DefaultBranch,
		Head:  root.ID,
		Stage: stage.New(root.Mapping),
	}
	r.active = DefaultBranch
	return r
}

// AddCommit indexes c by id, short id and message. Adding a commit twice
// is a no-op.
func (r *Repository) AddCommit(c *commit.Commit) {
	if _, ok := r.commits[c.ID]; ok {
		return
	}
	r.commits[c.ID] = c
	short := c.ShortID()
	r.shortIDs[short] = append(r.shortIDs[short], c.ID)
	r.messages[c.Message] = append(r.messages[c.Message], c.ID)
}

// Commit looks up a commit by full id.
func (r *Repository) Commit(id string) (*commit.Commit, bool) {
	c, ok := r.commits[id]
	return c, ok
}

// Commits returns every commit, ordered by id.
func (r *Repository) Commits() []*commit.Commit {
	out := make([]*commit.Commit, 0, len(r.commits))
	for _, c := range r.commits {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve accepts a full id, a 6-character short id, or any longer unique
// prefix.
func (r *Repository) Resolve(id string) (*commit.Commit, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if len(id) < commit.ShortIDLen {
		return nil, ErrNoSuchCommit
	}

	candidates := r.shortIDs[id[:commit.ShortIDLen]]
	var match string
	for _, full := range candidates {
		if strings.HasPrefix(full, id) {
			if match != "" {
				return nil, ErrNoSuchCommit // ambiguous
			}
			match = full
		}
	}
	if match == "" {
		return nil, ErrNoSuchCommit
	}
	return r.commits[match], nil
}

// FindByMessage returns the ids of commits with exactly this message, in
// creation order.
func (r *Repository) FindByMessage(message string) ([]string, error) {
	ids := r.messages[message]
	if len(ids) == 0 {
		return nil, ErrNoCommitWithMessage
	}
	return append([]string(nil), ids...), nil
}

func (r *Repository) ActiveName() string { return r.active }

func (r *Repository) Active() *Branch { return r.branches[r.active] }

func (r *Repository) Branch(name string) (*Branch, bool) {
	b, ok := r.branches[name]
	return b, ok
}

// BranchNames returns all branch names, sorted.
func (r *Repository) BranchNames() []string {
	names := make([]string, 0, len(r.branches))
	for n := range r.branches {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HeadCommit returns the commit b points to.
func (r *Repository) HeadCommit(b *Branch) *commit.Commit {
	return r.commits[b.Head]
}

func validBranchName(name string) bool {
	if name == "" || strings.HasPrefix(name, "-") || strings.HasPrefix(name, "/") {
		return false
	}
	return strings.IndexFunc(name, unicode.IsSpace) < 0
}

// CreateBranch points a new branch at the active head. It does not switch
// to it.
func (r *Repository) CreateBranch(name string) (*Branch, error) {
	if !validBranchName(name) {
		return nil, ErrInvalidBranchName
	}
	if _, ok := r.branches[name]; ok {
		return nil, ErrBranchExists
	}
	head := r.HeadCommit(r.Active())
	b := &Branch{Name: name, Head: head.ID, Stage: stage.New(head.Mapping)}
	r.branches[name] = b
	return b, nil
}

// DeleteBranch drops the pointer only; commits are retained.
func (r *Repository) DeleteBranch(name string) error {
	if _, ok := r.branches[name]; !ok {
		return ErrBranchNotFound
	}
	if name == r.active {
		return ErrRemoveActiveBranch
	}
	delete(r.branches, name)
	return nil
}

// SetActive switches the active branch and gives it a fresh stage.
func (r *Repository) SetActive(name string) error {
	b, ok := r.branches[name]
	if !ok {
		return ErrBranchNotFound
	}
	r.active = name
	b.Stage = stage.New(r.HeadCommit(b).Mapping)
	return nil
}

// MoveHead points b at id and replaces its stage with an empty one rooted
// at the new head. id must already be in the commit table.
func (r *Repository) MoveHead(b *Branch, id string) error {
	c, ok := r.commits[id]
	if !ok {
		return ErrNoSuchCommit
	}
	b.Head = id
	b.Stage = stage.New(c.Mapping)
	return nil
}
