package repo

import (
	"encoding/json"
	"fmt"
	"os"

	"sprig/internal/commit"
	"sprig/internal/stage"
	"sprig/internal/storage"

	"github.com/spf13/afero"
)

// StateVersion is bumped whenever the document layout changes.
const StateVersion = 1

// StateFile is the name of the repository document inside the metadata dir.
const StateFile = "state.json"

type branchDoc struct {
	Head  string      `json:"head"`
	Stage stage.State `json:"stage"`
}

type document struct {
	Version  int                       `json:"version"`
	Active   string                    `json:"active"`
	Commits  map[string]*commit.Commit `json:"commits"`
	ShortIDs map[string][]string       `json:"short_ids"`
	Branches map[string]branchDoc      `json:"branches"`
	Messages map[string][]string       `json:"messages"`
}

// MarshalJSON encodes the whole aggregate.
func (r *Repository) MarshalJSON() ([]byte, error) {
	doc := document{
		Version:  StateVersion,
		Active:   r.active,
		Commits:  r.commits,
		ShortIDs: r.shortIDs,
		Branches: make(map[string]branchDoc, len(r.branches)),
		Messages: r.messages,
	}
	for name, b := range r.branches {
		doc.Branches[name] = branchDoc{Head: b.Head, Stage: b.Stage.State()}
	}
	return json.Marshal(doc)
}

// Decode rebuilds a Repository from its JSON document and checks that it is
// internally consistent.
func Decode(data []byte) (*Repository, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding repository state: %w", err)
	}
	if doc.Version != StateVersion {
		return nil, fmt.Errorf("unsupported repository state version %d", doc.Version)
	}

	r := empty()
	for id, c := range doc.Commits {
		if c == nil || c.ID != id {
			return nil, fmt.Errorf("commit table entry %s is inconsistent", id)
		}
		if c.Mapping == nil {
			c.Mapping = commit.Mapping{}
		}
		if err := c.Verify(); err != nil {
			return nil, err
		}
		r.commits[id] = c
	}
	for _, c := range r.commits {
		for _, p := range c.Parents {
			if _, ok := r.commits[p]; !ok {
				return nil, fmt.Errorf("commit %s: unknown parent %s", c.ID, p)
			}
		}
	}

	for short, ids := range doc.ShortIDs {
		for _, id := range ids {
			if commit.Short(id) != short {
				return nil, fmt.Errorf("short id %s indexes %s", short, id)
			}
			if _, ok := r.commits[id]; !ok {
				return nil, fmt.Errorf("short id %s: unknown commit %s", short, id)
			}
		}
		r.shortIDs[short] = ids
	}
	for msg, ids := range doc.Messages {
		for _, id := range ids {
			if _, ok := r.commits[id]; !ok {
				return nil, fmt.Errorf("message index: unknown commit %s", id)
			}
		}
		r.messages[msg] = ids
	}

	for name, bd := range doc.Branches {
		head, ok := r.commits[bd.Head]
		if !ok {
			return nil, fmt.Errorf("branch %s: unknown head %s", name, bd.Head)
		}
		st, err := stage.Restore(head.Mapping, bd.Stage)
		if err != nil {
			return nil, fmt.Errorf("branch %s: %w", name, err)
		}
		r.branches[name] = &Branch{Name: name, Head: bd.Head, Stage: st}
	}
	if _, ok := r.branches[doc.Active]; !ok {
		return nil, fmt.Errorf("active branch %q does not exist", doc.Active)
	}
	r.active = doc.Active

	return r, nil
}

// Load reads the repository document at path.
func Load(fs afero.Fs, path string) (*Repository, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading repository state: %w", err)
	}
	return Decode(data)
}

// Save atomically replaces the repository document at path.
func Save(fs afero.Fs, path string, r *Repository) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding repository state: %w", err)
	}
	return storage.WriteFileAtomic(fs, path, data, os.FileMode(0644))
}
