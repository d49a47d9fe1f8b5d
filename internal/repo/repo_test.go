package repo

import (
	"testing"
	"time"

	"sprig/internal/commit"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// advance commits msg on top of b with one extra file and moves b's head.
func advance(t *testing.T, r *Repository, b *Branch, msg string, n int) *commit.Commit {
	t.Helper()
	head := r.HeadCommit(b)
	m := head.Mapping.Clone()
	m[msg+".txt"] = "digest-" + msg
	c := commit.New([]string{head.ID}, msg, epoch.Add(time.Duration(n)*time.Minute), m)
	r.AddCommit(c)
	require.NoError(t, r.MoveHead(b, c.ID))
	return c
}

func TestInit(t *testing.T) {
	r := Init()

	assert.Equal(t, DefaultBranch, r.ActiveName())
	assert.Equal(t, []string{DefaultBranch}, r.BranchNames())

	head := r.HeadCommit(r.Active())
	assert.Equal(t, commit.RootMessage, head.Message)
	assert.Empty(t, head.Parents)
	assert.Empty(t, head.Mapping)
	assert.True(t, r.Active().Stage.Empty())
}

func TestResolve(t *testing.T) {
	r := Init()
	c := advance(t, r, r.Active(), "one", 1)

	for _, id := range []string{c.ID, c.ID[:6], c.ID[:10], "  " + c.ID[:8] + " "} {
		got, err := r.Resolve(id)
		require.NoError(t, err, id)
		assert.Equal(t, c.ID, got.ID)
	}

	for _, id := range []string{"", "abc", "zzzzzz", c.ID + "0"} {
		_, err := r.Resolve(id)
		assert.ErrorIs(t, err, ErrNoSuchCommit, id)
	}
}

func TestResolveAmbiguousShortID(t *testing.T) {
	r := Init()
	a := &commit.Commit{ID: "abcdef" + "1111", Message: "a"}
	b := &commit.Commit{ID: "abcdef" + "2222", Message: "b"}
	r.AddCommit(a)
	r.AddCommit(b)

	_, err := r.Resolve("abcdef")
	assert.ErrorIs(t, err, ErrNoSuchCommit)

	got, err := r.Resolve("abcdef2")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

func TestFindByMessage(t *testing.T) {
	r := Init()
	first := advance(t, r, r.Active(), "same", 1)
	second := commit.New([]string{first.ID}, "same", epoch.Add(time.Hour), commit.Mapping{"x": "y"})
	r.AddCommit(second)

	ids, err := r.FindByMessage("same")
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, ids)

	_, err = r.FindByMessage("missing")
	assert.ErrorIs(t, err, ErrNoCommitWithMessage)
}

func TestBranches(t *testing.T) {
	r := Init()
	head := r.Active().Head

	b, err := r.CreateBranch("dev")
	require.NoError(t, err)
	assert.Equal(t, head, b.Head)
	assert.Equal(t, DefaultBranch, r.ActiveName())

	_, err = r.CreateBranch("dev")
	assert.ErrorIs(t, err, ErrBranchExists)

	for _, bad := range []string{"", "has space", "-flag", "/abs"} {
		_, err = r.CreateBranch(bad)
		assert.ErrorIs(t, err, ErrInvalidBranchName, bad)
	}

	assert.ErrorIs(t, r.DeleteBranch(DefaultBranch), ErrRemoveActiveBranch)
	assert.ErrorIs(t, r.DeleteBranch("nope"), ErrBranchNotFound)

	require.NoError(t, r.SetActive("dev"))
	assert.Equal(t, "dev", r.ActiveName())
	require.NoError(t, r.DeleteBranch(DefaultBranch))
	assert.Equal(t, []string{"dev"}, r.BranchNames())

	// Commits survive branch removal.
	_, ok := r.Commit(head)
	assert.True(t, ok)
}

func TestFirstParents(t *testing.T) {
	r := Init()
	root := r.Active().Head
	a := advance(t, r, r.Active(), "a", 1)
	b := advance(t, r, r.Active(), "b", 2)

	chain, err := r.FirstParents(b.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, []string{b.ID, a.ID, root}, []string{chain[0].ID, chain[1].ID, chain[2].ID})
}

func TestSplitPoint(t *testing.T) {
	r := Init()
	master := r.Active()
	base := advance(t, r, master, "base", 1)

	dev, err := r.CreateBranch("dev")
	require.NoError(t, err)

	m1 := advance(t, r, master, "m1", 2)
	advance(t, r, master, "m2", 3)
	advance(t, r, master, "m3", 4)
	d1 := advance(t, r, dev, "d1", 5)

	tests := []struct {
		name string
		a, b string
		want string
	}{
		{"diverged, uneven depth", master.Head, dev.Head, base.ID},
		{"diverged, reversed", dev.Head, master.Head, base.ID},
		{"ancestor", master.Head, m1.ID, m1.ID},
		{"descendant", base.ID, master.Head, base.ID},
		{"same commit", d1.ID, d1.ID, d1.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.SplitPoint(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = r.SplitPoint(master.Head, "unknown")
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/repo/.sprig", 0755))
	path := "/repo/.sprig/" + StateFile

	r := Init()
	c := advance(t, r, r.Active(), "one", 1)
	dev, err := r.CreateBranch("dev")
	require.NoError(t, err)
	require.NoError(t, r.SetActive("dev"))
	dev.Stage.Add("new.txt", "d-new")

	require.NoError(t, Save(fs, path, r))

	back, err := Load(fs, path)
	require.NoError(t, err)

	assert.Equal(t, "dev", back.ActiveName())
	assert.Equal(t, r.BranchNames(), back.BranchNames())
	assert.Len(t, back.Commits(), 2)

	got, err := back.Resolve(c.ShortID())
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.True(t, got.Timestamp.Equal(c.Timestamp))

	bdev, ok := back.Branch("dev")
	require.True(t, ok)
	assert.Equal(t, []string{"new.txt"}, bdev.Stage.Additions())
	d, tracked := bdev.Stage.Tracked("one.txt")
	assert.True(t, tracked)
	assert.Equal(t, "digest-one", d)

	root, err := back.FindByMessage(commit.RootMessage)
	require.NoError(t, err)
	require.Len(t, root, 1)
	rc, _ := back.Commit(root[0])
	assert.True(t, rc.Timestamp.Equal(commit.RootTime))
}

func TestDecodeRejectsCorruptState(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"wrong version", `{"version": 99, "active": "master"}`},
		{"missing active", `{"version": 1, "active": "master"}`},
		{"commit id mismatch", `{"version": 1, "active": "master",
			"commits": {"abc": {"id": "abc", "message": "x", "timestamp": "2024-01-01T00:00:00Z"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
