package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t   *testing.T
	dir string
}

func newCLI(t *testing.T) *cli {
	return &cli{t: t, dir: t.TempDir()}
}

// sprig runs one command and returns its stdout and exit code.
func (c *cli) sprig(args ...string) (string, int) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"-C", c.dir, "--no-color"}, args...)
	code := run(context.Background(), full, afero.NewOsFs(), &out, &errOut)
	if code != 0 {
		c.t.Logf("stderr: %s", errOut.String())
	}
	return out.String(), code
}

// ok runs a command that must succeed silently or with output.
func (c *cli) ok(args ...string) string {
	c.t.Helper()
	out, code := c.sprig(args...)
	require.Equal(c.t, 0, code, "sprig %v", args)
	return out
}

func (c *cli) write(name, content string) {
	c.t.Helper()
	p := filepath.Join(c.dir, name)
	require.NoError(c.t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(c.t, os.WriteFile(p, []byte(content), 0644))
}

func (c *cli) read(name string) string {
	c.t.Helper()
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	require.NoError(c.t, err)
	return string(data)
}

var commitLine = regexp.MustCompile(`(?m)^commit ([0-9a-f]{64})$`)

func (c *cli) logIDs() []string {
	c.t.Helper()
	var ids []string
	for _, m := range commitLine.FindAllStringSubmatch(c.ok("log"), -1) {
		ids = append(ids, m[1])
	}
	return ids
}

func TestInitAndStatus(t *testing.T) {
	c := newCLI(t)
	assert.Empty(t, c.ok("init"))

	want := "=== Branches ===\n*master\n\n" +
		"=== Staged Files ===\n\n" +
		"=== Removed Files ===\n\n" +
		"=== Modifications Not Staged For Commit ===\n\n" +
		"=== Untracked Files ===\n\n"
	assert.Equal(t, want, c.ok("status"))

	assert.Equal(t, "A sprig repository already exists in the current directory.\n", c.ok("init"))
}

func TestOutsideRepository(t *testing.T) {
	c := newCLI(t)
	assert.Equal(t, "Not in an initialized sprig directory.\n", c.ok("status"))
}

func TestOperandErrors(t *testing.T) {
	c := newCLI(t)
	c.ok("init")

	assert.Equal(t, "Incorrect operands.\n", c.ok("add"))
	assert.Equal(t, "Incorrect operands.\n", c.ok("commit", "a", "b"))
	assert.Equal(t, "Incorrect operands.\n", c.ok("checkout", "a", "b"))
	assert.Equal(t, "Incorrect operands.\n", c.ok("log", "--bogus"))

	c.write("dir/f.txt", "x")
	assert.Equal(t, "File does not exist.\n", c.ok("add", "dir"))
	assert.Contains(t, c.ok("status"), "=== Staged Files ===\n\n")
	assert.Equal(t, "No command with that name exists.\n", c.ok("frobnicate"))
	assert.Equal(t, "Please enter a command.\n", c.ok())
}

func TestCommitLogAndCheckoutFile(t *testing.T) {
	c := newCLI(t)
	c.ok("init")

	c.write("f.txt", "x")
	c.ok("add", "f.txt")
	c.ok("commit", "first")
	first := c.logIDs()[0]

	assert.Equal(t, "nothing to commit\n", c.ok("commit", "again"))
	assert.Equal(t, first, c.logIDs()[0])

	c.write("f.txt", "y")
	c.ok("add", "f.txt")
	c.ok("commit", "second")

	ids := c.logIDs()
	require.Len(t, ids, 3)
	assert.Equal(t, first, ids[1])

	log := c.ok("log")
	assert.True(t, strings.HasPrefix(log, "===\ncommit "+ids[0]+"\nDate: "))
	assert.Contains(t, log, "\nsecond\n\n===\n")
	assert.True(t, strings.HasSuffix(log, "\ninitial commit\n\n"))

	c.write("f.txt", "scribble")
	c.ok("checkout", first[:6], "--", "f.txt")
	assert.Equal(t, "x", c.read("f.txt"))

	c.ok("checkout", "--", "f.txt")
	assert.Equal(t, "y", c.read("f.txt"))

	assert.Equal(t, "File does not exist in that commit.\n", c.ok("checkout", "--", "nope.txt"))
	assert.Equal(t, "No commit with that id exists.\n", c.ok("checkout", "ffffff", "--", "f.txt"))

	assert.Equal(t, ids[0]+"\n", c.ok("find", "second"))
	assert.Equal(t, "Found no commit with that message.\n", c.ok("find", "third"))
	assert.Len(t, commitLine.FindAllString(c.ok("global-log"), -1), 3)
}

func TestRemoveAndStatus(t *testing.T) {
	c := newCLI(t)
	c.ok("init")
	c.write("a.txt", "a")
	c.write("b.txt", "b")
	c.ok("add", "a.txt")
	c.ok("add", "b.txt")
	c.ok("commit", "two files")

	c.ok("rm", "a.txt")
	_, err := os.Stat(filepath.Join(c.dir, "a.txt"))
	assert.True(t, os.IsNotExist(err))

	c.write("new.txt", "n")
	c.ok("add", "new.txt")
	c.write("b.txt", "changed")
	c.write("loose.txt", "l")

	assert.Equal(t, "no reason to remove the file\n", c.ok("rm", "loose.txt"))

	st := c.ok("status")
	assert.Contains(t, st, "=== Staged Files ===\nnew.txt\n\n")
	assert.Contains(t, st, "=== Removed Files ===\na.txt\n\n")
	assert.Contains(t, st, "=== Modifications Not Staged For Commit ===\nb.txt (modified)\n\n")
	assert.Contains(t, st, "=== Untracked Files ===\nloose.txt\n\n")
}

func TestBranchCheckoutAndMerge(t *testing.T) {
	c := newCLI(t)
	c.ok("init")
	c.write("f.txt", "base\n")
	c.write("g.txt", "g\n")
	c.ok("add", "f.txt")
	c.ok("add", "g.txt")
	c.ok("commit", "base")

	c.ok("branch", "dev")
	assert.Equal(t, "A branch with that name already exists.\n", c.ok("branch", "dev"))
	assert.Equal(t, "No need to checkout the current branch.\n", c.ok("checkout", "master"))
	assert.Equal(t, "No such branch exists.\n", c.ok("checkout", "ghost"))
	assert.Equal(t, "Cannot merge a branch with itself.\n", c.ok("merge", "master"))
	assert.Equal(t, "A branch with that name does not exist.\n", c.ok("merge", "ghost"))

	c.write("f.txt", "ours\n")
	c.ok("add", "f.txt")
	c.ok("commit", "ours")

	c.ok("checkout", "dev")
	assert.Equal(t, "base\n", c.read("f.txt"))
	c.write("f.txt", "theirs\n")
	c.write("h.txt", "h\n")
	c.ok("add", "f.txt")
	c.ok("add", "h.txt")
	c.ok("commit", "theirs")

	c.ok("checkout", "master")
	_, err := os.Stat(filepath.Join(c.dir, "h.txt"))
	assert.True(t, os.IsNotExist(err))

	c.write("stray.txt", "s")
	assert.Equal(t, "There is an untracked file in the way; delete it, or add and commit it first.\n",
		c.ok("merge", "dev"))
	require.NoError(t, os.Remove(filepath.Join(c.dir, "stray.txt")))

	assert.Equal(t, "Encountered a merge conflict.\n", c.ok("merge", "dev"))
	assert.Equal(t, "<<<<<<< HEAD\nours\n=======\ntheirs\n>>>>>>>\n", c.read("f.txt"))
	assert.Equal(t, "h\n", c.read("h.txt"))

	log := c.ok("log")
	assert.Regexp(t, `(?m)^Merge: [0-9a-f]{6} [0-9a-f]{6}$`, log)
	assert.Contains(t, log, "\nMerged dev into master.\n")

	assert.Equal(t, "Cannot remove the current branch.\n", c.ok("rm-branch", "master"))
	c.ok("rm-branch", "dev")
	assert.Contains(t, c.ok("status"), "=== Branches ===\n*master\n\n")
}

func TestFastForwardAndReset(t *testing.T) {
	c := newCLI(t)
	c.ok("init")
	c.write("a.txt", "a")
	c.ok("add", "a.txt")
	c.ok("commit", "base")
	base := c.logIDs()[0]

	c.ok("branch", "dev")
	c.ok("checkout", "dev")
	c.write("b.txt", "b")
	c.ok("add", "b.txt")
	c.ok("commit", "dev work")
	tip := c.logIDs()[0]

	c.ok("checkout", "master")
	assert.Equal(t, "Current branch fast-forwarded.\n", c.ok("merge", "dev"))
	assert.Equal(t, tip, c.logIDs()[0])
	assert.Equal(t, "b", c.read("b.txt"))

	assert.Equal(t, "Given branch is an ancestor of the current branch.\n", c.ok("merge", "dev"))

	c.ok("reset", base[:6])
	assert.Equal(t, base, c.logIDs()[0])
	_, err := os.Stat(filepath.Join(c.dir, "b.txt"))
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, "All blobs verified.\n", c.ok("verify"))
}

func TestInvalidConfig(t *testing.T) {
	c := newCLI(t)
	c.ok("init")
	c.write(".sprig/config.json", `{"log_level": "chatty"}`)

	out, code := c.sprig("status")
	assert.Equal(t, 0, code)
	assert.Equal(t, "invalid log level \"chatty\"\n", out)
}

func TestReadOnlyCommandsKeepState(t *testing.T) {
	c := newCLI(t)
	c.ok("init")
	c.write("a.txt", "a")
	c.ok("add", "a.txt")
	c.ok("commit", "base")

	state := filepath.Join(c.dir, ".sprig", "state.json")
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(state, past, past))

	c.ok("log")
	c.ok("global-log")
	c.ok("find", "base")
	c.ok("status")
	c.ok("verify")

	info, err := os.Stat(state)
	require.NoError(t, err)
	assert.True(t, past.Equal(info.ModTime()), "state rewritten at %v", info.ModTime())

	c.ok("branch", "dev")
	info, err = os.Stat(state)
	require.NoError(t, err)
	assert.False(t, past.Equal(info.ModTime()))
}
