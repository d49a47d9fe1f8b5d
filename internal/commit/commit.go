// Package commit defines the immutable snapshot node of the history DAG.
package commit

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"sprig/internal/safe"
)

const (
	// ShortIDLen is the length of the abbreviated ids accepted on the
	// command line and shown on Merge: lines.
	ShortIDLen = 6

	RootMessage = "initial commit"

	// DateLayout renders timestamps on the Date: line of a log record.
	DateLayout = "Mon Jan 2 15:04:05 2006 -0700"
)

// RootTime is the fixed timestamp of every repository's root commit.
var RootTime = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.FixedZone("", -8*60*60))

// Mapping is a full snapshot: slash-separated path -> blob digest.
type Mapping map[string]string

func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for p, d := range m {
		out[p] = d
	}
	return out
}

// Equal compares path sets and per-path digests.
func (m Mapping) Equal(o Mapping) bool {
	if len(m) != len(o) {
		return false
	}
	for p, d := range m {
		if od, ok := o[p]; !ok || od != d {
			return false
		}
	}
	return true
}

// Paths returns the tracked paths in sorted order.
func (m Mapping) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// canonical serializes the mapping as sorted "path NUL digest LF" records.
func (m Mapping) canonical() []byte {
	var buf bytes.Buffer
	for _, p := range m.Paths() {
		buf.WriteString(p)
		buf.WriteByte(0)
		buf.WriteString(m[p])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Commit is never mutated after New returns it.
type Commit struct {
	ID        string    `json:"id"`
	Parents   []string  `json:"parents,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Mapping   Mapping   `json:"mapping"`
}

// New builds a commit and computes its id. The mapping is copied.
func New(parents []string, message string, ts time.Time, mapping Mapping) *Commit {
	c := &Commit{
		Parents:   append([]string(nil), parents...),
		Message:   message,
		Timestamp: ts,
		Mapping:   mapping.Clone(),
	}
	c.ID = ComputeID(c.Parents, c.Message, c.Timestamp, c.Mapping)
	return c
}

// Root returns the parentless commit every repository starts from.
func Root() *Commit {
	return New(nil, RootMessage, RootTime, Mapping{})
}

// ComputeID digests parent ids, message, timestamp and the mapping.
func ComputeID(parents []string, message string, ts time.Time, mapping Mapping) string {
	var buf bytes.Buffer
	buf.WriteString(strings.Join(parents, "\n"))
	buf.WriteByte('\n')
	buf.WriteString(message)
	buf.WriteByte('\n')
	buf.WriteString(ts.Format(time.RFC3339Nano))
	buf.WriteByte('\n')
	buf.Write(mapping.canonical())
	return safe.Digest(buf.Bytes())
}

// Verify recomputes the id from the commit's fields.
func (c *Commit) Verify() error {
	if want := ComputeID(c.Parents, c.Message, c.Timestamp, c.Mapping); want != c.ID {
		return fmt.Errorf("commit %s: id does not match content (want %s)", c.ID, want)
	}
	return nil
}

// Parent returns the first parent id, or "" for the root commit.
func (c *Commit) Parent() string {
	if len(c.Parents) == 0 {
		return ""
	}
	return c.Parents[0]
}

func (c *Commit) IsMerge() bool {
	return len(c.Parents) == 2
}

func (c *Commit) ShortID() string {
	return Short(c.ID)
}

// Short abbreviates id to ShortIDLen characters.
func Short(id string) string {
	if len(id) <= ShortIDLen {
		return id
	}
	return id[:ShortIDLen]
}

// Format renders the log record of c, without the trailing blank line.
func (c *Commit) Format() string {
	var sb strings.Builder
	sb.WriteString("===\n")
	fmt.Fprintf(&sb, "commit %s\n", c.ID)
	if c.IsMerge() {
		fmt.Fprintf(&sb, "Merge: %s %s\n", Short(c.Parents[0]), Short(c.Parents[1]))
	}
	fmt.Fprintf(&sb, "Date: %s\n", c.Timestamp.Format(DateLayout))
	sb.WriteString(c.Message)
	sb.WriteByte('\n')
	return sb.String()
}
