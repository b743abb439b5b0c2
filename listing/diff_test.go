package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	a := Entry{Kind: KindFile, Name: "a", Size: 1}
	b := Entry{Kind: KindFile, Name: "b", Size: 2}
	bResized := Entry{Kind: KindFile, Name: "b", Size: 3}
	c := Entry{Kind: KindDirectory, Name: "c"}

	changes := Diff([]Entry{a, b}, []Entry{a, bResized, c})

	assert.Equal(t, []Entry{bResized, c}, changes.Added)
	assert.Equal(t, []Entry{a}, changes.Unchanged)
	assert.Equal(t, []Entry{b}, changes.Removed)
}

func TestDiff_PartitionsAreDisjoint(t *testing.T) {
	t.Parallel()

	old := Parse([]byte(
		"-rw-r--r--   1 u g 10 Jan  5 09:30 one\n" +
			"-rw-r--r--   1 u g 20 Jan  5 09:30 two\n" +
			"drwxr-xr-x   2 u g  0 Jan  5 09:30 dir\n"))
	updated := Parse([]byte(
		"-rw-r--r--   1 u g 10 Jan  5 09:30 one\n" +
			"-rw-r--r--   1 u g 25 Jan  6 10:00 two\n" +
			"-rw-r--r--   1 u g 30 Jan  6 10:00 three\n"))

	changes := Diff(old, updated)

	seen := map[Entry]int{}
	for _, set := range [][]Entry{changes.Added, changes.Unchanged, changes.Removed} {
		for _, e := range set {
			seen[e]++
		}
	}
	for e, n := range seen {
		assert.Equal(t, 1, n, "entry %q in more than one set", e.Name)
	}
	assert.Len(t, changes.Added, 2)
	assert.Len(t, changes.Unchanged, 1)
	assert.Len(t, changes.Removed, 2)
}

func TestDiff_Empty(t *testing.T) {
	t.Parallel()

	changes := Diff(nil, nil)
	assert.Empty(t, changes.Added)
	assert.Empty(t, changes.Unchanged)
	assert.Empty(t, changes.Removed)
}
