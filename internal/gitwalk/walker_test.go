package gitwalk_test

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"prodcon/internal/gitwalk"
)

// fakeSource is an in-memory Source: commits map to a root tree per path,
// trees map to entries, blobs map to text.
type fakeSource struct {
	commits []string
	// subtree[commit] is the tree hash at the walk root, "" meaning the
	// root path is absent in that commit.
	subtrees map[string]string
	trees    map[string][]gitwalk.TreeEntry
	blobs    map[string]string
}

func (f *fakeSource) Commits() ([]string, error) { return f.commits, nil }

func (f *fakeSource) Subtree(commit, path string) (string, bool, error) {
	h, ok := f.subtrees[commit]
	if !ok || h == "" {
		return "", false, nil
	}
	return h, true, nil
}

func (f *fakeSource) Entries(tree string) ([]gitwalk.TreeEntry, error) {
	entries, ok := f.trees[tree]
	if !ok {
		return nil, fmt.Errorf("unknown tree %s", tree)
	}
	return entries, nil
}

func (f *fakeSource) FileContent(blob string) (string, error) {
	text, ok := f.blobs[blob]
	if !ok {
		return "", fmt.Errorf("unknown blob %s", blob)
	}
	return text, nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		commits:  []string{"c1", "c2", "c0"},
		subtrees: map[string]string{"c1": "root1", "c2": "root1"},
		trees: map[string][]gitwalk.TreeEntry{
			"root1": {
				{Name: "release", Hash: "t-release", IsTree: true},
				{Name: "README.md", Hash: "b-readme"},
			},
			"t-release": {
				{Name: "2.0.0", Hash: "t-200", IsTree: true},
				{Name: "2.1", Hash: "t-21", IsTree: true},
			},
			"t-200": {
				{Name: "build.xml", Hash: "b-200"},
			},
			"t-21": {
				{Name: "build.xml", Hash: "b-21"},
				{Name: "notes.txt", Hash: "b-notes"},
			},
		},
		blobs: map[string]string{
			"b-200": "manifest-200",
			"b-21":  "manifest-21",
		},
	}
}

func collect(t *testing.T, src gitwalk.Source) []gitwalk.Manifest {
	t.Helper()
	var out []gitwalk.Manifest
	err := gitwalk.Walk(context.Background(), src, "build-info", func(m gitwalk.Manifest) error {
		out = append(out, m)
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return out
}

func TestWalkFindsManifestsWithBranchPaths(t *testing.T) {
	got := collect(t, newFakeSource())
	want := []gitwalk.Manifest{
		{Branch: "release/2.0.0", Text: "manifest-200", Commit: "c1"},
		{Branch: "release/2.1", Text: "manifest-21", Commit: "c1"},
		{Branch: "release/2.0.0", Text: "manifest-200", Commit: "c2"},
		{Branch: "release/2.1", Text: "manifest-21", Commit: "c2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestWalkSkipsCommitWithoutRootPath(t *testing.T) {
	// c0 predates the manifest convention and must contribute nothing.
	got := collect(t, newFakeSource())
	for _, m := range got {
		if m.Commit == "c0" {
			t.Fatalf("commit without root path produced %+v", m)
		}
	}
}

func TestWalkIgnoresOtherFiles(t *testing.T) {
	for _, m := range collect(t, newFakeSource()) {
		if m.Text == "" || m.Branch == "" {
			t.Fatalf("unexpected manifest %+v", m)
		}
	}
}

func TestWalkRestartable(t *testing.T) {
	src := newFakeSource()
	first := collect(t, src)
	second := collect(t, src)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("two walks over the same source differ")
	}
}

func TestWalkVisitErrorStops(t *testing.T) {
	src := newFakeSource()
	calls := 0
	sentinel := fmt.Errorf("stop here")
	err := gitwalk.Walk(context.Background(), src, "build-info", func(m gitwalk.Manifest) error {
		calls++
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("walk continued after error: %d calls", calls)
	}
}

func TestWalkManifestAtRoot(t *testing.T) {
	src := &fakeSource{
		commits:  []string{"c1"},
		subtrees: map[string]string{"c1": "root"},
		trees: map[string][]gitwalk.TreeEntry{
			"root": {{Name: "build.xml", Hash: "b1"}},
		},
		blobs: map[string]string{"b1": "root-manifest"},
	}
	got := collect(t, src)
	if len(got) != 1 || got[0].Branch != "" || got[0].Text != "root-manifest" {
		t.Fatalf("got %+v", got)
	}
}

func TestWalkCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := gitwalk.Walk(ctx, newFakeSource(), "build-info", func(m gitwalk.Manifest) error {
		t.Fatalf("visit called after cancellation")
		return nil
	})
	if err == nil {
		t.Fatalf("expected context error")
	}
}
