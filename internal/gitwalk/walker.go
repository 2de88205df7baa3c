// Package gitwalk discovers build manifests in a repository's commit
// history. Walk depends only on the Source interface; the production
// implementation backed by go-git lives in source.go.
package gitwalk

import (
	"context"
	"fmt"
)

// ManifestFileName is the only file name the walker treats as a manifest.
const ManifestFileName = "build.xml"

// TreeEntry is one child of a tree object.
type TreeEntry struct {
	Name   string
	Hash   string
	IsTree bool
}

// Source is the repository access the walker needs. Hashes are opaque;
// the walker never interprets them.
type Source interface {
	// Commits lists every reachable commit exactly once, newest first.
	Commits() ([]string, error)
	// Subtree resolves the tree at path within a commit. ok is false when
	// the path does not exist in that commit; that is not an error.
	Subtree(commitHash, path string) (treeHash string, ok bool, err error)
	// Entries lists the children of a tree.
	Entries(treeHash string) ([]TreeEntry, error)
	// FileContent reads a blob as text.
	FileContent(blobHash string) (string, error)
}

// Manifest is one discovered build.xml: the branch is the /-joined
// directory path from the walk root down to the file's directory.
type Manifest struct {
	Branch string
	Text   string
	Commit string
}

// VisitFunc receives each discovered manifest. Returning an error stops
// the walk and propagates.
type VisitFunc func(m Manifest) error

// Walk enumerates commits and, for each, descends the subtree rooted at
// rootPath looking for manifest files. Commits whose tree lacks rootPath
// contribute nothing. The walk is stateless and restartable: calling it
// twice over the same source yields the same manifests.
func Walk(ctx context.Context, src Source, rootPath string, visit VisitFunc) error {
	commits, err := src.Commits()
	if err != nil {
		return fmt.Errorf("list commits: %w", err)
	}
	for _, commit := range commits {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := walkCommit(src, commit, rootPath, visit); err != nil {
			return err
		}
	}
	return nil
}

type frame struct {
	tree   string
	prefix string
}

func walkCommit(src Source, commit, rootPath string, visit VisitFunc) error {
	root, ok, err := src.Subtree(commit, rootPath)
	if err != nil {
		return fmt.Errorf("commit %s: resolve %s: %w", commit, rootPath, err)
	}
	if !ok {
		return nil
	}

	// Explicit worklist instead of recursion: tree depth is repository
	// data, not something to spend call stack on.
	stack := []frame{{tree: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := src.Entries(f.tree)
		if err != nil {
			return fmt.Errorf("commit %s: read tree %s: %w", commit, f.tree, err)
		}
		for _, e := range entries {
			if e.IsTree || e.Name != ManifestFileName {
				continue
			}
			text, err := src.FileContent(e.Hash)
			if err != nil {
				return fmt.Errorf("commit %s: read %s/%s: %w", commit, f.prefix, e.Name, err)
			}
			if err := visit(Manifest{Branch: f.prefix, Text: text, Commit: commit}); err != nil {
				return err
			}
		}
		// Push subtrees in reverse so the first-listed directory pops first.
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if e.IsTree {
				stack = append(stack, frame{tree: e.Hash, prefix: joinPrefix(f.prefix, e.Name)})
			}
		}
	}
	return nil
}

func joinPrefix(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
