package gitwalk

import (
	"context"
	"errors"
	"fmt"
	"io"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitSource adapts a local go-git repository to the Source interface.
type GitSource struct {
	repo *git.Repository
}

// Open opens an existing clone.
func Open(path string) (*GitSource, error) {
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	return &GitSource{repo: r}, nil
}

// Clone clones url into dir and returns a source over the clone.
func Clone(ctx context.Context, url, dir string) (*GitSource, error) {
	r, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url})
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", url, err)
	}
	return &GitSource{repo: r}, nil
}

// Commits lists commit hashes reachable from HEAD, newest first.
func (s *GitSource) Commits() ([]string, error) {
	head, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	iter, err := s.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var hashes []string
	err = iter.ForEach(func(c *object.Commit) error {
		hashes = append(hashes, c.Hash.String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// Subtree resolves the tree at path within a commit; ok is false when the
// path is absent from that commit's tree.
func (s *GitSource) Subtree(commitHash, path string) (string, bool, error) {
	c, err := s.repo.CommitObject(plumbing.NewHash(commitHash))
	if err != nil {
		return "", false, fmt.Errorf("commit %s: %w", commitHash, err)
	}
	tree, err := c.Tree()
	if err != nil {
		return "", false, err
	}
	if path == "" {
		return tree.Hash.String(), true, nil
	}
	sub, err := tree.Tree(path)
	if errors.Is(err, object.ErrDirectoryNotFound) || errors.Is(err, object.ErrEntryNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return sub.Hash.String(), true, nil
}

// Entries lists the children of a tree object.
func (s *GitSource) Entries(treeHash string) ([]TreeEntry, error) {
	tree, err := s.repo.TreeObject(plumbing.NewHash(treeHash))
	if err != nil {
		return nil, fmt.Errorf("tree %s: %w", treeHash, err)
	}
	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entries = append(entries, TreeEntry{
			Name:   e.Name,
			Hash:   e.Hash.String(),
			IsTree: e.Mode == filemode.Dir,
		})
	}
	return entries, nil
}

// FileContent reads a blob object as text.
func (s *GitSource) FileContent(blobHash string) (string, error) {
	blob, err := s.repo.BlobObject(plumbing.NewHash(blobHash))
	if err != nil {
		return "", fmt.Errorf("blob %s: %w", blobHash, err)
	}
	r, err := blob.Reader()
	if err != nil {
		return "", err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
