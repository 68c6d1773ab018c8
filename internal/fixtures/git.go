package fixtures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Git reads fixtures from the head commit of a branch in a local repository, so
// template revisions are pinned by history rather than by whatever is checked out.
type Git struct {
	repoPath string
	branch   string
	prefix   string
}

// NewGit serves <prefix>/<templateID>.json, falling back to <prefix>/default.json, at
// the head of branch. An empty branch means the repository HEAD.
func NewGit(repoPath, branch, prefix string) (*Git, error) {
	if repoPath == "" {
		return nil, errors.New("git fixtures need a repository path")
	}
	return &Git{repoPath: repoPath, branch: branch, prefix: prefix}, nil
}

func (g *Git) Load(_ context.Context, templateID string) (Template, error) {
	commit, err := g.headCommit()
	if err != nil {
		return Template{}, err
	}
	for _, name := range []string{templateID + ".json", defaultFixture} {
		raw, err := readCommitFile(commit, path.Join(g.prefix, name))
		if errors.Is(err, object.ErrFileNotFound) {
			continue
		}
		if err != nil {
			return Template{}, err
		}
		return Decode(raw)
	}
	return Template{}, fmt.Errorf("%w: %s at %s", ErrFixtureNotFound, templateID, commit.Hash)
}

// Revision reports the commit fixtures are currently read from.
func (g *Git) Revision() (string, error) {
	commit, err := g.headCommit()
	if err != nil {
		return "", err
	}
	return commit.Hash.String(), nil
}

func (g *Git) headCommit() (*object.Commit, error) {
	repo, err := git.PlainOpen(g.repoPath)
	if err != nil {
		return nil, fmt.Errorf("open fixture repo: %w", err)
	}

	var ref *plumbing.Reference
	if g.branch == "" {
		ref, err = repo.Head()
	} else {
		ref, err = repo.Reference(plumbing.NewBranchReferenceName(g.branch), true)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve fixture branch %q: %w", g.branch, err)
	}

	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load fixture commit: %w", err)
	}
	return commit, nil
}

func readCommitFile(commit *object.Commit, name string) ([]byte, error) {
	file, err := commit.File(name)
	if err != nil {
		return nil, err
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open fixture %s: %w", name, err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", name, err)
	}
	return raw, nil
}
