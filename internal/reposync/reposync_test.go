package reposync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// newFixtureRemote creates a plain (non-bare) repo on disk with one commit
// on "main" and a second branch "feature", and returns its path. Cloning
// over a file:// path exercises the same go-git codepaths a real remote
// would, without needing network access.
func newFixtureRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	writeFile := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}

	writeFile("README.md", "hello\n")
	sig := &object.Signature{Name: "tester", Email: "tester@example.com"}
	_, err = wt.Commit("initial commit", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	head, err := repo.Head()
	require.NoError(t, err)

	featureRef := plumbing.NewBranchReferenceName("feature")
	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(featureRef, head.Hash())))

	return dir
}

func TestPreparer_Prepare_ClonesOnFirstCall(t *testing.T) {
	remote := newFixtureRemote(t)
	localPath := filepath.Join(t.TempDir(), "clone")

	p := NewPreparer(nil)
	result, err := p.Prepare(context.Background(), remote, localPath, "")
	require.NoError(t, err)

	require.True(t, result.Cloned)
	require.Equal(t, "master", result.Branch)
	require.NotEmpty(t, result.CommitSHA)
	require.FileExists(t, filepath.Join(localPath, "README.md"))
}

func TestPreparer_Prepare_ChecksOutExistingRemoteBranch(t *testing.T) {
	remote := newFixtureRemote(t)
	localPath := filepath.Join(t.TempDir(), "clone")

	p := NewPreparer(nil)
	_, err := p.Prepare(context.Background(), remote, localPath, "")
	require.NoError(t, err)

	result, err := p.Prepare(context.Background(), remote, localPath, "feature")
	require.NoError(t, err)
	require.False(t, result.Cloned)
	require.Equal(t, "feature", result.Branch)
}

func TestPreparer_Prepare_ReopensAndFetchesOnSecondCall(t *testing.T) {
	remote := newFixtureRemote(t)
	localPath := filepath.Join(t.TempDir(), "clone")

	p := NewPreparer(nil)
	first, err := p.Prepare(context.Background(), remote, localPath, "")
	require.NoError(t, err)
	require.True(t, first.Cloned)

	second, err := p.Prepare(context.Background(), remote, localPath, "")
	require.NoError(t, err)
	require.False(t, second.Cloned)
	require.Equal(t, first.CommitSHA, second.CommitSHA)
}

func TestPreparer_Prepare_UnknownBranchReturnsNotFound(t *testing.T) {
	remote := newFixtureRemote(t)
	localPath := filepath.Join(t.TempDir(), "clone")

	p := NewPreparer(nil)
	_, err := p.Prepare(context.Background(), remote, localPath, "does-not-exist")
	require.Error(t, err)
}

func TestListBranches_ReturnsAllKnownBranches(t *testing.T) {
	remote := newFixtureRemote(t)
	localPath := filepath.Join(t.TempDir(), "clone")

	p := NewPreparer(nil)
	_, err := p.Prepare(context.Background(), remote, localPath, "")
	require.NoError(t, err)

	repo, err := git.PlainOpen(localPath)
	require.NoError(t, err)

	names, err := ListBranches(repo)
	require.NoError(t, err)
	require.Contains(t, names, "master")
}

func TestDefaultSSHAuth_NonSSHRemoteReturnsNoAuth(t *testing.T) {
	auth := DefaultSSHAuth("")
	method, err := auth("https://example.com/repo.git")
	require.NoError(t, err)
	require.Nil(t, method)
}

func TestDefaultSSHAuth_LocalPathRemoteReturnsNoAuth(t *testing.T) {
	remote := newFixtureRemote(t)
	auth := DefaultSSHAuth("")
	method, err := auth(remote)
	require.NoError(t, err)
	require.Nil(t, method)
}

func TestDefaultSSHAuth_MissingKeyFileErrors(t *testing.T) {
	auth := DefaultSSHAuth(filepath.Join(t.TempDir(), "no-such-key"))
	_, err := auth("git@example.com:org/repo.git")
	require.Error(t, err)
}
