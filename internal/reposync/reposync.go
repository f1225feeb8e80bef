// Package reposync prepares a repository working tree on local disk: clone
// if absent, open and fetch if already cloned, then checkout the
// requested branch. It is the Repository Preparer stage that runs ahead
// of the indexer and the file watcher.
package reposync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codectx/codectx/internal/apperrors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// AuthMethod builds a go-git transport.AuthMethod for a remote URL.
// Returning (nil, nil) means "no auth" (anonymous HTTP / local file
// remotes); SSH remotes without an explicit key fall back to the default
// agent/identity-file resolution go-git's ssh package performs itself.
type AuthMethod func(remoteURL string) (transport.AuthMethod, error)

// DefaultSSHAuth resolves an SSH key from keyPath (empty uses
// ~/.ssh/id_rsa via go-git's default resolution) for git@ and ssh://
// remotes, and returns no auth for everything else.
func DefaultSSHAuth(keyPath string) AuthMethod {
	return func(remoteURL string) (transport.AuthMethod, error) {
		ep, err := transport.NewEndpoint(remoteURL)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindGit, "reposync.DefaultSSHAuth", err)
		}
		if ep.Protocol != "ssh" {
			return nil, nil
		}
		if keyPath == "" {
			home, _ := os.UserHomeDir()
			keyPath = filepath.Join(home, ".ssh", "id_rsa")
		}
		auth, err := ssh.NewPublicKeysFromFile("git", keyPath, "")
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindGit, "reposync.DefaultSSHAuth", err).
				WithDetail("key_path", keyPath)
		}
		return auth, nil
	}
}

// Preparer clones or opens a repository at localPath and brings it to the
// requested branch.
type Preparer struct {
	auth AuthMethod
}

// NewPreparer builds a Preparer. auth may be nil, in which case every
// remote is treated as unauthenticated.
func NewPreparer(auth AuthMethod) *Preparer {
	if auth == nil {
		auth = func(string) (transport.AuthMethod, error) { return nil, nil }
	}
	return &Preparer{auth: auth}
}

// Result reports the repository state after preparation.
type Result struct {
	LocalPath string
	Branch    string
	CommitSHA string
	Cloned    bool // true if this call performed the initial clone
}

// Prepare ensures remoteURL is checked out at branch under localPath:
// cloning if localPath doesn't exist, or opening and fetching if it does.
// An empty branch uses the remote's default branch (HEAD).
func (p *Preparer) Prepare(ctx context.Context, remoteURL, localPath, branch string) (*Result, error) {
	auth, err := p.auth(remoteURL)
	if err != nil {
		return nil, err
	}

	repo, cloned, err := p.openOrClone(ctx, remoteURL, localPath, auth)
	if err != nil {
		return nil, err
	}

	if !cloned {
		if err := p.fetch(ctx, repo, auth); err != nil {
			return nil, err
		}
	}

	resolvedBranch, err := p.checkout(repo, branch)
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindGit, "reposync.Preparer.Prepare", err)
	}

	return &Result{
		LocalPath: localPath,
		Branch:    resolvedBranch,
		CommitSHA: head.Hash().String(),
		Cloned:    cloned,
	}, nil
}

func (p *Preparer) openOrClone(ctx context.Context, remoteURL, localPath string, auth transport.AuthMethod) (*git.Repository, bool, error) {
	if repo, err := git.PlainOpen(localPath); err == nil {
		return repo, false, nil
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return nil, false, apperrors.Wrap(apperrors.KindFilesystem, "reposync.Preparer.openOrClone", err)
	}

	repo, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
		URL:  remoteURL,
		Auth: auth,
	})
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.KindGit, "reposync.Preparer.openOrClone", err).
			WithDetail("remote", remoteURL).
			WithDetail("path", localPath)
	}
	return repo, true, nil
}

func (p *Preparer) fetch(ctx context.Context, repo *git.Repository, auth transport.AuthMethod) error {
	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		Auth:       auth,
		Tags:       git.NoTags,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return apperrors.Wrap(apperrors.KindGit, "reposync.Preparer.fetch", err).
			WithSeverity(apperrors.SeverityWarning)
	}
	return nil
}

func (p *Preparer) checkout(repo *git.Repository, branch string) (string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindGit, "reposync.Preparer.checkout", err)
	}

	if branch == "" {
		head, err := repo.Head()
		if err != nil {
			return "", apperrors.Wrap(apperrors.KindGit, "reposync.Preparer.checkout", err)
		}
		return head.Name().Short(), nil
	}

	localRef := plumbing.NewBranchReferenceName(branch)
	err = wt.Checkout(&git.CheckoutOptions{Branch: localRef, Force: true})
	if err == nil {
		return branch, nil
	}

	// Local branch doesn't exist yet: create it at the remote-tracking
	// commit and register the tracking config, then check it out.
	remoteRef := plumbing.NewRemoteReferenceName("origin", branch)
	ref, refErr := repo.Reference(remoteRef, true)
	if refErr != nil {
		return "", apperrors.Wrap(apperrors.KindNotFound, "reposync.Preparer.checkout", refErr).
			WithDetail("branch", branch)
	}

	if err := repo.Storer.SetReference(plumbing.NewHashReference(localRef, ref.Hash())); err != nil {
		return "", apperrors.Wrap(apperrors.KindGit, "reposync.Preparer.checkout", err)
	}
	if err := repo.CreateBranch(&config.Branch{Name: branch, Remote: "origin", Merge: localRef}); err != nil {
		return "", apperrors.Wrap(apperrors.KindGit, "reposync.Preparer.checkout", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: localRef, Force: true}); err != nil {
		return "", apperrors.Wrap(apperrors.KindGit, "reposync.Preparer.checkout", err)
	}

	return branch, nil
}

// ListBranches returns the names of the local clone's branches
// (refs/heads); remote-tracking branches are not listed.
func ListBranches(repo *git.Repository) ([]string, error) {
	iter, err := repo.Branches()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindGit, "reposync.ListBranches", err)
	}
	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindGit, "reposync.ListBranches", err)
	}
	return names, nil
}
