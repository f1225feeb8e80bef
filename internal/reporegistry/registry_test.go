package reporegistry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.json")
	r, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, r.List())
}

func TestPut_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.json")
	r, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, r.Put(Record{ID: "repo-a", TenantID: "acme", RemoteURL: "git@example.com:a.git", DefaultBranch: "main"}))

	reopened, err := Open(path)
	require.NoError(t, err)
	rec, ok := reopened.Get("repo-a")
	require.True(t, ok)
	assert.Equal(t, "acme", rec.TenantID)
	assert.Equal(t, "main", rec.DefaultBranch)
}

func TestPut_OverwritesExistingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.json")
	r, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, r.Put(Record{ID: "repo-a", DefaultBranch: "main"}))
	require.NoError(t, r.Put(Record{ID: "repo-a", DefaultBranch: "develop"}))

	rec, ok := r.Get("repo-a")
	require.True(t, ok)
	assert.Equal(t, "develop", rec.DefaultBranch)
	assert.Len(t, r.List(), 1)
}

func TestRemove_DeletesRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.json")
	r, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, r.Put(Record{ID: "repo-a"}))
	require.NoError(t, r.Remove("repo-a"))

	_, ok := r.Get("repo-a")
	assert.False(t, ok)
}

func TestRemove_UnknownIDIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.json")
	r, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, r.Remove("does-not-exist"))
}
