package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRepo creates a temp repository with one commit on master using go-git.
func setupTestRepo(t *testing.T) (string, *gogit.Repository) {
	t.Helper()
	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("master"))))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Test\n"), 0o600))
	commitAll(t, repo, "initial commit")
	return dir, repo
}

func commitAll(t *testing.T, repo *gogit.Repository, msg string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.AddWithOptions(&gogit.AddOptions{All: true}))
	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@test.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash
}

func TestOpen(t *testing.T) {
	t.Run("opens from subdirectory", func(t *testing.T) {
		dir, _ := setupTestRepo(t)
		sub := filepath.Join(dir, "tests", "functional")
		require.NoError(t, os.MkdirAll(sub, 0o750))

		repo, err := Open(sub, false)
		require.NoError(t, err)
		want, err := filepath.EvalSymlinks(dir)
		require.NoError(t, err)
		assert.Equal(t, want, repo.Root())
	})

	t.Run("fails on non-repo", func(t *testing.T) {
		_, err := Open(t.TempDir(), false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open git repository")
	})
}

func TestRepo_Info(t *testing.T) {
	dir, gitRepo := setupTestRepo(t)
	repo, err := Open(dir, false)
	require.NoError(t, err)

	head, err := gitRepo.Head()
	require.NoError(t, err)

	info, err := repo.Info()
	require.NoError(t, err)
	assert.Equal(t, "master", info.Branch)
	assert.Equal(t, head.Hash().String()[:7], info.Commit)
	assert.False(t, info.Dirty)

	// untracked file keeps the tree clean
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o600))
	info, err = repo.Info()
	require.NoError(t, err)
	assert.False(t, info.Dirty)

	// modified tracked file makes it dirty
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Changed\n"), 0o600))
	info, err = repo.Info()
	require.NoError(t, err)
	assert.True(t, info.Dirty)
}

func TestRepo_Info_EmptyRepo(t *testing.T) {
	dir := t.TempDir()
	gitRepo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, gitRepo.Storer.SetReference(
		plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))))

	repo, err := Open(dir, false)
	require.NoError(t, err)
	info, err := repo.Info()
	require.NoError(t, err)
	assert.Equal(t, "main", info.Branch)
	assert.Empty(t, info.Commit)
}

func TestRepo_Info_DetachedHead(t *testing.T) {
	dir, gitRepo := setupTestRepo(t)
	first, err := gitRepo.Head()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "second.txt"), []byte("2"), 0o600))
	commitAll(t, gitRepo, "second")

	wt, err := gitRepo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&gogit.CheckoutOptions{Hash: first.Hash()}))

	repo, err := Open(dir, false)
	require.NoError(t, err)
	info, err := repo.Info()
	require.NoError(t, err)
	assert.Empty(t, info.Branch)
	assert.Equal(t, first.Hash().String()[:7], info.Commit)
}

func TestDescribe(t *testing.T) {
	dir, _ := setupTestRepo(t)
	info := Describe(dir, false)
	assert.Equal(t, "master", info.Branch)
	assert.Len(t, info.Commit, 7)

	assert.Equal(t, Info{}, Describe(t.TempDir(), false))
}

func TestAbbrev(t *testing.T) {
	assert.Equal(t, "abcdef1", abbrev("abcdef1234567890"))
	assert.Equal(t, "abc", abbrev("abc"))
}
