package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/se302/webtest/pkg/git"
)

func writeSuite(t *testing.T, projectDir string) {
	t.Helper()
	dir := filepath.Join(projectDir, "tests", "functional")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	body := "test.describe('Login', () => {\n  test('TC-001: valid login', async () => {});\n});\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "login.test.js"), []byte(body), 0o600))
}

func TestRun_List(t *testing.T) {
	projectDir := t.TempDir()
	writeSuite(t, projectDir)
	t.Setenv("HOME", t.TempDir())

	for _, format := range []string{"table", "yaml", "json"} {
		t.Run(format, func(t *testing.T) {
			o := opts{List: true, Format: format, NoColor: true, ProjectDir: projectDir,
				Config: filepath.Join(t.TempDir(), "missing")}
			require.NoError(t, run(context.Background(), o))
		})
	}
}

func TestRun_BadConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "local")
	require.NoError(t, os.WriteFile(path, []byte("port = abc\n"), 0o600))

	err := run(context.Background(), opts{Config: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_InitConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, run(context.Background(), opts{InitConfig: true}))
	assert.FileExists(t, filepath.Join(home, ".config", "webtest", "config"))
}

func TestRun_ServesUntilCanceled(t *testing.T) {
	projectDir := t.TempDir()
	writeSuite(t, projectDir)
	t.Setenv("HOME", t.TempDir())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	local := filepath.Join(t.TempDir(), "local")
	require.NoError(t, os.WriteFile(local, []byte("watch = false\nobservers = true\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := opts{Port: port, NoColor: true, ProjectDir: projectDir, Config: local}
	require.NoError(t, run(ctx, o))
}

func TestRepoInfoFunc(t *testing.T) {
	for _, external := range []bool{false, true} {
		info := repoInfoFunc(t.TempDir(), external)
		assert.Equal(t, git.Info{}, info(), "not a repository, external=%v", external)
		assert.Equal(t, git.Info{}, info(), "cached, external=%v", external)
	}
}
