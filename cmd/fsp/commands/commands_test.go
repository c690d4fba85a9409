package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pablu23/fsp/internal/fsptest"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	args = append(args, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--log-level", "error")
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "pub"), 0o755))
	server := fsptest.Start(t, func(o *fsptest.Options) {
		o.Datapath = dir
	})
	host := fmt.Sprintf("127.0.0.1:%d", server.Port())

	out, err := run(t, "ls", host+"/")
	require.NoError(t, err)
	assert.Equal(t, "hello.txt\npub\n", out)

	out, err = run(t, "get", "fsp://"+host+"/hello.txt", "-")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	local := filepath.Join(t.TempDir(), "upload.txt")
	require.NoError(t, os.WriteFile(local, []byte("uploaded"), 0o644))
	mtime := time.Unix(1_650_000_000, 0)
	require.NoError(t, os.Chtimes(local, mtime, mtime))

	_, err = run(t, "put", local, host+"/pub/")
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dir, "pub", "upload.txt"))
	require.NoError(t, err)
	assert.Equal(t, "uploaded", string(got))
	info, err := os.Stat(filepath.Join(dir, "pub", "upload.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))

	_, err = run(t, "mv", host+"/pub/upload.txt", "/pub/renamed.txt")
	require.NoError(t, err)
	_, err = run(t, "rm", host+"/pub/renamed.txt")
	require.NoError(t, err)

	_, err = run(t, "stat", host+"/pub/renamed.txt")
	assert.Error(t, err)

	out, err = run(t, "pro", host+"/pub")
	require.NoError(t, err)
	assert.Equal(t, "owner --g-l-\n", out)

	out, err = run(t, "version", host)
	require.NoError(t, err)
	assert.Equal(t, "fsptest 1.0\n", out)
}
