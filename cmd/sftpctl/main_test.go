package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/sftp-transport/errs"
	"github.com/oarkflow/sftp-transport/sftptest"
)

func startServer(t *testing.T) *sftptest.Server {
	t.Helper()
	srv := sftptest.New(sftptest.WithUser("bob", "secret"))
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Close() })
	return srv
}

func run(t *testing.T, srv *sftptest.Server, args ...string) (string, error) {
	t.Helper()
	if srv != nil {
		host, port := srv.Addr()
		args = append([]string{
			"--host", host,
			"--port", strconv.Itoa(port),
			"--user", "bob",
			"--password", "secret",
			"--insecure",
			"--log-backend", "nop",
		}, args...)
	}

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func seed(t *testing.T, srv *sftptest.Server, p, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, afero.WriteFile(srv.Fs(), p, []byte(content), 0o644))
	require.NoError(t, srv.Fs().Chtimes(p, mtime, mtime))
}

func TestLs(t *testing.T) {
	srv := startServer(t)
	epoch := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seed(t, srv, "/in/b.csv", "b", epoch.Add(time.Minute))
	seed(t, srv, "/in/a.csv", "a", epoch)
	seed(t, srv, "/in/c.txt", "c", epoch.Add(2*time.Minute))

	out, err := run(t, srv, "ls", "/in")
	require.NoError(t, err)
	assert.JSONEq(t, `{"directory":"/in","paths":["/in/a.csv","/in/b.csv","/in/c.txt"]}`, out)

	out, err = run(t, srv, "ls", "/in", "--match", `.*\.csv`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"directory":"/in","paths":["/in/a.csv","/in/b.csv"]}`, out)

	out, err = run(t, srv, "ls", "/in", "--ext", ".txt")
	require.NoError(t, err)
	assert.JSONEq(t, `{"directory":"/in","files":["c.txt"]}`, out)

	_, err = run(t, srv, "ls", "/in", "--ext", ".txt", "--match", ".*")
	assert.Error(t, err)

	_, err = run(t, srv, "ls", "/nope")
	assert.True(t, errs.IsNotFound(err))
}

func TestExists(t *testing.T) {
	srv := startServer(t)
	seed(t, srv, "/in/a.csv", "a", time.Now())

	out, err := run(t, srv, "exists", "/in/a.csv")
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"/in/a.csv","exists":true}`, out)

	out, err = run(t, srv, "exists", "/in/b.csv")
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"/in/b.csv","exists":false}`, out)
}

func TestPutGetCat(t *testing.T) {
	srv := startServer(t)
	dir := t.TempDir()
	local := filepath.Join(dir, "report.csv")
	require.NoError(t, os.WriteFile(local, []byte("id,name\n1,a\n"), 0o600))

	out, err := run(t, srv, "put", local, "/out", "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "/out/report.csv")

	stored, err := afero.ReadFile(srv.Fs(), "/out/report.csv")
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,a\n", string(stored))

	downloaded := filepath.Join(dir, "copy.csv")
	out, err = run(t, srv, "get", "/out/report.csv", "-o", downloaded, "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "12 B")
	content, err := os.ReadFile(downloaded)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,a\n", string(content))

	missing := filepath.Join(dir, "missing.csv")
	_, err = run(t, srv, "get", "/out/missing.csv", "-o", missing, "--quiet")
	assert.True(t, errs.IsNotFound(err))
	assert.NoFileExists(t, missing)

	out, err = run(t, srv, "cat", "/out/report.csv")
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,a\n", out)
}

func TestMkdirMvRm(t *testing.T) {
	srv := startServer(t)
	seed(t, srv, "/in/a.csv", "a", time.Now())

	_, err := run(t, srv, "mkdir", "/done")
	require.NoError(t, err)
	_, err = run(t, srv, "mkdir", "/done")
	require.NoError(t, err)

	_, err = run(t, srv, "mv", "/in/a.csv", "/done/a.csv")
	require.NoError(t, err)
	exists, err := afero.Exists(srv.Fs(), "/done/a.csv")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = run(t, srv, "rm", "/done/a.csv")
	require.NoError(t, err)

	_, err = run(t, srv, "rm", "/done/a.csv")
	assert.True(t, errs.IsNotFound(err))
}

func TestConnectionFailure(t *testing.T) {
	srv := startServer(t)

	_, err := run(t, srv, "--password", "wrong", "exists", "/")
	assert.True(t, errs.IsConnection(err))

	_, err = run(t, nil, "--log-backend", "nop", "exists", "/")
	assert.ErrorContains(t, err, "no host configured")
}

func TestServe(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "host_key")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--user", "bob", "--password", "secret", "--log-backend", "nop",
		"serve", "--mem", "--listen", "127.0.0.1:0", "--host-key", keyFile,
	})

	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "serving MemMapFS on 127.0.0.1:")
	assert.FileExists(t, keyFile)

	_, err := run(t, nil, "--log-backend", "nop", "serve", "--mem")
	assert.ErrorContains(t, err, "--user and --password")
}

func TestVersion(t *testing.T) {
	BuildVersion = "1.2.3"
	t.Cleanup(func() { BuildVersion = "" })

	out, err := run(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sftpctl version 1.2.3")
}
