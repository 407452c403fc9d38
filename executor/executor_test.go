package executor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loom/cas"
)

func TestNullExecutor(t *testing.T) {
	_, err := NullExecutor{}.Execute(context.Background(), Request{
		Spec: ActionSpec{Arguments: []string{"true"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestExecutionError(t *testing.T) {
	err := &ExecutionError{ExitCode: 3}
	assert.Equal(t, "EXECUTION_FAILED: exit code 3", err.Error())
	assert.True(t, IsExecutionError(err))
	assert.False(t, IsExecutionError(ErrUnsupported))
}

func TestTree_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := cas.NewInMemoryDatabase()

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "leaf.txt"), []byte("leaf"), 0o644))

	id, err := putTree(ctx, db, src)
	require.NoError(t, err)

	obj, err := db.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Len(t, obj.Refs, 2, "one ref per child, listing order")

	dst := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, materializeTree(ctx, db, id, dst))

	top, err := os.ReadFile(filepath.Join(dst, "top.txt"))
	require.NoError(t, err)
	assert.Equal(t, "top", string(top))
	leaf, err := os.ReadFile(filepath.Join(dst, "sub", "leaf.txt"))
	require.NoError(t, err)
	assert.Equal(t, "leaf", string(leaf))
}

func TestTree_EqualTreesDigestEqually(t *testing.T) {
	ctx := context.Background()
	db := cas.NewInMemoryDatabase()

	mkTree := func() string {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("same"), 0o644))
		return dir
	}
	id1, err := putTree(ctx, db, mkTree())
	require.NoError(t, err)
	id2, err := putTree(ctx, db, mkTree())
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestMaterialize_MissingObject(t *testing.T) {
	ctx := context.Background()
	db := cas.NewInMemoryDatabase()

	ghost := cas.Identify(nil, []byte("never stored"))
	err := materializeFile(ctx, db, ghost, filepath.Join(t.TempDir(), "f"))
	require.Error(t, err)
	assert.True(t, cas.IsMissing(err))
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("local executor tests need /bin/sh")
	}
}

func TestLocalExecutor_RunsAction(t *testing.T) {
	requireShell(t)
	ctx := context.Background()
	db := cas.NewInMemoryDatabase()
	local := NewLocalExecutor(db, t.TempDir())

	inputID, err := db.Put(ctx, nil, []byte("hello\n"))
	require.NoError(t, err)

	resp, err := local.Execute(ctx, Request{
		Spec: ActionSpec{
			Arguments: []string{"/bin/sh", "-c", `read x < in.txt; echo "got $x" > out.txt; echo done`},
		},
		Inputs:  []Input{{Path: "in.txt", ID: inputID, Type: ArtifactFile}},
		Outputs: []Output{{Path: "out.txt", Type: ArtifactFile}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ExitCode)
	require.Len(t, resp.Outputs, 1)

	out, err := db.Get(ctx, resp.Outputs[0])
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "got hello\n", string(out.Data))

	stdout, err := db.Get(ctx, resp.StdoutID)
	require.NoError(t, err)
	require.NotNil(t, stdout)
	assert.Equal(t, "done\n", string(stdout.Data))
}

func TestLocalExecutor_EnvironmentIsExactlyTheSpec(t *testing.T) {
	requireShell(t)
	ctx := context.Background()
	db := cas.NewInMemoryDatabase()
	local := NewLocalExecutor(db, t.TempDir())

	resp, err := local.Execute(ctx, Request{
		Spec: ActionSpec{
			Arguments:   []string{"/bin/sh", "-c", `echo "$GREETING" > out.txt`},
			Environment: []EnvVar{{Name: "GREETING", Value: "bonjour"}},
		},
		Outputs: []Output{{Path: "out.txt", Type: ArtifactFile}},
	})
	require.NoError(t, err)

	out, err := db.Get(ctx, resp.Outputs[0])
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "bonjour\n", string(out.Data))
}

func TestLocalExecutor_NonZeroExit(t *testing.T) {
	requireShell(t)
	ctx := context.Background()
	db := cas.NewInMemoryDatabase()
	local := NewLocalExecutor(db, t.TempDir())

	resp, err := local.Execute(ctx, Request{
		Spec: ActionSpec{Arguments: []string{"/bin/sh", "-c", "echo failing; exit 3"}},
	})
	require.Error(t, err)
	assert.True(t, IsExecutionError(err))
	assert.Equal(t, 3, resp.ExitCode)

	stdout, err := db.Get(ctx, resp.StdoutID)
	require.NoError(t, err)
	require.NotNil(t, stdout)
	assert.Equal(t, "failing\n", string(stdout.Data), "stdout survives a failed action")
}

func TestLocalExecutor_DirectoryOutput(t *testing.T) {
	requireShell(t)
	ctx := context.Background()
	db := cas.NewInMemoryDatabase()
	local := NewLocalExecutor(db, t.TempDir())

	resp, err := local.Execute(ctx, Request{
		Spec: ActionSpec{
			Arguments:   []string{"/bin/sh", "-c", "mkdir -p d; echo one > d/a.txt; echo two > d/b.txt"},
			Environment: []EnvVar{{Name: "PATH", Value: "/bin:/usr/bin"}},
		},
		Outputs: []Output{{Path: "d", Type: ArtifactDirectory}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Outputs, 1)

	restored := filepath.Join(t.TempDir(), "d")
	require.NoError(t, materializeTree(ctx, db, resp.Outputs[0], restored))
	a, err := os.ReadFile(filepath.Join(restored, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(a))
}

func TestLocalExecutor_PreActions(t *testing.T) {
	requireShell(t)
	ctx := context.Background()
	db := cas.NewInMemoryDatabase()
	local := NewLocalExecutor(db, t.TempDir())

	resp, err := local.Execute(ctx, Request{
		Spec: ActionSpec{
			Arguments: []string{"/bin/sh", "-c", `read x < shared.txt; echo "main saw $x" > out.txt`},
			PreActions: []PreAction{
				{Arguments: []string{"/bin/sh", "-c", "echo prepared > shared.txt"}},
			},
		},
		Outputs: []Output{{Path: "out.txt", Type: ArtifactFile}},
	})
	require.NoError(t, err)

	out, err := db.Get(ctx, resp.Outputs[0])
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "main saw prepared\n", string(out.Data))
}

func TestLocalExecutor_EmptyArguments(t *testing.T) {
	ctx := context.Background()
	local := NewLocalExecutor(cas.NewInMemoryDatabase(), t.TempDir())

	_, err := local.Execute(ctx, Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
}
