package tool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sghr/warden/internal/model"
)

func TestFileReadWrite(t *testing.T) {
	root := t.TempDir()
	ft := NewFileTool(root)

	res := ft.Run(map[string]any{"op": "write", "path": "sub/notes.txt", "content": "hello"})
	require.True(t, res.OK, res.Stderr)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, filepath.Join(root, "sub", "notes.txt"), res.Artifacts[0])

	res = ft.Run(map[string]any{"op": "read", "path": "sub/notes.txt"})
	require.True(t, res.OK, res.Stderr)
	assert.Equal(t, "hello", res.Stdout)
}

func TestFileReadMissing(t *testing.T) {
	ft := NewFileTool(t.TempDir())
	res := ft.Run(map[string]any{"op": "read", "path": "nope.txt"})
	assert.False(t, res.OK)
	assert.Equal(t, model.ErrTypeRead, res.ErrorType)
}

func TestFilePathEscapeDenied(t *testing.T) {
	ft := NewFileTool(t.TempDir())

	for _, path := range []string{"../escape.txt", "a/../../escape.txt", `..\escape.txt`} {
		t.Run(path, func(t *testing.T) {
			res := ft.Run(map[string]any{"op": "write", "path": path, "content": "x"})
			assert.False(t, res.OK)
			assert.Equal(t, model.ErrTypeWrite, res.ErrorType)
		})
	}

	res := ft.Run(map[string]any{"op": "read", "path": "../escape.txt"})
	assert.False(t, res.OK)
	assert.Equal(t, model.ErrTypeRead, res.ErrorType)
}

func TestFileAbsolutePathDenied(t *testing.T) {
	root := t.TempDir()
	ft := NewFileTool(root)

	// An absolute path must not be re-rooted into root/etc/passwd and written.
	res := ft.Run(map[string]any{"op": "write", "path": "/etc/passwd", "content": "x"})
	assert.False(t, res.OK)
	assert.Equal(t, model.ErrTypeWrite, res.ErrorType)
	_, err := os.Stat(filepath.Join(root, "etc", "passwd"))
	assert.True(t, os.IsNotExist(err))

	// An absolute path already under the root is still reachable.
	require.NoError(t, os.WriteFile(filepath.Join(root, "ok.txt"), []byte("in scope"), 0644))
	res = ft.Run(map[string]any{"op": "read", "path": filepath.Join(root, "ok.txt")})
	require.True(t, res.OK, res.Stderr)
	assert.Equal(t, "in scope", res.Stdout)
}

func TestFileSearch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha\nneedle here\nomega"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("another needle"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.log"), []byte("needle in log"), 0644))

	ft := NewFileTool(root)

	res := ft.Run(map[string]any{"op": "search", "pattern": "needle", "glob": "*.txt"})
	require.True(t, res.OK, res.Stderr)
	matches := res.Payload["matches"].([]map[string]any)
	assert.Len(t, matches, 2)
	assert.Equal(t, "2 matches", res.Stdout)

	// Default glob matches everything.
	res = ft.Run(map[string]any{"op": "search", "pattern": "needle"})
	require.True(t, res.OK)
	assert.Len(t, res.Payload["matches"].([]map[string]any), 3)
}

func TestFileSearchValidation(t *testing.T) {
	ft := NewFileTool(t.TempDir())

	res := ft.Run(map[string]any{"op": "search"})
	assert.False(t, res.OK)
	assert.Equal(t, model.ErrTypeInvalidArgs, res.ErrorType)

	res = ft.Run(map[string]any{"op": "search", "pattern": "("})
	assert.False(t, res.OK)
	assert.Equal(t, model.ErrTypeInvalidArgs, res.ErrorType)
}

func TestFileSearchMatchCap(t *testing.T) {
	root := t.TempDir()
	line := "needle\n"
	content := ""
	for i := 0; i < searchMatchLimit+50; i++ {
		content += line
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), []byte(content), 0644))

	ft := NewFileTool(root)
	res := ft.Run(map[string]any{"op": "search", "pattern": "needle"})
	require.True(t, res.OK)
	assert.Len(t, res.Payload["matches"].([]map[string]any), searchMatchLimit)
}

func TestFileUnknownOp(t *testing.T) {
	ft := NewFileTool(t.TempDir())
	res := ft.Run(map[string]any{"op": "delete", "path": "x"})
	assert.False(t, res.OK)
	assert.Equal(t, model.ErrTypeInvalidArgs, res.ErrorType)
}
