package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestLoadDir(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"counter.cue": `package deploy

modules: Counter: futures: {
	Counter: {kind: "contract", args: [{param: "start", default: 0}]}
	inc: {kind: "call", contract: "Counter", function: "inc", args: [1]}
}
`,
		"notes.txt": "not cue",
	})

	res, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FileCount)
	require.Len(t, res.Modules, 1)
	assert.Len(t, res.Modules[0].Futures, 2)
}

func TestLoadDir_Errors(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
		code string
	}{
		{name: "missing", dir: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") }, code: ErrCodeNotFound},
		{name: "empty", dir: func(t *testing.T) string { return t.TempDir() }, code: ErrCodeNoFiles},
		{
			name: "syntax error",
			dir: func(t *testing.T) string {
				return writeFiles(t, map[string]string{"a.cue": "package deploy\nmodules: {\n"})
			},
			code: ErrCodeLoadFailed,
		},
		{
			name: "bad module",
			dir: func(t *testing.T) string {
				return writeFiles(t, map[string]string{"a.cue": "package deploy\nmodules: M: futures: A: kind: \"proxy\"\n"})
			},
			code: ErrCodeCompile,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDir(tt.dir(t))
			var le *LoadError
			require.True(t, errors.As(err, &le), "got %v", err)
			assert.Equal(t, tt.code, le.Code)
		})
	}
}
