package stage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbraitsch/farce/internal/catalog"
)

func writeTemplate(t *testing.T, dir string, withSubmission bool) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.toml"), []byte("[package]\nname = \"guest\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module guest\n\ngo 1.24\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	if withSubmission {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "scaffold.go"), []byte("package main\n"), 0o644))
	}
}

func TestStageOverlaysSubmissionAndTagsManifest(t *testing.T) {
	tplDir := t.TempDir()
	writeTemplate(t, tplDir, true)

	entry := catalog.Entry{
		Problem:       catalog.Arbitrary,
		TemplateDir:   tplDir,
		SubmissionRel: "scaffold.go",
		Arity:         catalog.ArityNullary,
	}

	ws, err := Stage(context.Background(), entry, []byte("package main\n\nfunc execute() int { return 1 }\n"))
	require.NoError(t, err)
	defer ws.Close()

	submission, err := os.ReadFile(filepath.Join(ws.Dir, "scaffold.go"))
	require.NoError(t, err)
	assert.Contains(t, string(submission), "func execute")

	raw, err := os.ReadFile(filepath.Join(ws.Dir, "manifest.toml"))
	require.NoError(t, err)

	var doc struct {
		Package struct {
			BuildID string `toml:"build_id"`
		} `toml:"package"`
	}
	require.NoError(t, toml.Unmarshal(raw, &doc))
	assert.Equal(t, ws.BuildID, doc.Package.BuildID)
	assert.NotContains(t, ws.BuildID, ".")
}

func TestStageParamDoesNotOverwriteAnyFile(t *testing.T) {
	tplDir := t.TempDir()
	writeTemplate(t, tplDir, false)
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "scaffold.go"), []byte("package main\n// never overwritten\n"), 0o644))

	entry := catalog.Entry{
		Problem:     catalog.Param,
		TemplateDir: tplDir,
		Arity:       catalog.ArityParam,
	}

	ws, err := Stage(context.Background(), entry, nil)
	require.NoError(t, err)
	defer ws.Close()

	contents, err := os.ReadFile(filepath.Join(ws.Dir, "scaffold.go"))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "never overwritten")
}

func TestStageConcurrentBuildIDsAreUnique(t *testing.T) {
	tplDir := t.TempDir()
	writeTemplate(t, tplDir, true)

	entry := catalog.Entry{
		Problem:       catalog.Arbitrary,
		TemplateDir:   tplDir,
		SubmissionRel: "scaffold.go",
		Arity:         catalog.ArityNullary,
	}

	const n = 25
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ws, err := Stage(context.Background(), entry, []byte("package main\n"))
			errs[i] = err
			if err == nil {
				ids[i] = ws.BuildID
				t.Cleanup(func() { _ = ws.Close() })
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.False(t, seen[ids[i]], "build id %s reused", ids[i])
		seen[ids[i]] = true
	}
}

func TestStageTemplateMissing(t *testing.T) {
	entry := catalog.Entry{
		Problem:     catalog.Arbitrary,
		TemplateDir: filepath.Join(t.TempDir(), "does-not-exist"),
	}

	_, err := Stage(context.Background(), entry, nil)
	require.Error(t, err)
}

func TestStageManifestMissing(t *testing.T) {
	tplDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "go.mod"), []byte("module guest\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "scaffold.go"), []byte("package main\n"), 0o644))

	entry := catalog.Entry{
		Problem:       catalog.Arbitrary,
		TemplateDir:   tplDir,
		SubmissionRel: "scaffold.go",
	}

	_, err := Stage(context.Background(), entry, []byte("package main\n"))
	require.Error(t, err)
}

func TestWorkspaceCloseIsIdempotent(t *testing.T) {
	tplDir := t.TempDir()
	writeTemplate(t, tplDir, true)

	entry := catalog.Entry{
		Problem:       catalog.Arbitrary,
		TemplateDir:   tplDir,
		SubmissionRel: "scaffold.go",
	}

	ws, err := Stage(context.Background(), entry, []byte("package main\n"))
	require.NoError(t, err)

	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())

	_, statErr := os.Stat(ws.Dir)
	assert.True(t, os.IsNotExist(statErr))
}
