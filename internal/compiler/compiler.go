// Package compiler implements the Compiler Driver: it invokes the Go
// toolchain as a subprocess against a staged workspace, targeting
// GOOS=wasip1 GOARCH=wasm, and reports the resulting artifact path.
package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sbraitsch/farce/internal/stage"
	"github.com/sbraitsch/farce/internal/taxonomy"
)

// Artifact is the compiled module produced for one workspace, plus its
// dependency-info sidecar. Both files are removed together once the run
// completes (spec.md §3's Artifact invariant).
type Artifact struct {
	Path        string
	DepInfoPath string
}

// Remove deletes both files. It does not error on a file that is
// already gone, so it is safe to call on every exit path regardless of
// how far compilation or execution got.
func (a *Artifact) Remove() error {
	if a == nil {
		return nil
	}
	var errs []error
	for _, p := range []string{a.Path, a.DepInfoPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}

// Driver compiles staged workspaces into wasm artifacts under a shared,
// process-wide build directory so the Go build cache stays warm across
// requests (spec.md §4.3's rationale for sharing Cargo's target dir,
// ported to `go build`'s GOCACHE).
type Driver struct {
	// Toolchain is the `go` binary to invoke (configurable for tests and
	// for environments where it isn't first on PATH).
	Toolchain string
	// BuildDir is the shared build-output directory. Artifacts land at
	// <BuildDir>/<build-id>.wasm; GOCACHE is pinned at <BuildDir>/go-cache.
	BuildDir string
}

// NewDriver ensures BuildDir (and its GOCACHE subdirectory) exist and
// returns a ready Driver.
func NewDriver(toolchain, buildDir string) (*Driver, error) {
	cacheDir := filepath.Join(buildDir, "go-cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating build cache dir: %w", err)
	}
	return &Driver{Toolchain: toolchain, BuildDir: buildDir}, nil
}

// Compile builds ws into a wasm module named after its build identity.
func (d *Driver) Compile(ctx context.Context, ws *stage.Workspace) (*Artifact, error) {
	artifactPath := filepath.Join(d.BuildDir, ws.BuildID+".wasm")
	depInfoPath := artifactPath + ".d"

	cmd := exec.CommandContext(ctx, d.Toolchain, "build", "-trimpath", "-buildmode=c-shared", "-o", artifactPath, ".")
	cmd.Dir = ws.Dir
	cmd.Env = append(os.Environ(),
		"GOOS=wasip1",
		"GOARCH=wasm",
		"GOCACHE="+filepath.Join(d.BuildDir, "go-cache"),
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = nil

	if err := cmd.Run(); err != nil {
		return nil, taxonomy.New(taxonomy.CompilationFailed, stderr.String())
	}

	if err := writeDepInfo(ctx, d.Toolchain, ws.Dir, depInfoPath); err != nil {
		_ = os.Remove(artifactPath)
		return nil, err
	}

	return &Artifact{Path: artifactPath, DepInfoPath: depInfoPath}, nil
}

// writeDepInfo records the guest's import graph in a sidecar file,
// mirroring the `.d` file Cargo produces alongside each artifact so the
// two-file cleanup invariant in spec.md §3/§8 holds for a Go toolchain
// too.
func writeDepInfo(ctx context.Context, toolchain, dir, depInfoPath string) error {
	cmd := exec.CommandContext(ctx, toolchain, "list", "-deps", ".")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOOS=wasip1", "GOARCH=wasm")

	out, err := cmd.Output()
	if err != nil {
		// Dependency listing is diagnostic bookkeeping, not the
		// compiled artifact itself; a failure here should not mask a
		// successful compile.
		out = []byte("# dependency listing unavailable\n")
	}

	if err := os.WriteFile(depInfoPath, out, 0o644); err != nil {
		return taxonomy.Wrapf(taxonomy.CompilationFailed, err, "writing dependency info to %s", depInfoPath)
	}

	return nil
}
