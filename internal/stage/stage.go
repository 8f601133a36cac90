// Package stage implements the Workspace Stager: it copies a catalog
// template into a fresh per-request directory, overlays the user's
// submission, and mutates the copy's project manifest so every
// concurrent request builds under a globally unique identity.
package stage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"
	"github.com/pelletier/go-toml/v2"

	"github.com/sbraitsch/farce/internal/catalog"
	"github.com/sbraitsch/farce/internal/taxonomy"
)

// manifestFile is the Go-native analogue of the original Rust
// pipeline's Cargo.toml: a tiny TOML document every template carries so
// the stager has somewhere structured to record the build identity.
const manifestFile = "manifest.toml"

// manifest is the shape of manifest.toml. BuildID starts empty in the
// template and is set by Stage on the copy.
type manifest struct {
	Package struct {
		Name    string `toml:"name"`
		BuildID string `toml:"build_id,omitempty"`
	} `toml:"package"`
}

// Workspace is a per-request temporary copy of a template with the
// submission overlaid and the manifest's build identity set. Close
// removes Dir and is safe to call more than once.
type Workspace struct {
	Dir     string
	BuildID string

	closed bool
}

// Close removes the workspace directory. It is idempotent so deferred
// cleanup after a later pipeline failure never double-errors.
func (w *Workspace) Close() error {
	if w == nil || w.closed {
		return nil
	}
	w.closed = true
	return os.RemoveAll(w.Dir)
}

// buildIDRune turns every rune that isn't an ASCII letter or digit into
// an underscore, so the build identity is safe in a filesystem path and
// a TOML string literal, mirroring the original pipeline's
// ".".replace("_") but generalized to any separator the OS puts in a
// temp-dir name.
func buildIDRune(r rune) rune {
	if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
		return r
	}
	return '_'
}

func buildIDFor(dir string) string {
	base := filepath.Base(dir)
	return "user" + strings.Map(buildIDRune, base)
}

// Stage creates a fresh workspace for problem, copies its template tree
// into it, overlays submission (unless the problem treats its
// submission as a runtime parameter), and records the workspace's build
// identity in the copied manifest.
func Stage(_ context.Context, entry catalog.Entry, source []byte) (*Workspace, error) {
	if _, err := os.Stat(entry.TemplateDir); err != nil {
		return nil, taxonomy.Wrapf(taxonomy.TemplateMissing, err, "template for %s not found at %s", entry.Problem, entry.TemplateDir)
	}

	dir, err := os.MkdirTemp("", "farce-*")
	if err != nil {
		return nil, taxonomy.Wrapf(taxonomy.StagingIO, err, "creating workspace directory")
	}

	ws := &Workspace{Dir: dir, BuildID: buildIDFor(dir)}

	if err := copy.Copy(entry.TemplateDir, ws.Dir); err != nil {
		_ = ws.Close()
		return nil, taxonomy.Wrapf(taxonomy.StagingIO, err, "copying template %s into workspace", entry.TemplateDir)
	}

	if !entry.IsParameterized() {
		submissionPath := filepath.Join(ws.Dir, entry.SubmissionRel)
		if err := os.WriteFile(submissionPath, source, 0o644); err != nil {
			_ = ws.Close()
			return nil, taxonomy.Wrapf(taxonomy.StagingIO, err, "writing submission to %s", submissionPath)
		}
	}

	if err := writeBuildID(ws.Dir, ws.BuildID); err != nil {
		_ = ws.Close()
		return nil, err
	}

	return ws, nil
}

func writeBuildID(dir, buildID string) error {
	manifestPath := filepath.Join(dir, manifestFile)

	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return taxonomy.Wrapf(taxonomy.ManifestMissing, err, "reading %s", manifestPath)
	}

	var doc manifest
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return taxonomy.Wrapf(taxonomy.ManifestMissing, err, "parsing %s", manifestPath)
	}

	doc.Package.BuildID = buildID

	out, err := toml.Marshal(doc)
	if err != nil {
		return taxonomy.Wrapf(taxonomy.StagingIO, err, "re-encoding %s", manifestPath)
	}

	if err := os.WriteFile(manifestPath, out, 0o644); err != nil {
		return taxonomy.Wrapf(taxonomy.StagingIO, err, "writing %s", manifestPath)
	}

	return nil
}
