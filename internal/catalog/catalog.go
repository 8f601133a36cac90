// Package catalog is the read-only mapping from a problem identifier to
// its on-disk template project. It holds no mutable state: the set of
// recognized problems is fixed at compile time and every lookup is
// served from an in-process map built once at init.
package catalog

import (
	"path/filepath"

	"github.com/sbraitsch/farce/internal/taxonomy"
)

// Problem is one of the closed set of problem identifiers the sandbox
// can grade.
type Problem string

const (
	Arbitrary Problem = "arbitrary"
	Decode    Problem = "decode"
	Param     Problem = "param"
	Prime     Problem = "prime"
)

// Arity distinguishes the guest entry-point signature the VM Host must
// call for a problem.
type Arity int

const (
	// ArityNullary guests export `run() int32`.
	ArityNullary Arity = iota
	// ArityParam guests export `run(ptr, length int32) int32` and
	// receive their submission as a runtime argument rather than
	// source code.
	ArityParam
)

// Entry pins everything the pipeline needs to know about one problem:
// which template tree to stage, which file the submission overwrites
// (empty when the submission is never baked into source, i.e. Param),
// and the guest arity the VM Host invokes with.
type Entry struct {
	Problem       Problem
	TemplateDir   string
	SubmissionRel string
	ScaffoldRel   string
	Arity         Arity
}

// root is the directory under which every templates/<problem> tree
// lives, relative to the process working directory.
var root = "templates"

var entries = map[Problem]Entry{
	Arbitrary: {
		Problem:       Arbitrary,
		TemplateDir:   filepath.Join(root, "arbitrary"),
		SubmissionRel: "scaffold.go",
		ScaffoldRel:   "scaffold.go",
		Arity:         ArityNullary,
	},
	Decode: {
		Problem:       Decode,
		TemplateDir:   filepath.Join(root, "decode"),
		SubmissionRel: "scaffold.go",
		ScaffoldRel:   "scaffold.go",
		Arity:         ArityNullary,
	},
	Param: {
		Problem:     Param,
		TemplateDir: filepath.Join(root, "param"),
		// Param submissions are a runtime argument, never source code,
		// so there is no file to overwrite (spec.md §4.2).
		SubmissionRel: "",
		ScaffoldRel:   "scaffold.go",
		Arity:         ArityParam,
	},
	Prime: {
		Problem:       Prime,
		TemplateDir:   filepath.Join(root, "prime"),
		SubmissionRel: "boilerplate.go",
		ScaffoldRel:   "boilerplate.go",
		Arity:         ArityNullary,
	},
}

// Resolve maps a wire-form problem identifier to its catalog Entry.
func Resolve(id string) (Entry, error) {
	entry, ok := entries[Problem(id)]
	if !ok {
		return Entry{}, taxonomy.Newf(taxonomy.UnknownProblem, "%q is not a recognized problem", id)
	}
	return entry, nil
}

// IsParameterized reports whether a problem treats its submission as a
// runtime parameter rather than as source code to overlay.
func (e Entry) IsParameterized() bool {
	return e.Arity == ArityParam
}
