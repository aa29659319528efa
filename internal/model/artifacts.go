// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import "path/filepath"

// Fixed artifact file names inside a run's output directory.
const (
	GrammarFile     = "grammar.lark"
	ParserFile      = "parser.js"
	InterpreterFile = "interpreter.js"
	RunnerFile      = "run.js"
	ExampleFile     = "example.txt"
	ProbeFile       = "probe.txt"
)

// Artifacts lists the on-disk outputs of a pipeline run.
type Artifacts struct {
	Dir             string
	GrammarPath     string
	ParserPath      string
	InterpreterPath string
	RunnerPath      string
	// ProbePath holds the program text handed to the runner.
	ProbePath string
	// ExamplePath is empty unless an example program was generated.
	ExamplePath string
}

// ArtifactsIn returns the artifact layout rooted at dir.
func ArtifactsIn(dir string) Artifacts {
	return Artifacts{
		Dir:             dir,
		GrammarPath:     filepath.Join(dir, GrammarFile),
		ParserPath:      filepath.Join(dir, ParserFile),
		InterpreterPath: filepath.Join(dir, InterpreterFile),
		RunnerPath:      filepath.Join(dir, RunnerFile),
		ProbePath:       filepath.Join(dir, ProbeFile),
	}
}
