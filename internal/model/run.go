// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"errors"
	"strings"
)

// Run carries the immutable inputs of a single pipeline invocation. It is
// passed explicitly to every stage; no stage reads these values from any
// other place.
type Run struct {
	// Spec describes the syntax of the target language.
	Spec string
	// Semantics describes the run-time behaviour of the target language.
	Semantics string
	// Sample is an optional literal program in the target language. When set
	// it biases grammar synthesis and is the fixed probe of the repair loop.
	Sample string
	// OutputDir receives every artifact written during the run.
	OutputDir string
}

// NewRun validates and returns a Run.
func NewRun(spec, semantics, sample, outputDir string) (*Run, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, errors.New("specification text must not be empty")
	}
	if outputDir == "" {
		return nil, errors.New("output directory must not be empty")
	}
	return &Run{
		Spec:      spec,
		Semantics: semantics,
		Sample:    sample,
		OutputDir: outputDir,
	}, nil
}

// HasSample reports whether the run was given a sample program.
func (r *Run) HasSample() bool {
	return strings.TrimSpace(r.Sample) != ""
}
