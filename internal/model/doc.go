// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model holds the plain data shared by every pipeline stage.
//
// # Core Concepts
//
//   - Run: The immutable inputs of one invocation. The specification feeds
//     grammar synthesis, the semantics feed interpreter synthesis, and the
//     optional sample biases the grammar and is the probe input of the
//     repair loop. The sample is carried explicitly on the Run and is never
//     process-global state.
//
//   - Artifacts: The fixed file layout of a run's output directory.
//
//   - RetryPolicy: The attempt budget and fixed delay used by the retrying
//     stages.
//
// Keeping these types apart from the stages lets the grammar, interpreter and
// repair packages exchange them without importing each other.
package model
