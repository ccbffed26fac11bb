// Package types defines the core data structures for the combat action engine.
//
// This package contains the fundamental types shared by the scheduler, the
// timed-hit judgment engine and the combat event dispatcher, including:
//   - Step, StepGroup and Recipe definitions (immutable once built)
//   - the per-invocation ExecutionContext and its side-channel interfaces
//   - timed-hit tolerances, requests and results
//   - step, group and recipe execution results
package types
