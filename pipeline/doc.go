// Package pipeline provides components for executing the test pipeline's
// five layers in a structured, fail-fast manner.
//
// The main components are:
//   - Executor: runs external tools with output capture and timeout handling
//   - Stage: one pipeline layer with its commands, artifacts and service needs
//   - Runner: sequences stages in fixed order, short-circuiting on the first
//     failure, and guarantees service teardown on every exit path
//
// These components work together to provide a clean, testable architecture
// for driving the CI test layers with proper error handling, timeout
// management and result aggregation.
package pipeline
