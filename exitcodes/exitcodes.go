// Package exitcodes defines the standard exit codes used by stagerunner.
package exitcodes

// Exit code constants used by stagerunner
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when all pipeline stages pass
// * StageFailure (1): Used when one or more stages fail
// * RuntimeErr (2): Used for runtime errors such as missing tools, bad flags or panics
const (
	Success      = 0 // All stages pass
	StageFailure = 1 // Stage failures
	RuntimeErr   = 2 // Runtime errors, missing tools or invalid usage
)
