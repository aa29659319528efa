// Package cli turns command-line arguments into an app.Config and defines
// the ExitError that carries a process exit code back to main.
package cli
