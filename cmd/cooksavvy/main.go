// Command cooksavvy runs the Cooksavvy account API and its schema migrations.
package main

import (
	"fmt"
	"os"
)

// Set by the linker: -X main.version=... -X main.commit=... -X main.date=...
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI with args and returns the process exit code. Cobra
// has already printed the error when Execute fails.
func run(args []string) int {
	cmd := NewRootCmd()
	cmd.Version = buildInfo()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func buildInfo() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}
