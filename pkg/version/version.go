// Package version holds the build identity stamped in through ldflags.
package version

import "fmt"

// SolvoVersion is the release version of the binary, set at build time.
var SolvoVersion string

// GitCommit is the git revision the binary was built from, set at build time.
var GitCommit string

// String renders both fields the way the version subcommand prints them.
func String() string {
	return fmt.Sprintf("solvo version: %s\ngit commit: %s\n", SolvoVersion, GitCommit)
}
