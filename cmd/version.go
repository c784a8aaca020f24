package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
)

// version is set via -ldflags at build time.
var version = "(devel)"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("quizrag", displayVersion(version))
	},
}

// displayVersion canonicalizes release versions ("1.2" becomes "v1.2.0")
// and marks pre-releases. Anything that is not semver is printed as is.
func displayVersion(v string) string {
	sv := v
	if len(sv) > 0 && sv[0] != 'v' {
		sv = "v" + sv
	}
	if !semver.IsValid(sv) {
		return v
	}
	out := semver.Canonical(sv)
	if semver.Prerelease(sv) != "" {
		out += " (pre-release)"
	}
	return out
}
