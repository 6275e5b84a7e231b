package agentversion

import "fmt"

var (
	version   string
	commit    string
	buildTime string
)

// Version returns the agent version string, filled in at build time via
// -ldflags.
func Version() string {
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "none"
	}
	if buildTime == "" {
		buildTime = "unknown"
	}

	return fmt.Sprintf("version: %s, commit: %s, built at: %s", version, commit, buildTime)
}
