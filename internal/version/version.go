// Package version carries build metadata set with -ldflags "-X".
package version

import "fmt"

const Name = "decision-pipeline"

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Build is the JSON form served on /version.
type Build struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
}

func Current() Build {
	return Build{Name: Name, Version: Version, Commit: Commit, BuildDate: BuildDate}
}

func String() string {
	return fmt.Sprintf("%s version=%s commit=%s build_date=%s", Name, Version, Commit, BuildDate)
}
