// Package version reports build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/mattsolo1/han-bridge/internal/version.Version=v0.3.0"
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// Info is the version information for this binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns the build metadata, filling the commit from the module's
// VCS stamp when it was not injected.
func GetInfo() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.Commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					info.Commit = s.Value
				}
			}
		}
	}
	return info
}

func (i Info) String() string {
	s := fmt.Sprintf("han-bridge %s", i.Version)
	if i.Commit != "" {
		commit := i.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		s += fmt.Sprintf(" (%s)", commit)
	}
	if i.BuildDate != "" {
		s += fmt.Sprintf(" built %s", i.BuildDate)
	}
	return s + fmt.Sprintf(" %s %s", i.GoVersion, i.Platform)
}
