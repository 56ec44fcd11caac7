// Package version exposes build version information for stream-llm.
//
// Version and commit are set at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/amit-t/stream-llm/version.Version=1.2.0"
//
// and fall back to VCS metadata embedded by the Go toolchain.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version is the semantic version, set at build time.
	Version = "dev"
	// GitCommit is the short commit hash, set at build time.
	GitCommit = ""
)

// Info is the resolved build identity.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Dirty     bool   `json:"dirty"`
}

// Get resolves build identity from ldflags first, then from the
// module's embedded VCS metadata.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				if info.GitCommit == "" && len(setting.Value) >= 7 {
					info.GitCommit = setting.Value[:7]
				}
			case "vcs.modified":
				info.Dirty = setting.Value == "true"
			}
		}
	}
	return info
}

// String renders the version the way it appears in logs and resource
// attributes: "1.2.0", "1.2.0-abc1234", or "1.2.0-abc1234-dirty".
func (i Info) String() string {
	s := i.Version
	if i.GitCommit != "" {
		s = fmt.Sprintf("%s-%s", s, i.GitCommit)
	}
	if i.Dirty {
		s += "-dirty"
	}
	return s
}
