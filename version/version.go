package version //nolint:revive // package name intentionally matches build-info convention

import "runtime/debug"

//nolint:gochecknoglobals //version information is set at build time
var (
	Repository string
	Version    string
	Commit     string
	Date       string
)

// Info is the build information of the running binary.
type Info struct {
	Repository string
	Version    string
	Commit     string
	Date       string
}

// Get returns the ldflags build information, filling gaps from the module
// build info embedded by the go toolchain.
func Get() Info {
	info := Info{Repository: Repository, Version: Version, Commit: Commit, Date: Date}

	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Repository == "" {
			info.Repository = bi.Main.Path
		}
		if info.Version == "" && bi.Main.Version != "" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			}
		}
	}

	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}
