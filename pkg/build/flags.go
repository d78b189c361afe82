// SPDX-License-Identifier: MIT
//
// Package build holds the build metadata embedded into the binary with linker
// flags. The CLI uses it for its name, description and version string:
//
//	go build -ldflags "-X accelfft/pkg/build.buildName=accelfft \
//	    -X accelfft/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds carry no flags; Initialize then reports what is missing
// and the defaults below stay in place.
package build

import (
	"errors"
	"fmt"
)

// Description is the one-line summary shown by the CLI.
const Description = "Cross-core accelerometer spectrum pipeline"

// Info is the build metadata of the running binary.
type Info struct {
	Name    string // Application name
	Time    string // Build timestamp (RFC3339)
	Commit  string // Git commit hash
	Version string // Semantic version
}

// String formats the metadata as a single version line.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Package-level variables populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultInfo()
)

func defaultInfo() *Info {
	return &Info{
		Name:    "accelfft",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
}

// Initialize copies the ldflags variables into the build information. Every
// missing flag is reported in the returned error; flags that are present are
// still applied, so a partially stamped binary keeps what it has.
func Initialize() error {
	var errs []error
	apply := func(dst *string, v, name string) {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			return
		}
		*dst = v
	}

	apply(&buildFlags.Name, buildName, "BuildName")
	apply(&buildFlags.Time, buildTime, "BuildTime")
	apply(&buildFlags.Commit, buildCommit, "BuildCommit")
	apply(&buildFlags.Version, buildVersion, "BuildVersion")

	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildFlags
}
