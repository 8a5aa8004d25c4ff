// SPDX-License-Identifier: MPL-2.0

package packager

import (
	"time"

	"github.com/lambdapack/lambdapack/pkg/manifest"
)

const (
	// TimestampLayout formats the time component of artifact names.
	TimestampLayout = "2006-01-02-15-04-05"
	// LatestStamp replaces the timestamp when time stamping is disabled.
	LatestStamp = "latest"
)

// ArtifactName returns "{name}_{version}_{stamp}" where dots in the version
// become dashes and stamp is now (local time, second resolution) or "latest".
func ArtifactName(name manifest.PackageName, version manifest.Version, includeTime bool, now time.Time) string {
	stamp := LatestStamp
	if includeTime {
		stamp = now.Local().Format(TimestampLayout)
	}
	return name.FileSafe() + "_" + version.FileSafe() + "_" + stamp
}
