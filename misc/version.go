// Package misc keeps build related information.
package misc

// Set by the linker: -X tsukiyomi/misc.version=... -X tsukiyomi/misc.githash=...
var (
	version = "dev"
	githash = "unknown"
)

const appName = "tsukiyomi"

func GetAppName() string {
	return appName
}

func GetVersion() string {
	return version
}

func GetGitHash() string {
	return githash
}
