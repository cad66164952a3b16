// Package version carries the release version stamped into builds.
package version

// Version is the module version. Release builds override it via
// -ldflags "-X .../internal/version.Version=x.y.z".
var Version = "0.1.0"
