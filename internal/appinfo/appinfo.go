// Package appinfo holds the name and version shown by the CLI and stamped on
// outgoing notifications.
package appinfo

const Name = "portal-automation"

// Version is overridden at link time:
//
//	go build -ldflags "-X portal_automation/internal/appinfo.Version=0.2.0" ./cmd/automation
var Version = "0.1.0"

// Display is "name vX.Y.Z", or "name dev" for builds without a version.
func Display() string {
	if Version == "" {
		return Name + " dev"
	}
	return Name + " v" + Version
}
