package version

import "fmt"

// Version is the application version, set at build time via ldflags.
// Example: go build -ldflags "-X github.com/kyonifer/silveran-reader-sub004/pkg/version.Version=1.0.0".
var Version = "dev"

// UserAgent identifies this build to the remote catalog server.
func UserAgent() string {
	return fmt.Sprintf("silveran/%s", Version)
}
