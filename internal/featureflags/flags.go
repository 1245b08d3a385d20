package featureflags

import (
	"os"
	"strings"
)

// Known flags.
const (
	// KeepRefreshToken leaves the refresh token unchanged on refresh; only
	// the access token rotates.
	KeepRefreshToken = "KEEP_REFRESH_TOKEN"
	// NotificationStream exposes the websocket notification stream.
	NotificationStream = "NOTIFICATION_STREAM"
)

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
