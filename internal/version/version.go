package version

import "fmt"

var (
	ServiceName    = "x402-yield-api"
	ServiceVersion = "0.1.0"
	Commit         = "unknown"
	BuildDate      = "unknown"
)

func Long() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", ServiceVersion, Commit, BuildDate)
}
