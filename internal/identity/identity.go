// Package identity centralizes the product and binary naming used in
// user-facing output, log records, and on-disk state.
package identity

import "strings"

const (
	BrandName = "Hearth"
	// AppSlug is the canonical identifier for log records and on-disk
	// state. It intentionally matches the only supported CLI binary name.
	AppSlug = "hearth"
	CLIName = "hearth"

	GlobalConfigFile = "config.yaml"
)

// IsCLICommandToken reports whether token names this binary.
func IsCLICommandToken(token string) bool {
	return strings.ToLower(strings.TrimSpace(token)) == CLIName
}
