// Package constant defines immutable application-level identifiers and configuration defaults.
package constant

const (
	// Shelfplay is the canonical application identifier used for filesystem paths and CLI branding.
	Shelfplay = "shelfplay"

	// Version is the current application semantic version string.
	Version = "0.1.0"

	// UserAgent identifies the client to the media server.
	UserAgent = "shelfplay/" + Version
)

// Build metadata, overridable at link time.
var (
	Revision = "unknown"
	BuiltAt  = "unknown"
	BuiltBy  = "unknown"
)
