// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Media Server Connection - these keys identify the remote audiobook server.
const (
	ServerAddress = "server.address"
	ServerToken   = "server.token"
)

// Playback Engine - these keys maintain the state and configuration for the external audio engine.
const (
	PlayerDefault = "player.default"
	PlayerSpeed   = "player.speed"
)

// Progress Synchronization - these keys govern when and how playback progress is reported.
const (
	SyncHeartbeatSeconds    = "sync.heartbeat_seconds"
	SyncJumpSeconds         = "sync.jump_seconds"
	SyncCompletionFraction  = "sync.completion_fraction"
	SyncResumeDriftSeconds  = "sync.resume_drift_seconds"
	SyncResetMinimumSeconds = "sync.reset_minimum_seconds"
	SyncRequireOnline       = "sync.require_online"
)

// Local Library - these keys configure discovery of downloaded audiobook files.
const (
	LibraryPath = "library.path"
)

// Search Interaction - these keys define how book titles are matched on the CLI.
const (
	SearchFuzzy = "search.fuzzy"
	SearchLimit = "search.limit"
)

// Iconography - these keys manage the visual rendering of UI symbols.
const (
	IconsVariant = "icons.variant"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics and auditing system.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment - these flags and settings govern the non-interactive application behavior.
const (
	CliColored      = "cli.colored"
	CliVersionCheck = "cli.version_check"
)
