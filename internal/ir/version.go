package ir

// Version constants for the event wire format and the tool.
const (
	// FormatVersion is the event record schema version.
	FormatVersion = "1"

	// ToolVersion is the allocaudit version.
	ToolVersion = "0.1.0"
)
