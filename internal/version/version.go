// ABOUTME: Build identity constants for the clipstream module
// ABOUTME: Reported by the CLI and useful in diagnostics
package version

const (
	// Version is the module version.
	Version = "0.1.0"

	// Product is the human-readable product name.
	Product = "Clipstream"

	// Manufacturer identifies the project publishing this build.
	Manufacturer = "Clipstream Project"
)
