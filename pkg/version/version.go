package version

// Version represents the current version of dalili
const Version = "0.4.1"

// BuildVersion returns the version string for display
func BuildVersion() string {
	return "dalili version " + Version
}

// APIVersion returns just the version number for API responses
func APIVersion() string {
	return Version
}
