package plugin

// Info contains plugin metadata
type Info struct {
	URI     string // Unique plugin identifier (e.g., "http://example.com/plugins/notes")
	Name    string // Display name
	Version string // Semantic version (e.g., "1.0.0")
	Vendor  string // Company/developer name
}

// Prefix returns the namespace for the plugin's own URIs
func (i Info) Prefix() string {
	return i.URI + "#"
}
