package lifecycle

import "strings"

// DefaultManifest returns the application shell warmed during install,
// resolved against origin. Operators override it through configuration
// when the shell differs.
func DefaultManifest(origin string) []string {
	base := strings.TrimRight(strings.TrimSpace(origin), "/")
	return []string{
		base + "/",
		base + "/index.html",
		base + "/assets/app.js",
		base + "/assets/app.css",
		base + "/data/config.json",
		"https://cdn.jsdelivr.net/npm/htmx.org@1.9.12/dist/htmx.min.js",
	}
}
