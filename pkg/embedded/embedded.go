// Package embedded provides embedded static assets for the application.
package embedded

import (
	"embed"
)

// Files contains the dashboard frontend served under /static and /.
//
//go:embed static
var Files embed.FS
