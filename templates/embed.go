// Package templates embeds the default configuration and the static web UI.
package templates

import "embed"

//go:embed config.yaml web
var FS embed.FS
