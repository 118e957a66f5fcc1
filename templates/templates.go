// Package templates embeds the HTML views rendered by the handlers.
package templates

import "embed"

//go:embed layout.tmpl pages/*.tmpl
var FS embed.FS
