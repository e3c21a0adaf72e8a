// Package web holds the browser client served by the relay.
package web

import "embed"

// Files holds index.html and the static/ assets.
//
//go:embed index.html static
var Files embed.FS
