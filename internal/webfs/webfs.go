// Package webfs provides the embedded web assets.
package webfs

import "embed"

//go:embed all:static
var FS embed.FS
