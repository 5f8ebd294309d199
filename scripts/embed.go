// Package scripts holds the default Risor scan scripts, embedded so the
// binary works without a scripts directory on disk.
package scripts

import "embed"

// FS contains scan/{kind}.risor for every document kind that has a default
// script.
//
//go:embed scan/*.risor
var FS embed.FS
