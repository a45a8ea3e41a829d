// Package model defines the control plane's domain entities, independent of
// how they are transported (HTTP DTOs) or stored (SQLite rows).
package model

import "regexp"

var idRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsSafeID reports whether id is safe to embed in filesystem paths and URLs.
func IsSafeID(id string) bool {
	return id != "" && idRe.MatchString(id)
}
