// Package migrations ships the schema and seed SQL with the binaries.
package migrations

import "embed"

//go:embed sql seeds
var Files embed.FS
