package journal

import "embed"

// migrationFS holds the journal schema. Nothing needs to exist on disk.
//
//go:embed migrations/*.sql
var migrationFS embed.FS
