// Package migrations embeds the goose SQL migration files applied to the
// primary Postgres store at boot, mirroring the teacher's
// orderService/migrations package referenced by its integration suite.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
