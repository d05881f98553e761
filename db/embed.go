// Package db embeds the storefront schema migrations.
package db

import "embed"

// Migrations holds the ordered DDL files under migrations/. Every file is
// idempotent and is applied in lexical order on startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS
