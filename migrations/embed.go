// Package migrations holds the SQL schema of the forms service: reviewer
// accounts, refresh tokens and the audit log, then registered forms with
// their submissions, drafts and attachments.
package migrations

import "embed"

// FS holds the numbered up/down migrations applied by database.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
