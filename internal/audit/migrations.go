package audit

import (
	"database/sql"

	"github.com/HerbHall/opsconductor/pkg/plugin"
)

// Migrations returns the schema owned by the audit component.
func Migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create audit events table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS audit_events (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						event_type TEXT NOT NULL,
						user_id TEXT NOT NULL DEFAULT '',
						resource_type TEXT NOT NULL,
						resource_id TEXT NOT NULL,
						action TEXT NOT NULL,
						details TEXT NOT NULL DEFAULT '{}',
						severity TEXT NOT NULL,
						timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp)`,
					`CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(resource_type, resource_id)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
