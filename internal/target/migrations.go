package target

import (
	"database/sql"

	"github.com/HerbHall/opsconductor/pkg/plugin"
)

// Migrations returns the schema owned by the target component.
func Migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create targets, communication methods, and credentials",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS targets (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						uuid TEXT NOT NULL UNIQUE,
						serial TEXT UNIQUE,
						name TEXT NOT NULL,
						target_type TEXT NOT NULL DEFAULT 'system',
						description TEXT NOT NULL DEFAULT '',
						os_type TEXT NOT NULL,
						environment TEXT NOT NULL DEFAULT '',
						location TEXT NOT NULL DEFAULT '',
						data_center TEXT NOT NULL DEFAULT '',
						region TEXT NOT NULL DEFAULT '',
						status TEXT NOT NULL DEFAULT 'active'
							CHECK (status IN ('active', 'inactive', 'maintenance')),
						health_status TEXT NOT NULL DEFAULT 'unknown'
							CHECK (health_status IN ('unknown', 'healthy', 'warning', 'critical')),
						is_active INTEGER NOT NULL DEFAULT 1,
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_targets_name ON targets(name)`,
					`CREATE INDEX IF NOT EXISTS idx_targets_active ON targets(is_active, status)`,
					// Serials are assigned by storage and never rewritten.
					`CREATE TRIGGER IF NOT EXISTS trg_targets_serial
						AFTER INSERT ON targets
						WHEN NEW.serial IS NULL
						BEGIN
							UPDATE targets SET serial = printf('TGT-%06d', NEW.id) WHERE id = NEW.id;
						END`,
					`CREATE TABLE IF NOT EXISTS communication_methods (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						target_id INTEGER NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
						method_type TEXT NOT NULL,
						method_name TEXT NOT NULL,
						is_primary INTEGER NOT NULL DEFAULT 0,
						is_active INTEGER NOT NULL DEFAULT 1,
						priority INTEGER NOT NULL DEFAULT 1,
						config TEXT NOT NULL DEFAULT '{}',
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_methods_target ON communication_methods(target_id)`,
					`CREATE INDEX IF NOT EXISTS idx_methods_host ON communication_methods(json_extract(config, '$.host'))`,
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_methods_single_primary
						ON communication_methods(target_id) WHERE is_primary = 1`,
					`CREATE TABLE IF NOT EXISTS credentials (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						method_id INTEGER NOT NULL REFERENCES communication_methods(id) ON DELETE CASCADE,
						credential_type TEXT NOT NULL,
						credential_name TEXT NOT NULL,
						is_primary INTEGER NOT NULL DEFAULT 1,
						is_active INTEGER NOT NULL DEFAULT 1,
						encrypted_credentials TEXT NOT NULL,
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_credentials_method ON credentials(method_id)`,
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
