package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type migrationStep struct {
	Name string
	SQL  string
}

// sentinelTable is checked to decide whether the schema already exists.
const sentinelTable = "public.master_instructions"

// documentTable returns the DDL shared by every versioned document kind.
// Workflow collections are stored as JSONB; revision backs optimistic locking.
func documentTable(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id                BIGSERIAL   PRIMARY KEY,
  product_name      TEXT        NOT NULL,
  content           JSONB       NOT NULL,
  status            TEXT        NOT NULL DEFAULT 'Created',
  version           INTEGER     NOT NULL DEFAULT 1 CHECK (version > 0),
  reviewers         JSONB       NOT NULL DEFAULT '[]'::jsonb,
  approvers         JSONB       NOT NULL DEFAULT '[]'::jsonb,
  rejection_info    JSONB,
  review_note       TEXT        NOT NULL DEFAULT '',
  comments          JSONB       NOT NULL DEFAULT '[]'::jsonb,
  original_doc_path TEXT        NOT NULL DEFAULT '',
  history           JSONB       NOT NULL DEFAULT '[]'::jsonb,
  created_by        TEXT        NOT NULL DEFAULT '',
  revision          BIGINT      NOT NULL DEFAULT 1,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);`, table)
}

var steps = []migrationStep{
	{
		Name: "create_table_master_instructions",
		SQL:  documentTable("master_instructions"),
	},
	{
		Name: "create_index_master_instructions_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_master_instructions_status ON master_instructions (status);`,
	},
	{
		Name: "create_table_master_equipment_activities",
		SQL:  documentTable("master_equipment_activities"),
	},
	{
		Name: "create_index_master_equipment_activities_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_master_equipment_activities_status ON master_equipment_activities (status);`,
	},
}

// EnsureMigrated checks whether the document tables exist and creates them if they don't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log logrus.FieldLogger, dbHost string) error {
	start := time.Now()
	base := log.WithFields(logrus.Fields{
		"component": "database",
		"db_host":   dbHost,
	})

	base.WithFields(logrus.Fields{"event": "db_migration_check", "status": "starting"}).Info("checking schema")

	var exists bool
	query := "SELECT to_regclass($1) IS NOT NULL"
	if err := db.QueryRowContext(ctx, query, sentinelTable).Scan(&exists); err != nil {
		base.WithFields(logrus.Fields{
			"event":       "db_migration_failed",
			"status":      "error",
			"duration_ms": time.Since(start).Milliseconds(),
		}).WithError(err).Error("failed to check sentinel table")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		base.WithFields(logrus.Fields{
			"event":       "db_migration_skip",
			"status":      "success",
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("schema already exists, skipping migration")
		return nil
	}

	base.WithFields(logrus.Fields{"event": "db_migration_start", "status": "in_progress"}).Info("migrating schema")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			base.WithFields(logrus.Fields{
				"event":            "db_migration_failed",
				"status":           "error",
				"migration_step":   step.Name,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			}).WithError(err).Error("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		base.WithFields(logrus.Fields{
			"event":            "db_migration_step",
			"status":           "success",
			"migration_step":   step.Name,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		}).Info("migration step applied")
	}

	base.WithFields(logrus.Fields{
		"event":       "db_migration_success",
		"status":      "success",
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("schema migrated")

	return nil
}
