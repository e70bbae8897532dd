package ledger

import (
	"database/sql"
	"embed"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

type DBDriver string

const (
	DBSQLite   DBDriver = "sqlite"
	DBPostgres DBDriver = "postgres"
)

// ParseDriver maps a configured driver name onto a DBDriver
func ParseDriver(name string) (DBDriver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "postgres", "postgresql", "pq":
		return DBPostgres, nil
	case "sqlite", "sqlite3":
		return DBSQLite, nil
	default:
		return "", fmt.Errorf("unsupported db driver: %s", name)
	}
}

// Migrate applies the embedded migrations in file order. Each file runs in
// its own transaction together with its row in schema_migrations.
func Migrate(db *sql.DB, driver DBDriver) error {
	if db == nil {
		return fmt.Errorf("missing db")
	}
	dir, err := migrationDir(driver)
	if err != nil {
		return err
	}
	if err := ensureMigrationsTable(db, driver); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	files, err := listMigrationFiles(dir)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, file := range files {
		version := strings.TrimSuffix(path.Base(file), ".sql")
		contents, err := migrationsFS.ReadFile(file)
		if err != nil {
			return err
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}

		applied, err := tryInsertMigration(tx, driver, version, now)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if !applied {
			_ = tx.Rollback()
			continue
		}

		if _, err := tx.Exec(string(contents)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		log.Printf("Applied migration %s (%s)", version, driver)
	}

	return nil
}

func migrationDir(driver DBDriver) (string, error) {
	switch driver {
	case DBSQLite:
		return "migrations/sqlite", nil
	case DBPostgres:
		return "migrations/postgres", nil
	default:
		return "", fmt.Errorf("unsupported db driver: %s", driver)
	}
}

func ensureMigrationsTable(db *sql.DB, driver DBDriver) error {
	appliedType := "TIMESTAMPTZ"
	if driver == DBSQLite {
		appliedType = "TEXT"
	}
	_, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS schema_migrations (
  version TEXT PRIMARY KEY,
  applied_at %s NOT NULL
)`, appliedType))
	return err
}

func tryInsertMigration(tx *sql.Tx, driver DBDriver, version string, now time.Time) (bool, error) {
	var (
		res sql.Result
		err error
	)
	switch driver {
	case DBSQLite:
		res, err = tx.Exec(`INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?) ON CONFLICT(version) DO NOTHING`, version, now.Format(time.RFC3339))
	case DBPostgres:
		res, err = tx.Exec(`INSERT INTO schema_migrations(version, applied_at) VALUES($1, $2) ON CONFLICT(version) DO NOTHING`, version, now)
	default:
		return false, fmt.Errorf("unsupported db driver: %s", driver)
	}
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func listMigrationFiles(dir string) ([]string, error) {
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, path.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
