package db

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
)

// ErrMigrateUsage is returned for a missing or unknown migrate action.
var ErrMigrateUsage = errors.New("invalid migrate usage")

// RunMigrateCommand handles `sidescan migrate <action>` against dbPath using
// the embedded migrations.
func RunMigrateCommand(w io.Writer, args []string, dbPath string) error {
	return runMigrate(w, args, dbPath, MigrationsFS())
}

func runMigrate(w io.Writer, args []string, dbPath string, migrationsFS fs.FS) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return ErrMigrateUsage
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(w)
		return nil
	}
	if dbPath == "" {
		return fmt.Errorf("%w: --db-uri is required", ErrMigrateUsage)
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(w, "All migrations applied")
		return printVersion(w, database, migrationsFS)

	case "down":
		if err := database.MigrateDown(migrationsFS); err != nil {
			return err
		}
		fmt.Fprintln(w, "Rolled back one migration")
		return printVersion(w, database, migrationsFS)

	case "status":
		return printStatus(w, database, migrationsFS)

	case "version", "force":
		if len(args) < 2 {
			return fmt.Errorf("%w: sidescan migrate %s <version_number>", ErrMigrateUsage, action)
		}
		v, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("%w: invalid version number %q", ErrMigrateUsage, args[1])
		}
		if action == "force" {
			if err := database.MigrateForce(migrationsFS, int(v)); err != nil {
				return err
			}
		} else if err := database.MigrateTo(migrationsFS, uint(v)); err != nil {
			return err
		}
		return printVersion(w, database, migrationsFS)

	default:
		fmt.Fprintf(w, "Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp(w)
		return ErrMigrateUsage
	}
}

func printVersion(w io.Writer, database *DB, migrationsFS fs.FS) error {
	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

func printStatus(w io.Writer, database *DB, migrationsFS fs.FS) error {
	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion(migrationsFS)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "=== Migration Status ===")
	fmt.Fprintf(w, "Current version: %d\n", version)
	fmt.Fprintf(w, "Latest version: %d\n", latest)
	fmt.Fprintf(w, "Dirty: %v\n", dirty)
	if dirty {
		fmt.Fprintln(w, "\nWARNING: a migration failed mid-execution.")
		fmt.Fprintln(w, "Inspect the database, then run: sidescan migrate force <version>")
	} else if version < latest {
		fmt.Fprintf(w, "Outstanding migrations: %d\n", latest-version)
	}
	return nil
}

// PrintMigrateHelp writes the migrate subcommand usage.
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: sidescan migrate <action> --db-uri <path>

Actions:
  up           Apply all pending migrations
  down         Roll back the most recent migration
  status       Show current and latest schema versions
  version N    Migrate up or down to version N
  force N      Record version N without running migrations (recovery only)
  help         Show this message
`)
}
