package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
)

const athletesTable = "athletes"

// ErrNoAthletesTable is returned when exporting from a database without the athletes table.
var ErrNoAthletesTable = errors.New("athletes table does not exist")

// ExportAthlete copies everything recorded for one athlete into a standalone SQLite file under dir and returns its
// path.
//
// Exported tables are the athletes table itself and every table with a foreign key to athletes(id). The file keeps
// the original table definitions so it can be opened with any SQLite client.
func (db *Database) ExportAthlete(ctx context.Context, athleteID int, dir string) (_ string, err error) {
	exportPath := filepath.Join(dir, fmt.Sprintf("athlete-%d.sqlite3", athleteID))

	conn, err := db.ReadOnly.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("get connection: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close connection: %w", closeErr)
		}
	}()

	// The read-only pool has query_only set, the export database needs writes. Foreign keys are disabled so that
	// tables may be filled in any order.
	if err = setExportPragmas(ctx, conn, "FALSE", "OFF"); err != nil {
		return "", err
	}
	defer func() {
		if restoreErr := setExportPragmas(context.WithoutCancel(ctx), conn, "TRUE", "ON"); restoreErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to restore pragmas", slog.Any("error", restoreErr))
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer db.rollback(ctx, tx)()

	if _, err = tx.ExecContext(ctx, "ATTACH DATABASE ? AS export", "file:"+exportPath+"?mode=rwc"); err != nil {
		return "", fmt.Errorf("attach export database: %w", err)
	}

	tables, err := athleteTables(ctx, tx)
	if err != nil {
		return "", err
	}
	for _, table := range tables {
		if err = exportTable(ctx, tx, table, athleteID); err != nil {
			return "", fmt.Errorf("export %s: %w", table.name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit export: %w", err)
	}

	db.logger.LogAttrs(ctx, slog.LevelInfo, "exported athlete",
		slog.Int("athlete_id", athleteID), slog.String("path", exportPath), slog.Int("tables", len(tables)))
	return exportPath, nil
}

func setExportPragmas(ctx context.Context, conn *sql.Conn, queryOnly string, foreignKeys string) error {
	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = "+queryOnly); err != nil {
		return fmt.Errorf("set query_only %s: %w", queryOnly, err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = "+foreignKeys); err != nil {
		return fmt.Errorf("set foreign_keys %s: %w", foreignKeys, err)
	}
	return nil
}

// athleteTable is a table owned by an athlete and the column holding the athlete id.
type athleteTable struct {
	name      string
	createSQL string
	column    string
}

// athleteTables lists the athletes table first followed by the tables referencing it, sorted by name.
func athleteTables(ctx context.Context, tx *sql.Tx) ([]athleteTable, error) {
	rows, err := tx.QueryContext(ctx, `SELECT s.name, s.sql, fk."from"
FROM sqlite_schema AS s
         JOIN PRAGMA_FOREIGN_KEY_LIST(s.name) AS fk
WHERE s.type = 'table'
  AND fk."table" = :athletes
  AND fk."to" = 'id'
UNION ALL
SELECT name, sql, 'id'
FROM sqlite_schema
WHERE type = 'table' AND name = :athletes`, sql.Named("athletes", athletesTable))
	if err != nil {
		return nil, fmt.Errorf("query athlete tables: %w", err)
	}
	defer rows.Close()

	var tables []athleteTable
	for rows.Next() {
		var t athleteTable
		if err = rows.Scan(&t.name, &t.createSQL, &t.column); err != nil {
			return nil, fmt.Errorf("scan athlete table: %w", err)
		}
		tables = append(tables, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate athlete tables: %w", err)
	}
	if !slices.ContainsFunc(tables, func(t athleteTable) bool { return t.name == athletesTable }) {
		return nil, ErrNoAthletesTable
	}

	slices.SortFunc(tables, func(a, b athleteTable) int {
		switch {
		case a.name == athletesTable:
			return -1
		case b.name == athletesTable:
			return 1
		case a.name < b.name:
			return -1
		case a.name > b.name:
			return 1
		default:
			return 0
		}
	})
	return tables, nil
}

func exportTable(ctx context.Context, tx *sql.Tx, table athleteTable, athleteID int) error {
	// Renamed tables carry a quoted name in sqlite_schema so the definition is cut at the column list.
	columns := strings.Index(table.createSQL, "(")
	if columns < 0 {
		return fmt.Errorf("unexpected table definition: %s", table.createSQL)
	}
	createSQL := "CREATE TABLE export." + table.name + " " + table.createSQL[columns:]
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	//nolint:gosec // table and column names come from sqlite_schema.
	copySQL := fmt.Sprintf("INSERT INTO export.%[1]s SELECT * FROM main.%[1]s WHERE %[2]s = ?", table.name, table.column)
	if _, err := tx.ExecContext(ctx, copySQL, athleteID); err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}
	return nil
}
