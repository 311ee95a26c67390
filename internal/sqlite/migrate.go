package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"
)

// migrateTo makes the live schema match schemaDefinition.
//
// The migration is declarative. The target schema is created in an attached in-memory database and compared with the
// live one through sqlite_schema:
//
//  1. tables missing from the target are dropped,
//  2. tables missing from the live database are created,
//  3. tables whose definition differs are rebuilt with the generic ALTER TABLE procedure from
//     https://www.sqlite.org/lang_altertable.html#otheralter, and
//  4. triggers and indexes are synchronised last.
//
// See https://david.rothlis.net/declarative-schema-migration-for-sqlite/ for the original idea.
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) error {
	start := time.Now()

	detach, err := db.attachTarget(ctx, schemaDefinition)
	if err != nil {
		return fmt.Errorf("attach target schema: %w", err)
	}
	defer detach()

	// Foreign keys must be off while tables are rebuilt, otherwise dropping a parent cascades.
	if _, err = db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer db.enableForeignKeys(ctx)

	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		m := migration{tx: tx, logger: db.logger}
		if err = m.tables(ctx); err != nil {
			return fmt.Errorf("migrate tables: %w", err)
		}
		for _, typ := range []schemaType{schemaTypeTrigger, schemaTypeIndex} {
			if err = m.entities(ctx, typ); err != nil {
				return fmt.Errorf("migrate %s: %w", typ, err)
			}
		}
		if _, err = tx.ExecContext(ctx, "PRAGMA foreign_key_check"); err != nil {
			return fmt.Errorf("foreign key check: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.LogAttrs(ctx, slog.LevelInfo, "migrated database", slog.Duration("duration", time.Since(start)))
	return nil
}

// enableForeignKeys turns foreign key enforcement back on. Running without it would risk silent data corruption so
// the process is stopped when this fails.
func (db *Database) enableForeignKeys(ctx context.Context) {
	if _, err := db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.logger.LogAttrs(ctx, slog.LevelError, "exit to avoid data corruption",
			slog.Any("error", fmt.Errorf("enable foreign keys: %w", err)))
		if err = syscall.Kill(syscall.Getpid(), syscall.SIGINT); err != nil {
			os.Exit(1)
		}
	}
}

// attachTarget creates the target schema in a fresh in-memory database and attaches it as schemaTarget.
// The returned function detaches it.
func (db *Database) attachTarget(ctx context.Context, schemaDefinition string) (func(), error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", rand.Text())
	target, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open target database: %w", err)
	}
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close target database", slog.Any("error", closeErr))
		}
	}()
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return nil, fmt.Errorf("create target schema: %w", err)
	}
	if _, err = db.ReadWrite.ExecContext(ctx, "ATTACH DATABASE ? AS schemaTarget", dsn); err != nil {
		return nil, fmt.Errorf("attach target database: %w", err)
	}
	return func() {
		if _, detachErr := db.ReadWrite.ExecContext(ctx, "DETACH DATABASE schemaTarget"); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to detach target database", slog.Any("error", detachErr))
		}
	}, nil
}

// rollback returns a function that rolls back tx unless it has already been committed.
func (db *Database) rollback(ctx context.Context, tx *sql.Tx) func() {
	return func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback transaction",
				slog.Any("error", fmt.Errorf("rollback: %w", err)))
		}
	}
}

type schemaType string

const (
	schemaTypeTable   schemaType = "table"
	schemaTypeTrigger schemaType = "trigger"
	schemaTypeIndex   schemaType = "index"
)

// internalNames filters out SQLite and Litestream bookkeeping objects.
const internalNames = `%[1]s.name NOT LIKE 'sqlite_%%' AND %[1]s.name NOT LIKE '_litestream_%%'`

// migration runs the diff queries inside one transaction.
type migration struct {
	tx     *sql.Tx
	logger *slog.Logger
}

type schemaEntry struct {
	name    string
	liveSQL string
	newSQL  string
}

// removed lists entities of typ present in the live schema only.
func (m migration) removed(ctx context.Context, typ schemaType) ([]string, error) {
	return m.strings(ctx, `SELECT live.name
FROM sqlite_schema AS live
         LEFT JOIN schemaTarget.sqlite_schema AS target ON live.name = target.name AND live.type = target.type
WHERE live.type = ? AND target.type IS NULL AND `+fmt.Sprintf(internalNames, "live"), string(typ))
}

// added lists the creation statements of entities of typ present in the target schema only.
func (m migration) added(ctx context.Context, typ schemaType) ([]string, error) {
	return m.strings(ctx, `SELECT target.sql
FROM schemaTarget.sqlite_schema AS target
         LEFT JOIN sqlite_schema AS live ON live.name = target.name AND live.type = target.type
WHERE target.type = ? AND live.type IS NULL AND target.sql IS NOT NULL AND `+fmt.Sprintf(internalNames, "target"),
		string(typ))
}

// changed lists entities of typ whose definition differs. Renaming a table quotes its name in sqlite_schema so
// quotes are ignored in the comparison.
func (m migration) changed(ctx context.Context, typ schemaType) ([]schemaEntry, error) {
	rows, err := m.tx.QueryContext(ctx, `SELECT live.name, live.sql, target.sql
FROM sqlite_schema AS live
         JOIN schemaTarget.sqlite_schema AS target ON live.name = target.name AND live.type = target.type
WHERE live.type = ? AND REPLACE(live.sql, '"', '') <> REPLACE(target.sql, '"', '') AND `+
		fmt.Sprintf(internalNames, "live"), string(typ))
	if err != nil {
		return nil, fmt.Errorf("query changed: %w", err)
	}
	defer m.closeRows(ctx, rows)
	var entries []schemaEntry
	for rows.Next() {
		var e schemaEntry
		if err = rows.Scan(&e.name, &e.liveSQL, &e.newSQL); err != nil {
			return nil, fmt.Errorf("scan changed: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}

func (m migration) exec(ctx context.Context, msg string, query string) error {
	m.logger.LogAttrs(ctx, slog.LevelInfo, msg, slog.String("query", query))
	if _, err := m.tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return nil
}

// tables drops, creates, and rebuilds tables.
func (m migration) tables(ctx context.Context) error {
	removed, err := m.removed(ctx, schemaTypeTable)
	if err != nil {
		return fmt.Errorf("query removed tables: %w", err)
	}
	for _, name := range removed {
		if err = m.exec(ctx, "drop table", "DROP TABLE "+name); err != nil {
			return err
		}
	}

	added, err := m.added(ctx, schemaTypeTable)
	if err != nil {
		return fmt.Errorf("query added tables: %w", err)
	}
	for _, query := range added {
		if err = m.exec(ctx, "create table", query); err != nil {
			return err
		}
	}

	changed, err := m.changed(ctx, schemaTypeTable)
	if err != nil {
		return fmt.Errorf("query changed tables: %w", err)
	}
	for _, table := range changed {
		if err = m.rebuild(ctx, table); err != nil {
			return fmt.Errorf("rebuild %s: %w", table.name, err)
		}
	}
	return nil
}

// rebuild creates the new definition under a temporary name, copies the shared columns, and swaps the tables.
func (m migration) rebuild(ctx context.Context, table schemaEntry) error {
	m.logger.LogAttrs(ctx, slog.LevelInfo, "rebuilding table",
		slog.String("table", table.name),
		slog.String("live_sql", table.liveSQL),
		slog.String("new_sql", table.newSQL))

	temp := table.name + "_migration_temp"
	if err := m.exec(ctx, "create temporary table", strings.Replace(table.newSQL, table.name, temp, 1)); err != nil {
		return err
	}

	// Quoted so that columns named after SQLite keywords survive.
	columns, err := m.strings(ctx, `SELECT '"' || target.name || '"'
FROM PRAGMA_TABLE_INFO(:table_name) AS live
         JOIN PRAGMA_TABLE_INFO(:table_name, 'schemaTarget') AS target ON target.name = live.name`,
		sql.Named("table_name", table.name))
	if err != nil {
		return fmt.Errorf("query shared columns: %w", err)
	}
	shared := strings.Join(columns, ", ")

	steps := []struct{ msg, query string }{
		{"copy rows", fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", temp, shared, shared, table.name)},
		{"drop old table", "DROP TABLE " + table.name},
		{"rename table", fmt.Sprintf("ALTER TABLE %s RENAME TO %s", temp, table.name)},
	}
	for _, step := range steps {
		if err = m.exec(ctx, step.msg, step.query); err != nil {
			return err
		}
	}
	return nil
}

// entities synchronises triggers or indexes. Changed entities are dropped and recreated.
func (m migration) entities(ctx context.Context, typ schemaType) error {
	keyword := strings.ToUpper(string(typ))

	removed, err := m.removed(ctx, typ)
	if err != nil {
		return fmt.Errorf("query removed: %w", err)
	}
	for _, name := range removed {
		if err = m.exec(ctx, "drop "+string(typ), fmt.Sprintf("DROP %s %s", keyword, name)); err != nil {
			return err
		}
	}

	added, err := m.added(ctx, typ)
	if err != nil {
		return fmt.Errorf("query added: %w", err)
	}
	for _, query := range added {
		if err = m.exec(ctx, "create "+string(typ), query); err != nil {
			return err
		}
	}

	changed, err := m.changed(ctx, typ)
	if err != nil {
		return fmt.Errorf("query changed: %w", err)
	}
	for _, entry := range changed {
		if err = m.exec(ctx, "drop changed "+string(typ), fmt.Sprintf("DROP %s %s", keyword, entry.name)); err != nil {
			return err
		}
		if err = m.exec(ctx, "recreate "+string(typ), entry.newSQL); err != nil {
			return err
		}
	}
	return nil
}

// strings runs a query returning a single text column.
func (m migration) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := m.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer m.closeRows(ctx, rows)
	var out []string
	for rows.Next() {
		var s string
		if err = rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (m migration) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelError, "could not close rows", slog.Any("error", err))
	}
}
