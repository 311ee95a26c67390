package sqlite

import (
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/fitcoach/internal/testhelpers"
)

func TestDatabase_ExportAthlete(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		athleteID  int
		schema     string
		rows       []string
		wantCounts map[string]int
		wantErr    error
	}{
		{
			name:      "only the athlete's rows",
			athleteID: 1,
			schema: `
				CREATE TABLE athletes (id INTEGER PRIMARY KEY, name TEXT);
				CREATE TABLE metrics (id INTEGER PRIMARY KEY, athlete_id INTEGER REFERENCES athletes (id), value REAL);`,
			rows: []string{
				"INSERT INTO athletes (id, name) VALUES (1, 'Ada'), (2, 'Grace')",
				"INSERT INTO metrics (athlete_id, value) VALUES (1, 10), (1, 11), (2, 12)",
			},
			wantCounts: map[string]int{"athletes": 1, "metrics": 2},
			wantErr:    nil,
		},
		{
			name:      "unknown athlete exports empty tables",
			athleteID: 999,
			schema: `
				CREATE TABLE athletes (id INTEGER PRIMARY KEY, name TEXT);
				CREATE TABLE goals (id INTEGER PRIMARY KEY, athlete_id INTEGER REFERENCES athletes (id));`,
			rows: []string{
				"INSERT INTO athletes (id, name) VALUES (1, 'Ada')",
				"INSERT INTO goals (athlete_id) VALUES (1)",
			},
			wantCounts: map[string]int{"athletes": 0, "goals": 0},
			wantErr:    nil,
		},
		{
			name:      "unrelated tables are skipped",
			athleteID: 1,
			schema: `
				CREATE TABLE athletes (id INTEGER PRIMARY KEY, name TEXT);
				CREATE TABLE sessions (token TEXT PRIMARY KEY, data BLOB);`,
			rows: []string{
				"INSERT INTO athletes (id, name) VALUES (1, 'Ada')",
				"INSERT INTO sessions (token, data) VALUES ('t', x'00')",
			},
			wantCounts: map[string]int{"athletes": 1},
			wantErr:    nil,
		},
		{
			name:       "no athletes table",
			athleteID:  1,
			schema:     "CREATE TABLE metrics (id INTEGER PRIMARY KEY, athlete_id INTEGER)",
			rows:       nil,
			wantCounts: nil,
			wantErr:    ErrNoAthletesTable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := t.Context()
			logger := testhelpers.NewLogger(testhelpers.NewWriter(t))

			db, err := connect(ctx, ":memory:", logger)
			if err != nil {
				t.Fatalf("Failed to connect to database: %v", err)
			}
			t.Cleanup(func() {
				if err = db.Close(); err != nil {
					t.Errorf("Failed to close database: %v", err)
				}
			})
			if _, err = db.ReadWrite.ExecContext(ctx, tt.schema); err != nil {
				t.Fatalf("Failed to create schema: %v", err)
			}
			for _, row := range tt.rows {
				if _, err = db.ReadWrite.ExecContext(ctx, row); err != nil {
					t.Fatalf("Failed to insert %q: %v", row, err)
				}
			}

			path, err := db.ExportAthlete(ctx, tt.athleteID, t.TempDir())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ExportAthlete() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if _, err = os.Stat(path); err != nil {
				t.Fatalf("Exported file missing: %v", err)
			}

			exported, err := sql.Open("sqlite3", path)
			if err != nil {
				t.Fatalf("Failed to open export: %v", err)
			}
			t.Cleanup(func() { _ = exported.Close() })

			rows, err := exported.QueryContext(ctx, "SELECT name FROM sqlite_schema WHERE type = 'table'")
			if err != nil {
				t.Fatalf("Failed to list tables: %v", err)
			}
			got := map[string]int{}
			var names []string
			for rows.Next() {
				var name string
				if err = rows.Scan(&name); err != nil {
					t.Fatalf("Failed to scan: %v", err)
				}
				names = append(names, name)
			}
			_ = rows.Close()
			for _, name := range names {
				var n int
				if err = exported.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
					t.Fatalf("Failed to count %s: %v", name, err)
				}
				got[name] = n
			}
			if diff := cmp.Diff(tt.wantCounts, got); diff != "" {
				t.Errorf("exported row counts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
