// Package athlete stores the people whose training is tracked. Every other record is owned by an athlete.
package athlete

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/myrjola/fitcoach/internal/sqlite"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

var (
	ErrNotFound    = errors.New("athlete not found")
	ErrInvalidName = errors.New("athlete name must be between 1 and 255 characters")
)

// Athlete is a person following a training plan.
type Athlete struct {
	ID        int
	Name      string
	CreatedAt time.Time
}

// Service manages athletes.
type Service struct {
	db     *sqlite.Database
	logger *slog.Logger
}

// NewService creates a new athlete service.
func NewService(db *sqlite.Database, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Create registers a new athlete.
func (s *Service) Create(ctx context.Context, name string) (Athlete, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 255 { //nolint:mnd // matches the column check.
		return Athlete{}, ErrInvalidName
	}
	var (
		a         Athlete
		createdAt string
	)
	err := s.db.ReadWrite.QueryRowContext(ctx,
		`INSERT INTO athletes (name) VALUES (?) RETURNING id, name, created_at`, name).
		Scan(&a.ID, &a.Name, &createdAt)
	if err != nil {
		return Athlete{}, fmt.Errorf("insert athlete: %w", err)
	}
	if a.CreatedAt, err = time.Parse(timestampFormat, createdAt); err != nil {
		return Athlete{}, fmt.Errorf("parse created_at: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "created athlete", slog.Int("athlete_id", a.ID))
	return a, nil
}

// Get returns the athlete with the given id.
func (s *Service) Get(ctx context.Context, id int) (Athlete, error) {
	var (
		a         Athlete
		createdAt string
	)
	err := s.db.ReadOnly.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM athletes WHERE id = ?`, id).Scan(&a.ID, &a.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Athlete{}, ErrNotFound
	}
	if err != nil {
		return Athlete{}, fmt.Errorf("query athlete %d: %w", id, err)
	}
	if a.CreatedAt, err = time.Parse(timestampFormat, createdAt); err != nil {
		return Athlete{}, fmt.Errorf("parse created_at: %w", err)
	}
	return a, nil
}

// List returns all athletes ordered by id.
func (s *Service) List(ctx context.Context) (_ []Athlete, err error) {
	rows, err := s.db.ReadOnly.QueryContext(ctx, `SELECT id, name, created_at FROM athletes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query athletes: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var athletes []Athlete
	for rows.Next() {
		var (
			a         Athlete
			createdAt string
		)
		if err = rows.Scan(&a.ID, &a.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan athlete: %w", err)
		}
		if a.CreatedAt, err = time.Parse(timestampFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		athletes = append(athletes, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return athletes, nil
}
