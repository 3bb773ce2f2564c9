package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

// Directory привязка сотрудников к точкам продаж в таблице worker_locations.
type Directory struct {
	db *sql.DB
}

// NewDirectory создаёт справочник точек поверх PostgreSQL.
func NewDirectory(store *Store) *Directory {
	return &Directory{db: store.DB()}
}

// Assign привязывает сотрудника к точке, перезаписывая прежнюю привязку.
func (d *Directory) Assign(ctx context.Context, userID string, location domain.Location) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO worker_locations (user_id, location_id, location_name, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id) DO UPDATE
		SET location_id = EXCLUDED.location_id,
		    location_name = EXCLUDED.location_name,
		    updated_at = EXCLUDED.updated_at
	`, userID, location.ID, location.Name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign location to %s: %w", userID, err)
	}
	return nil
}

// LocationOf возвращает точку сотрудника или domain.ErrLocationNotAssigned.
func (d *Directory) LocationOf(ctx context.Context, userID string) (domain.Location, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var location domain.Location
	err := d.db.QueryRowContext(ctx, `
		SELECT location_id, location_name FROM worker_locations WHERE user_id = $1
	`, userID).Scan(&location.ID, &location.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Location{}, fmt.Errorf("user %s: %w", userID, domain.ErrLocationNotAssigned)
		}
		return domain.Location{}, fmt.Errorf("select location of %s: %w", userID, err)
	}
	return location, nil
}

var _ domain.LocationDirectory = (*Directory)(nil)
