package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reservations/entities"
)

const showColumns = `
	show_id, name, show_date, show_time,
	total_children AS "children.total",
	available_children AS "children.available",
	non_confirmed_children AS "children.non_confirmed",
	total_adult AS "adult.total",
	available_adult AS "adult.available",
	non_confirmed_adult AS "adult.non_confirmed"`

// InventoryRepository keeps shows, price options and client records in
// Postgres. Every seat mutation is a single conditional UPDATE, so counters
// never leave their valid range even with several service replicas.
type InventoryRepository struct {
	db *DB
}

func NewInventoryRepository(db *DB) InventoryRepository {
	if db == nil {
		panic("db is nil")
	}

	return InventoryRepository{db: db}
}

func (r InventoryRepository) AddShow(ctx context.Context, show entities.Show) (int, error) {
	if !show.SeatsValid() {
		return 0, fmt.Errorf("%w: show %q has invalid seat counters", entities.ErrInvalidInputShape, show.Name)
	}

	var showID int
	err := r.db.Conn.QueryRowContext(
		ctx,
		`
		INSERT INTO shows (
			name, show_date, show_time,
			total_children, available_children, non_confirmed_children,
			total_adult, available_adult, non_confirmed_adult
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name, show_date, show_time) DO UPDATE SET name = EXCLUDED.name
		RETURNING show_id`,
		show.Name, show.Date, show.Time,
		show.Children.Total, show.Children.Available, show.Children.NonConfirmed,
		show.Adult.Total, show.Adult.Available, show.Adult.NonConfirmed,
	).Scan(&showID)
	if err != nil {
		return 0, fmt.Errorf("could not save show: %w", err)
	}

	return showID, nil
}

func (r InventoryRepository) ReadShow(ctx context.Context, showID int) (entities.Show, error) {
	var show entities.Show
	err := r.db.Conn.GetContext(ctx, &show, `SELECT `+showColumns+` FROM shows WHERE show_id = $1`, showID)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Show{}, fmt.Errorf("%w: %d", entities.ErrShowNotFound, showID)
	}
	if err != nil {
		return entities.Show{}, fmt.Errorf("could not get show: %w", err)
	}

	return show, nil
}

// ListShows returns shows dated on or after from, ordered by date and time.
func (r InventoryRepository) ListShows(ctx context.Context, from time.Time) ([]entities.Show, error) {
	var shows []entities.Show
	err := r.db.Conn.SelectContext(ctx, &shows, `
		SELECT `+showColumns+`
		FROM shows
		WHERE show_date >= $1
		ORDER BY show_date, show_time, show_id`,
		from.Format(entities.DateKeyLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("could not list shows: %w", err)
	}

	return shows, nil
}

func (r InventoryRepository) SavePriceOption(ctx context.Context, option entities.PriceOption) error {
	_, err := r.db.Conn.ExecContext(ctx, `
		INSERT INTO price_options (option_id, name, price, children_seats, adult_seats, individual)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (option_id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			children_seats = EXCLUDED.children_seats,
			adult_seats = EXCLUDED.adult_seats,
			individual = EXCLUDED.individual`,
		option.OptionID, option.Name, option.Price, option.Seats.Children, option.Seats.Adult, option.Individual,
	)
	if err != nil {
		return fmt.Errorf("could not save price option: %w", err)
	}

	return nil
}

func (r InventoryRepository) ListPriceOptions(ctx context.Context) ([]entities.PriceOption, error) {
	var options []entities.PriceOption
	err := r.db.Conn.SelectContext(ctx, &options, `
		SELECT
			option_id, name, price,
			children_seats AS "seats.children",
			adult_seats AS "seats.adult",
			individual
		FROM price_options
		ORDER BY option_id`)
	if err != nil {
		return nil, fmt.Errorf("could not list price options: %w", err)
	}

	return options, nil
}
