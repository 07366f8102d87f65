package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fleet-signage/internal/fleet"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Store is a read-only view of the waypoint and bus tables.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) ActiveWaypoints(ctx context.Context, busKey string) ([]fleet.Waypoint, error) {
	return FetchActiveWaypoints(ctx, s.db, busKey)
}

func (s *Store) Bus(ctx context.Context, busKey string) (*fleet.Bus, error) {
	return FetchBus(ctx, s.db, busKey)
}

// FetchActiveWaypoints returns the active midpoints of a bus ordered by
// order_index. busKey matches either the bus id or its bus number.
func FetchActiveWaypoints(ctx context.Context, db *sql.DB, busKey string) ([]fleet.Waypoint, error) {
	busKey = strings.TrimSpace(busKey)
	if busKey == "" {
		return nil, nil
	}
	q := `
SELECT m.id::text,
       COALESCE(m.name, ''),
       m.lat,
       m.lng,
       COALESCE(m.radius_m, 0),
       COALESCE(m.order_index, 0)
FROM midpoints m
JOIN buses b ON b.id = m.bus_id
WHERE (b.id::text = $1 OR b.bus_number = $1)
  AND m.active = true
  AND m.lat IS NOT NULL AND m.lng IS NOT NULL
ORDER BY m.order_index ASC, m.id ASC`

	rows, err := db.QueryContext(ctx, q, busKey)
	if err != nil {
		return nil, fmt.Errorf("query midpoints: %w", err)
	}
	defer rows.Close()

	var wps []fleet.Waypoint
	for rows.Next() {
		w := fleet.Waypoint{Active: true}
		if err := rows.Scan(&w.ID, &w.Name, &w.Lat, &w.Lng, &w.RadiusMeters, &w.OrderIndex); err != nil {
			return nil, err
		}
		wps = append(wps, w)
	}
	return wps, rows.Err()
}

// FetchBus returns the bus record with its optional route endpoints, or nil
// when no bus matches.
func FetchBus(ctx context.Context, db *sql.DB, busKey string) (*fleet.Bus, error) {
	busKey = strings.TrimSpace(busKey)
	if busKey == "" {
		return nil, nil
	}
	q := `
SELECT id::text,
       COALESCE(bus_number, ''),
       COALESCE(start_name, ''), start_lat, start_lng,
       COALESCE(end_name, ''), end_lat, end_lng
FROM buses
WHERE id::text = $1 OR bus_number = $1
LIMIT 1`

	var (
		b          fleet.Bus
		sLat, sLng sql.NullFloat64
		eLat, eLng sql.NullFloat64
	)
	err := db.QueryRowContext(ctx, q, busKey).Scan(&b.ID, &b.BusNumber, &b.StartName, &sLat, &sLng, &b.EndName, &eLat, &eLng)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query bus: %w", err)
	}
	b.StartLat = nullFloat(sLat)
	b.StartLng = nullFloat(sLng)
	b.EndLat = nullFloat(eLat)
	b.EndLng = nullFloat(eLng)
	return &b, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
