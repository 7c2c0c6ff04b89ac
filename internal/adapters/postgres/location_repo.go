package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/ports"
	"github.com/samirrijal/shoptrip/internal/pkg/telemetry"
)

const locationColumns = `id, name, lat, lng, category, categories,
	COALESCE(attributes, '{}'::jsonb), COALESCE(address, ''), COALESCE(phone, ''), COALESCE(website, '')`

// LocationRepo implements ports.LocationRepository with pgx.
type LocationRepo struct {
	db *DB
}

// NewLocationRepo creates a new LocationRepo.
func NewLocationRepo(db *DB) *LocationRepo {
	return &LocationRepo{db: db}
}

var _ ports.LocationRepository = (*LocationRepo)(nil)

// LoadLocations returns the whole catalog ordered by id.
func (r *LocationRepo) LoadLocations(ctx context.Context) ([]domain.Location, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanCatalogLoad)
	defer span.End()

	rows, err := r.db.Pool.Query(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY id`)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	var out []domain.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, l)
	}
	span.SetAttributes(attribute.Int(telemetry.AttrCatalogCount, len(out)))
	return out, rows.Err()
}

// GetByID returns a location, or ports.ErrNotFound.
func (r *LocationRepo) GetByID(ctx context.Context, id string) (*domain.Location, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id)
	l, err := scanLocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// UpsertBatch inserts or updates many locations using pgx.Batch.
func (r *LocationRepo) UpsertBatch(ctx context.Context, locs []domain.Location) error {
	batch := &pgx.Batch{}
	for _, l := range locs {
		attrs := l.Attributes
		if attrs == nil {
			attrs = map[string]bool{}
		}
		cats := l.Categories
		if cats == nil {
			cats = []string{}
		}
		batch.Queue(`
			INSERT INTO locations (id, name, lat, lng, category, categories, attributes, address, phone, website, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), now())
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, lat = EXCLUDED.lat, lng = EXCLUDED.lng,
			    category = EXCLUDED.category, categories = EXCLUDED.categories,
			    attributes = EXCLUDED.attributes, address = EXCLUDED.address,
			    phone = EXCLUDED.phone, website = EXCLUDED.website,
			    updated_at = now()
		`, l.ID, l.Name, l.Lat, l.Lng, l.Category, cats, attrs, l.Address, l.Phone, l.Website)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, l := range locs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert location %s: %w", l.ID, err)
		}
	}
	return nil
}

func scanLocation(row pgx.Row) (domain.Location, error) {
	var l domain.Location
	err := row.Scan(
		&l.ID, &l.Name, &l.Lat, &l.Lng, &l.Category, &l.Categories,
		&l.Attributes, &l.Address, &l.Phone, &l.Website,
	)
	return l, err
}
