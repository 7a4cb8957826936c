package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/eventscout/eventscout/internal/scout"
)

// EventStore persists event listings in Postgres.
//
// Expected schema:
//
//	CREATE TABLE events (
//		id            UUID PRIMARY KEY,
//		title         TEXT NOT NULL,
//		description   TEXT NOT NULL DEFAULT '',
//		city          TEXT NOT NULL,
//		venue         TEXT NOT NULL DEFAULT '',
//		event_type    TEXT NOT NULL DEFAULT '',
//		price_tier    TEXT NOT NULL DEFAULT '',
//		starts_at     TIMESTAMPTZ NOT NULL,
//		source_url    TEXT NOT NULL UNIQUE,
//		platform      TEXT NOT NULL,
//		quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
//		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type EventStore struct {
	pool querier
}

// NewEventStore connects a pool and returns the store.
func NewEventStore(ctx context.Context, cfg Config) (*EventStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &EventStore{pool: pool}, nil
}

// NewEventStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewEventStoreWithPool(pool querier) (*EventStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &EventStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *EventStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const eventColumns = `id, title, description, city, venue, event_type, price_tier, starts_at, source_url, platform, quality_score, created_at`

// Search returns events matching the filters ordered by quality descending
// then start time ascending, capped at filters.Limit.
func (s *EventStore) Search(ctx context.Context, filters scout.SearchFilters) ([]scout.Event, error) {
	where, args := buildWhere(filters)
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query := fmt.Sprintf(
		"SELECT %s FROM events%s ORDER BY quality_score DESC, starts_at ASC LIMIT $%d",
		eventColumns, where, len(args),
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreErr("search events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// List returns one page of events plus the total matching count.
func (s *EventStore) List(ctx context.Context, filters scout.SearchFilters, page, limit int) ([]scout.Event, int, error) {
	if page < 1 {
		page = 1
	}
	where, args := buildWhere(filters)

	var total int
	countQuery := "SELECT COUNT(*) FROM events" + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, wrapStoreErr("count events", err)
	}

	offset := (page - 1) * limit
	pageArgs := append(args, limit, offset)
	query := fmt.Sprintf(
		"SELECT %s FROM events%s ORDER BY quality_score DESC, starts_at ASC LIMIT $%d OFFSET $%d",
		eventColumns, where, len(pageArgs)-1, len(pageArgs),
	)
	rows, err := s.pool.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, wrapStoreErr("list events", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Upsert inserts events, skipping rows that collide on source_url, and
// reports how many rows were new.
func (s *EventStore) Upsert(ctx context.Context, events []scout.Event) (int, error) {
	const insert = `
INSERT INTO events (` + eventColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (source_url) DO NOTHING`

	inserted := 0
	for _, e := range events {
		tag, err := s.pool.Exec(ctx, insert,
			e.ID,
			e.Title,
			e.Description,
			e.City,
			e.Venue,
			e.EventType,
			e.PriceTier,
			e.StartsAt,
			e.SourceURL,
			e.Platform,
			e.QualityScore,
			e.CreatedAt,
		)
		if err != nil {
			return inserted, wrapStoreErr("insert event", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ExistsByURL checks the dedup signal for a single source URL.
func (s *EventStore) ExistsByURL(ctx context.Context, sourceURL string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM events WHERE source_url = $1)", sourceURL,
	).Scan(&exists)
	if err != nil {
		return false, wrapStoreErr("exists by url", err)
	}
	return exists, nil
}

func buildWhere(f scout.SearchFilters) (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Query != "" {
		p := arg("%" + f.Query + "%")
		conds = append(conds, fmt.Sprintf("(title ILIKE %s OR description ILIKE %s)", p, p))
	}
	if f.City != "" {
		conds = append(conds, "LOWER(city) = LOWER("+arg(f.City)+")")
	}
	if f.EventType != "" {
		conds = append(conds, "LOWER(event_type) = LOWER("+arg(f.EventType)+")")
	}
	if f.PriceTier != "" {
		conds = append(conds, "LOWER(price_tier) = LOWER("+arg(f.PriceTier)+")")
	}
	if f.DateFrom != nil {
		conds = append(conds, "starts_at >= "+arg(*f.DateFrom))
	}
	if f.DateTo != nil {
		conds = append(conds, "starts_at < "+arg(*f.DateTo))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEvents(rows rowScanner) ([]scout.Event, error) {
	events := []scout.Event{}
	for rows.Next() {
		var e scout.Event
		if err := rows.Scan(
			&e.ID,
			&e.Title,
			&e.Description,
			&e.City,
			&e.Venue,
			&e.EventType,
			&e.PriceTier,
			&e.StartsAt,
			&e.SourceURL,
			&e.Platform,
			&e.QualityScore,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("iterate events", err)
	}
	return events, nil
}
