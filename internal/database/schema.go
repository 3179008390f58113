package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// schema is applied in order and every statement is idempotent. The id
// column is a sequence so concurrent discovery batches never compute ids
// themselves; place_id is the natural key every upsert conflicts on.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE TABLE IF NOT EXISTS providers (
		id                     BIGSERIAL PRIMARY KEY,
		place_id               TEXT NOT NULL,
		name                   TEXT NOT NULL DEFAULT '',
		description            TEXT NOT NULL DEFAULT '',
		address                TEXT NOT NULL,
		service_type           TEXT NOT NULL DEFAULT 'mechanics',
		services               TEXT[] NOT NULL DEFAULT '{}',
		city                   TEXT NOT NULL DEFAULT '',
		lat                    DOUBLE PRECISION NOT NULL,
		lng                    DOUBLE PRECISION NOT NULL,
		geom                   GEOGRAPHY(Point, 4326)
		                       GENERATED ALWAYS AS (ST_SetSRID(ST_MakePoint(lng, lat), 4326)::geography) STORED,
		radius                 DOUBLE PRECISION NOT NULL DEFAULT 50,
		type                   TEXT NOT NULL DEFAULT 'specialized',
		pricing                TEXT NOT NULL DEFAULT 'mid-range',
		rating                 DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (rating >= 0 AND rating <= 5),
		review_count           INTEGER NOT NULL DEFAULT 0 CHECK (review_count >= 0),
		availability           TEXT NOT NULL DEFAULT 'business hours',
		specializations        TEXT[] NOT NULL DEFAULT '{}',
		certifications         TEXT[] NOT NULL DEFAULT '{}',
		website                TEXT,
		verified               BOOLEAN NOT NULL DEFAULT FALSE,
		license_hash           TEXT NOT NULL DEFAULT '',
		claimed_by             TEXT,
		claimed_at             TIMESTAMPTZ,
		subscription_tier      TEXT NOT NULL DEFAULT 'none',
		pending_tier           TEXT,
		subscription_status    TEXT,
		stripe_customer_id     TEXT,
		stripe_subscription_id TEXT,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS providers_place_id_key ON providers (place_id)`,
	`CREATE INDEX IF NOT EXISTS providers_geom_idx ON providers USING GIST (geom)`,
	`CREATE INDEX IF NOT EXISTS providers_service_type_idx ON providers (service_type)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS providers_stripe_subscription_id_key
		ON providers (stripe_subscription_id) WHERE stripe_subscription_id IS NOT NULL`,
}

// EnsureSchema creates the provider tables and indexes when missing.
// The users table belongs to the identity service and is not touched here.
func EnsureSchema(ctx context.Context, db bun.IDB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
