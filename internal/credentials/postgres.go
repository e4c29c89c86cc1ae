// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the Postgres provider uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresProvider reads app secrets from the app_credentials table.
type PostgresProvider struct {
	db DB
}

// NewPostgresProvider creates a provider backed by the given pool.
// It ensures the app_credentials table exists on creation.
func NewPostgresProvider(ctx context.Context, db DB) (*PostgresProvider, error) {
	p := &PostgresProvider{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure credential schema: %w", err)
	}
	slog.Info("postgres credential provider initialised")
	return p, nil
}

func (p *PostgresProvider) ensureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS app_credentials (
			app_id      TEXT PRIMARY KEY,
			secret      TEXT NOT NULL,
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at  TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// GetSecret looks up the secret for appID.
func (p *PostgresProvider) GetSecret(ctx context.Context, appID string) (string, error) {
	var secret string
	err := p.db.QueryRow(ctx, `
		SELECT secret FROM app_credentials WHERE app_id = $1
	`, appID).Scan(&secret)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrUnknownApp, appID)
	}
	if err != nil {
		return "", fmt.Errorf("query app credential: %w", err)
	}
	return secret, nil
}

// Upsert inserts or replaces the secret for appID. Already-cached
// credentials are not affected; the cache never evicts.
func (p *PostgresProvider) Upsert(ctx context.Context, appID, secret string) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO app_credentials (app_id, secret)
		VALUES ($1, $2)
		ON CONFLICT (app_id) DO UPDATE SET
			secret     = EXCLUDED.secret,
			updated_at = NOW()
	`, appID, secret)
	return err
}

// Seed upserts every app in apps, in app id order. Startup uses it to load
// configured apps into the table.
func (p *PostgresProvider) Seed(ctx context.Context, apps map[string]string) error {
	for _, appID := range slices.Sorted(maps.Keys(apps)) {
		if err := p.Upsert(ctx, appID, apps[appID]); err != nil {
			return fmt.Errorf("seed app credential %s: %w", appID, err)
		}
	}
	if len(apps) > 0 {
		slog.Info("seeded app credentials", "count", len(apps))
	}
	return nil
}
