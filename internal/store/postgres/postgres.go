// Package postgres implements the deployment store on PostgreSQL with
// optimistic concurrency over a version column.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/modelgrid/modelgrid/internal/deployment"
	"github.com/modelgrid/modelgrid/internal/provider"
)

const schema = `
CREATE TABLE IF NOT EXISTS deployments (
	id                    TEXT PRIMARY KEY,
	organization_id       TEXT NOT NULL,
	name                  TEXT NOT NULL,
	industry              TEXT NOT NULL,
	provider              TEXT NOT NULL,
	region                TEXT NOT NULL,
	model_size            TEXT NOT NULL,
	gpu_type              TEXT NOT NULL,
	gpu_count             INT NOT NULL,
	config                JSONB NOT NULL DEFAULT '{}',
	status                TEXT NOT NULL,
	cost_per_hour         DOUBLE PRECISION NOT NULL,
	endpoint_url          TEXT NOT NULL DEFAULT '',
	provisioned_resources JSONB NOT NULL DEFAULT '[]',
	residual_resources    JSONB NOT NULL DEFAULT '[]',
	error_message         TEXT NOT NULL DEFAULT '',
	degraded              BOOLEAN NOT NULL DEFAULT FALSE,
	version               BIGINT NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deployments_org ON deployments (organization_id);
`

// Store is a pgx-backed deployment.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a pool to the given database URI and ensures the
// schema exists.
func New(ctx context.Context, connectionURI string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connectionURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	config.MaxConns = 30
	config.MinConns = 5
	config.MaxConnIdleTime = 30 * time.Minute
	config.MaxConnLifetime = 2 * time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool (used by tests).
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const selectColumns = `id, organization_id, name, industry, provider, region,
	model_size, gpu_type, gpu_count, config, status, cost_per_hour,
	endpoint_url, provisioned_resources, residual_resources,
	error_message, degraded, version, created_at, updated_at`

func (s *Store) Get(ctx context.Context, id string) (*deployment.Deployment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM deployments WHERE id = $1`, id)

	d, err := scanDeployment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, deployment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment %s: %w", id, err)
	}
	return d, nil
}

// Save inserts a new deployment (Version 0) or updates an existing one
// whose stored version matches. On success the deployment's Version is
// incremented in place, matching the stored row.
func (s *Store) Save(ctx context.Context, d *deployment.Deployment) error {
	config, err := json.Marshal(orEmptyMap(d.Config))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	provisioned, err := json.Marshal(orEmptySlice(d.ProvisionedResources))
	if err != nil {
		return fmt.Errorf("failed to marshal provisioned resources: %w", err)
	}
	residual, err := json.Marshal(orEmptySlice(d.ResidualResources))
	if err != nil {
		return fmt.Errorf("failed to marshal residual resources: %w", err)
	}

	now := time.Now().UTC()
	next := d.Version + 1

	if d.Version == 0 {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO deployments (`+selectColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			        $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
			d.ID, d.OrganizationID, d.Name, string(d.Industry), string(d.Provider),
			d.Region, string(d.ModelSize), d.GPUType, d.GPUCount, config,
			string(d.Status), d.CostPerHour, d.EndpointURL, provisioned, residual,
			d.ErrorMessage, d.Degraded, next, d.CreatedAt.UTC(), now)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return deployment.ErrVersionConflict
			}
			return fmt.Errorf("failed to insert deployment %s: %w", d.ID, err)
		}
		d.Version = next
		d.UpdatedAt = now
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE deployments SET
			config = $1, status = $2, endpoint_url = $3,
			provisioned_resources = $4, residual_resources = $5,
			error_message = $6, degraded = $7, version = $8, updated_at = $9
		WHERE id = $10 AND version = $11`,
		config, string(d.Status), d.EndpointURL, provisioned, residual,
		d.ErrorMessage, d.Degraded, next, now, d.ID, d.Version)
	if err != nil {
		return fmt.Errorf("failed to update deployment %s: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or a concurrent writer bumped the
		// version first.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM deployments WHERE id = $1)`, d.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check deployment %s: %w", d.ID, err)
		}
		if !exists {
			return deployment.ErrNotFound
		}
		return deployment.ErrVersionConflict
	}

	d.Version = next
	d.UpdatedAt = now
	return nil
}

func (s *Store) ListByOrganization(ctx context.Context, orgID string) ([]*deployment.Deployment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM deployments
		 WHERE organization_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments for %s: %w", orgID, err)
	}
	defer rows.Close()

	var out []*deployment.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deployments: %w", err)
	}
	return out, nil
}

func scanDeployment(row pgx.Row) (*deployment.Deployment, error) {
	var (
		d           deployment.Deployment
		industry    string
		prov        string
		modelSize   string
		status      string
		config      []byte
		provisioned []byte
		residual    []byte
	)

	err := row.Scan(&d.ID, &d.OrganizationID, &d.Name, &industry, &prov,
		&d.Region, &modelSize, &d.GPUType, &d.GPUCount, &config, &status,
		&d.CostPerHour, &d.EndpointURL, &provisioned, &residual,
		&d.ErrorMessage, &d.Degraded, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}

	d.Industry = deployment.Industry(industry)
	d.Provider = provider.ID(prov)
	d.ModelSize = deployment.ModelSize(modelSize)
	d.Status = deployment.Status(status)

	if err := json.Unmarshal(config, &d.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := json.Unmarshal(provisioned, &d.ProvisionedResources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal provisioned resources: %w", err)
	}
	if err := json.Unmarshal(residual, &d.ResidualResources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal residual resources: %w", err)
	}
	if len(d.ProvisionedResources) == 0 {
		d.ProvisionedResources = nil
	}
	if len(d.ResidualResources) == 0 {
		d.ResidualResources = nil
	}
	return &d, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlice(s []deployment.Resource) []deployment.Resource {
	if s == nil {
		return []deployment.Resource{}
	}
	return s
}
