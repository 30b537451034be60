package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meridianhq/tenantd/internal/models"
	"github.com/meridianhq/tenantd/internal/store"
	"github.com/rs/zerolog/log"
)

// TenantStore implements store.TenantStore using PostgreSQL.
type TenantStore struct {
	db *DB
}

var _ store.TenantStore = (*TenantStore)(nil)

// NewTenantStore creates a new PostgreSQL-backed tenant store.
// It shares the connection pool with the other stores.
func NewTenantStore(db *DB) *TenantStore {
	return &TenantStore{db: db}
}

// Create creates a new tenant in the database.
func (s *TenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now()
	}
	if tenant.UpdatedAt.IsZero() {
		tenant.UpdatedAt = tenant.CreatedAt
	}

	billing, err := marshalBilling(tenant.Billing)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tenants (
			tenant_id, name, billing, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err = s.db.q(ctx).Exec(ctx, query,
		tenant.TenantID,
		tenant.Name,
		billing,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)

	if err != nil {
		if mapped := mapPostgresError(err); errors.Is(mapped, store.ErrTenantAlreadyExists) {
			return store.ErrTenantAlreadyExists
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	log.Debug().
		Str("tenant_id", tenant.TenantID.String()).
		Str("name", tenant.Name).
		Msg("Created tenant")

	return nil
}

// Get retrieves a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	query := `
		SELECT tenant_id, name, billing, created_at, updated_at
		FROM tenants
		WHERE tenant_id = $1
	`

	tenant, err := scanTenant(s.db.q(ctx).QueryRow(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return tenant, nil
}

// Update applies a partial update to a tenant's name and billing settings.
// Unset fields are left untouched in a single UPDATE, so concurrent updates
// of different fields do not overwrite each other.
func (s *TenantStore) Update(ctx context.Context, tenantID uuid.UUID, update store.TenantUpdate) (*models.Tenant, error) {
	var billing []byte
	if update.Billing != nil {
		var err error
		billing, err = marshalBilling(update.Billing)
		if err != nil {
			return nil, err
		}
	}

	query := `
		UPDATE tenants SET
			name = COALESCE($2, name),
			billing = COALESCE($3, billing),
			updated_at = now()
		WHERE tenant_id = $1
		RETURNING tenant_id, name, billing, created_at, updated_at
	`

	tenant, err := scanTenant(s.db.q(ctx).QueryRow(ctx, query, tenantID, update.Name, billing))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to update tenant: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("tenant_id", tenantID.String()).
		Msg("Updated tenant")

	return tenant, nil
}

// List returns all tenants, newest first.
func (s *TenantStore) List(ctx context.Context) ([]*models.Tenant, error) {
	query := `
		SELECT tenant_id, name, billing, created_at, updated_at
		FROM tenants
		ORDER BY created_at DESC
	`

	rows, err := s.db.q(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}

	return tenants, nil
}

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var tenant models.Tenant
	var billing []byte

	err := row.Scan(
		&tenant.TenantID,
		&tenant.Name,
		&billing,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(billing) > 0 {
		if err := json.Unmarshal(billing, &tenant.Billing); err != nil {
			return nil, fmt.Errorf("failed to decode billing settings: %w", err)
		}
	}

	return &tenant, nil
}

func marshalBilling(b models.BillingSettings) ([]byte, error) {
	if b == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode billing settings: %w", err)
	}
	return data, nil
}
