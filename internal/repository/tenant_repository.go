package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
)

const tenantColumns = `id, name, subscription_status, subscription_plan, user_count, asset_count,
	user_limit, asset_limit, next_billing_date, smtp_settings, stripe_settings, created_at, updated_at`

// PostgresTenantRepository implements domain.TenantRepository using PostgreSQL
type PostgresTenantRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresTenantRepository creates a new tenant repository
func NewPostgresTenantRepository(db *sql.DB, logger *slog.Logger) *PostgresTenantRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTenantRepository{db: db, logger: logger}
}

// Create creates a new tenant
func (r *PostgresTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = domain.NewID()
	}
	smtp, stripe, err := marshalSettings(tenant)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tenants (id, name, subscription_status, subscription_plan, user_count, asset_count,
			user_limit, asset_limit, next_billing_date, smtp_settings, stripe_settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err = conn(ctx, r.db).QueryRowContext(ctx, query,
		tenant.ID,
		tenant.Name,
		string(tenant.SubscriptionStatus),
		string(tenant.SubscriptionPlan),
		tenant.UserCount,
		tenant.AssetCount,
		tenant.UserLimit,
		tenant.AssetLimit,
		tenant.NextBillingDate,
		smtp,
		stripe,
	).Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if cErr := uniqueViolation(err); cErr != nil {
			return cErr
		}
		r.logger.Error("failed to create tenant",
			slog.String("name", tenant.Name),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *PostgresTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	if !domain.ValidID(id) {
		return nil, fmt.Errorf("tenant %w", domain.ErrNotFound)
	}
	t, err := scanTenant(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, domain.NormalizeID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// Update updates an existing tenant. Counters are not written here; they only
// change through AdjustUserCount and RecountUsers.
func (r *PostgresTenantRepository) Update(ctx context.Context, tenant *domain.Tenant) error {
	smtp, stripe, err := marshalSettings(tenant)
	if err != nil {
		return err
	}

	query := `
		UPDATE tenants
		SET name = $1, subscription_status = $2, subscription_plan = $3, user_limit = $4, asset_limit = $5,
		    next_billing_date = $6, smtp_settings = $7, stripe_settings = $8, updated_at = now()
		WHERE id = $9
		RETURNING updated_at
	`
	err = conn(ctx, r.db).QueryRowContext(ctx, query,
		tenant.Name,
		string(tenant.SubscriptionStatus),
		string(tenant.SubscriptionPlan),
		tenant.UserLimit,
		tenant.AssetLimit,
		tenant.NextBillingDate,
		smtp,
		stripe,
		domain.NormalizeID(tenant.ID),
	).Scan(&tenant.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("tenant %w", domain.ErrNotFound)
		}
		if cErr := uniqueViolation(err); cErr != nil {
			return cErr
		}
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	return nil
}

// Delete removes a tenant
func (r *PostgresTenantRepository) Delete(ctx context.Context, id string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, domain.NormalizeID(id))
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("tenant %w", domain.ErrNotFound)
	}
	return nil
}

// List returns all tenants
func (r *PostgresTenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	out := []*domain.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AdjustUserCount applies delta to the user counter in one statement, floored at zero.
func (r *PostgresTenantRepository) AdjustUserCount(ctx context.Context, id string, delta int) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE tenants SET user_count = GREATEST(user_count + $1, 0), updated_at = now() WHERE id = $2`,
		delta, domain.NormalizeID(id))
	if err != nil {
		return fmt.Errorf("failed to adjust user count: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("tenant %w", domain.ErrNotFound)
	}
	return nil
}

// RecountUsers locks the tenant row, counts its users and writes the count
// back when it differs. Creates take the same row lock through the users
// foreign key and deletes through AdjustUserCount, so no membership change can
// commit between the count and the write. Without a transaction in ctx it
// opens its own.
func (r *PostgresTenantRepository) RecountUsers(ctx context.Context, id string) (stored, live int, err error) {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); !ok {
		err = NewPostgresTransactor(r.db, r.logger).WithinTx(ctx, func(ctx context.Context) error {
			var txErr error
			stored, live, txErr = r.RecountUsers(ctx, id)
			return txErr
		})
		return stored, live, err
	}

	q := conn(ctx, r.db)
	id = domain.NormalizeID(id)

	err = q.QueryRowContext(ctx, `SELECT user_count FROM tenants WHERE id = $1 FOR UPDATE`, id).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, fmt.Errorf("tenant %w", domain.ErrNotFound)
		}
		return 0, 0, fmt.Errorf("failed to lock tenant: %w", err)
	}
	if err := q.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE tenant_id = $1`, id).Scan(&live); err != nil {
		return 0, 0, fmt.Errorf("failed to count users: %w", err)
	}
	if live == stored {
		return stored, live, nil
	}

	if _, err := q.ExecContext(ctx,
		`UPDATE tenants SET user_count = $1, updated_at = now() WHERE id = $2`, live, id); err != nil {
		return 0, 0, fmt.Errorf("failed to set user count: %w", err)
	}
	return stored, live, nil
}

func marshalSettings(t *domain.Tenant) ([]byte, []byte, error) {
	smtp, err := json.Marshal(t.SMTPSettings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal smtp settings: %w", err)
	}
	stripe, err := json.Marshal(t.StripeSettings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal stripe settings: %w", err)
	}
	return smtp, stripe, nil
}

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	var status, plan string
	var nextBilling sql.NullTime
	var smtp, stripe []byte
	err := row.Scan(
		&t.ID, &t.Name, &status, &plan, &t.UserCount, &t.AssetCount,
		&t.UserLimit, &t.AssetLimit, &nextBilling, &smtp, &stripe, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.ID = domain.NormalizeID(t.ID)
	t.SubscriptionStatus = domain.SubscriptionStatus(status)
	t.SubscriptionPlan = domain.Plan(plan)
	if nextBilling.Valid {
		nb := nextBilling.Time
		t.NextBillingDate = &nb
	}
	if len(smtp) > 0 {
		if err := json.Unmarshal(smtp, &t.SMTPSettings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal smtp settings: %w", err)
		}
	}
	if len(stripe) > 0 {
		if err := json.Unmarshal(stripe, &t.StripeSettings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stripe settings: %w", err)
		}
	}
	return t, nil
}
