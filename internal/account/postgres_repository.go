package account

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
//
// Undo tokens are resolved through the unique partial index
// accounts_undo_token_idx (see migrations/0001_accounts.up.sql), never by a
// table scan.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL account repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectAccountColumns = `
	SELECT
		account_id, email, display_name, gallery_slug, plan,
		storage_used_bytes, wallet_balance_cents, referral_code,
		COALESCE(status, 'ACTIVE'),
		deletion_requested_at, deletion_scheduled_at, deletion_reason, undo_token,
		version, created_at, updated_at
	FROM accounts
`

// Get retrieves an account by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Account, error) {
	query := selectAccountColumns + `WHERE account_id = $1`
	return r.queryOne(ctx, query, id)
}

// FindByUndoToken retrieves the pending account holding the given undo token.
func (r *PostgresRepository) FindByUndoToken(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, ErrAccountNotFound
	}

	query := selectAccountColumns + `WHERE undo_token = $1 AND status = 'PENDING_DELETION'`
	return r.queryOne(ctx, query, token)
}

// MarkPendingDeletion sets the account to PENDING_DELETION with the given deletion fields.
func (r *PostgresRepository) MarkPendingDeletion(ctx context.Context, id string, expectedVersion int64, deletion Deletion) error {
	query := `
		UPDATE accounts SET
			status = 'PENDING_DELETION',
			deletion_requested_at = $3,
			deletion_scheduled_at = $4,
			deletion_reason = $5,
			undo_token = $6,
			version = version + 1,
			updated_at = $7
		WHERE account_id = $1 AND version = $2
	`

	result, err := r.pool.Exec(ctx, query,
		id,
		expectedVersion,
		deletion.RequestedAt,
		deletion.ScheduledAt,
		deletion.Reason,
		deletion.UndoToken,
		time.Now(),
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

// RestoreActive sets the account back to ACTIVE and clears the deletion fields.
func (r *PostgresRepository) RestoreActive(ctx context.Context, id string, expectedVersion int64) error {
	query := `
		UPDATE accounts SET
			status = 'ACTIVE',
			deletion_requested_at = NULL,
			deletion_scheduled_at = NULL,
			deletion_reason = NULL,
			undo_token = NULL,
			version = version + 1,
			updated_at = $3
		WHERE account_id = $1 AND version = $2
	`

	result, err := r.pool.Exec(ctx, query, id, expectedVersion, time.Now())
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

// Ping verifies the database connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// missOrConflict distinguishes a missing row from a stale version after a
// conditional update matched nothing.
func (r *PostgresRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE account_id = $1)`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrAccountNotFound
	}
	return ErrVersionConflict
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, arg any) (*Account, error) {
	var (
		a           Account
		status      string
		requestedAt *time.Time
		scheduledAt *time.Time
		reason      *string
		undoToken   *string
	)

	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID,
		&a.Email,
		&a.DisplayName,
		&a.GallerySlug,
		&a.Plan,
		&a.StorageUsedBytes,
		&a.WalletBalanceCents,
		&a.ReferralCode,
		&status,
		&requestedAt,
		&scheduledAt,
		&reason,
		&undoToken,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	a.Status = Status(status).Normalize()
	if a.Status == StatusPendingDeletion && scheduledAt != nil && undoToken != nil {
		d := &Deletion{
			ScheduledAt: *scheduledAt,
			UndoToken:   *undoToken,
		}
		if requestedAt != nil {
			d.RequestedAt = *requestedAt
		}
		if reason != nil {
			d.Reason = *reason
		}
		a.Deletion = d
	}

	return &a, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
