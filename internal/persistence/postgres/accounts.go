package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/igorgomez/medidascorporais/internal/identity"
)

const uniqueViolation = "23505"

// AccountRepository stores accounts and revoked tokens.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository constructs an AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// CreateAccount implements identity.AccountStore.
func (r *AccountRepository) CreateAccount(ctx context.Context, account identity.Account) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, email, password_hash, created_at) VALUES ($1,$2,$3,$4)`,
		account.ID, account.Email, account.PasswordHash, account.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return identity.ErrEmailTaken
	}
	return err
}

// FindByEmail implements identity.AccountStore.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*identity.Account, error) {
	return r.findOne(ctx, `SELECT user_id::text, email, password_hash, created_at FROM accounts WHERE email=$1`, email)
}

// FindByID implements identity.AccountStore.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*identity.Account, error) {
	return r.findOne(ctx, `SELECT user_id::text, email, password_hash, created_at FROM accounts WHERE user_id::text=$1`, id)
}

func (r *AccountRepository) findOne(ctx context.Context, query string, arg string) (*identity.Account, error) {
	var account identity.Account
	err := r.pool.QueryRow(ctx, query, arg).Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// RevokeToken implements identity.AccountStore.
func (r *AccountRepository) RevokeToken(ctx context.Context, tokenID, userID string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO revoked_tokens (token_id, user_id, expires_at) VALUES ($1,$2,$3) ON CONFLICT (token_id) DO NOTHING`,
		tokenID, userID, expiresAt,
	)
	return err
}

// IsRevoked implements identity.AccountStore.
func (r *AccountRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id=$1)`, tokenID).Scan(&exists)
	return exists, err
}

// PurgeExpiredRevocations drops revocations whose tokens have expired anyway.
func (r *AccountRepository) PurgeExpiredRevocations(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
