package postgres

import (
	"context"
	"errors"
	"fmt"

	"healthsync/internal/domain/credential"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialRepository stores provider OAuth tokens in the oauth_tokens table.
type CredentialRepository struct {
	pool *pgxpool.Pool
	tx   Transactor
}

func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool, tx: NewTxManager(pool)}
}

type executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (r *CredentialRepository) executor(ctx context.Context) executor {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// EnsureSchema creates the token table and its lookup index.
func (r *CredentialRepository) EnsureSchema(ctx context.Context) error {
	return r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		const table = `
			CREATE TABLE IF NOT EXISTS oauth_tokens (
				provider      TEXT NOT NULL,
				user_id       TEXT NOT NULL,
				access_token  TEXT NOT NULL,
				refresh_token TEXT,
				expires_at    BIGINT NOT NULL DEFAULT 0,
				scope         TEXT,
				token_type    TEXT,
				updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (provider, user_id)
			)
		`
		const index = `CREATE INDEX IF NOT EXISTS oauth_tokens_updated_at_idx ON oauth_tokens (updated_at)`

		exec := r.executor(ctx)
		if _, err := exec.Exec(ctx, table); err != nil {
			return fmt.Errorf("create oauth_tokens: %w", err)
		}
		if _, err := exec.Exec(ctx, index); err != nil {
			return fmt.Errorf("create oauth_tokens index: %w", err)
		}
		return nil
	})
}

func (r *CredentialRepository) Get(ctx context.Context, provider, userID string) (*credential.Token, error) {
	const query = `
		SELECT access_token, COALESCE(refresh_token, ''), expires_at, COALESCE(scope, ''), COALESCE(token_type, '')
		FROM oauth_tokens
		WHERE provider = $1 AND user_id = $2
	`

	var t credential.Token
	err := r.pool.QueryRow(ctx, query, provider, userID).Scan(
		&t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.Scope, &t.TokenType,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get oauth token: %w", err)
	}
	return &t, nil
}

func (r *CredentialRepository) Put(ctx context.Context, provider, userID string, t credential.Token) error {
	const query = `
		INSERT INTO oauth_tokens (provider, user_id, access_token, refresh_token, expires_at, scope, token_type, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (provider, user_id) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at    = EXCLUDED.expires_at,
			scope         = EXCLUDED.scope,
			token_type    = EXCLUDED.token_type,
			updated_at    = NOW()
	`

	_, err := r.executor(ctx).Exec(ctx, query,
		provider, userID, t.AccessToken, nullIfEmptyText(t.RefreshToken), t.ExpiresAt,
		nullIfEmptyText(t.Scope), nullIfEmptyText(t.TokenType))
	if err != nil {
		return fmt.Errorf("upsert oauth token: %w", err)
	}
	return nil
}

func nullIfEmptyText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
