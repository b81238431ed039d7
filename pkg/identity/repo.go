package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrIdentityExists   = errors.New("identity exists for that contact address")
)

type IdentityRepository interface {
	CreateIdentity(ctx context.Context, in Identity) (Identity, error)
	GetIdentityByID(ctx context.Context, id string) (Identity, error)
	GetIdentityByAddress(ctx context.Context, address string) (Identity, error)
	ListIdentities(ctx context.Context) ([]Identity, error)
}

type postgresIdentityRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresIdentityRepository(pool *pgxpool.Pool) IdentityRepository {
	return &postgresIdentityRepository{pool: pool}
}

const identityColumns = `id::text, display_name, contact_address, credential_secret, created_at`

func scanIdentity(row pgx.Row) (Identity, error) {
	var out Identity
	err := row.Scan(&out.ID, &out.DisplayName, &out.ContactAddress, &out.CredentialSecret, &out.CreatedAt)
	return out, err
}

func (r *postgresIdentityRepository) CreateIdentity(ctx context.Context, in Identity) (Identity, error) {
	query := `INSERT INTO chat_identities (id, display_name, contact_address, credential_secret, created_at)
              VALUES ($1, $2, $3, $4, NOW())
              RETURNING ` + identityColumns
	out, err := scanIdentity(r.pool.QueryRow(ctx, query, in.ID, in.DisplayName, in.ContactAddress, in.CredentialSecret))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Identity{}, ErrIdentityExists
		}
		return Identity{}, fmt.Errorf("insert identity: %w", err)
	}
	return out, nil
}

func (r *postgresIdentityRepository) GetIdentityByID(ctx context.Context, id string) (Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM chat_identities WHERE id::text = $1`
	out, err := scanIdentity(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("get identity: %w", err)
	}
	return out, nil
}

func (r *postgresIdentityRepository) GetIdentityByAddress(ctx context.Context, address string) (Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM chat_identities WHERE contact_address = $1`
	out, err := scanIdentity(r.pool.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("get identity by address: %w", err)
	}
	return out, nil
}

func (r *postgresIdentityRepository) ListIdentities(ctx context.Context) ([]Identity, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+identityColumns+` FROM chat_identities ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	list := make([]Identity, 0)
	for rows.Next() {
		in, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		list = append(list, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return list, nil
}
