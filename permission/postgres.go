package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joeecarter/health-gateway/gateway"
)

const defaultGrantsTable = "health_read_grants"

// Postgres keeps grants in a table with one row per decided kind.
type Postgres struct {
	pool     *pgxpool.Pool
	table    string
	decision gateway.AuthorizationStatus
}

// NewPool opens and pings a PostgreSQL connection pool.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return pool, nil
}

// NewPostgres returns an authority backed by table (health_read_grants when
// empty). The pool stays owned by the caller.
func NewPostgres(pool *pgxpool.Pool, table string, decision gateway.AuthorizationStatus) *Postgres {
	if table == "" {
		table = defaultGrantsTable
	}
	return &Postgres{pool: pool, table: table, decision: decision}
}

func (p *Postgres) CreateTable(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			kind       TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			decided_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, pgx.Identifier{p.table}.Sanitize()))
	if err != nil {
		return fmt.Errorf("failed to create grants table: %w", err)
	}
	return nil
}

func (p *Postgres) RequestAuthorization(ctx context.Context, kinds []gateway.Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	table := pgx.Identifier{p.table}.Sanitize()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, k := range kinds {
		batch.Queue(fmt.Sprintf(
			`INSERT INTO %s (kind, status) VALUES ($1, $2) ON CONFLICT (kind) DO NOTHING`, table),
			string(k), p.decision.String())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to record decisions: %w", err)
	}

	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	rows, err := tx.Query(ctx, fmt.Sprintf(`SELECT kind, status FROM %s WHERE kind = ANY($1)`, table), names)
	if err != nil {
		return fmt.Errorf("failed to read decisions: %w", err)
	}
	statuses := make(map[gateway.Kind]gateway.AuthorizationStatus, len(kinds))
	for rows.Next() {
		var kind, status string
		if err := rows.Scan(&kind, &status); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan decision: %w", err)
		}
		st, err := gateway.ParseAuthorizationStatus(status)
		if err != nil {
			rows.Close()
			return err
		}
		statuses[gateway.Kind(kind)] = st
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read decisions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	var denied []gateway.Kind
	for _, k := range kinds {
		if statuses[k] != gateway.Granted {
			denied = append(denied, k)
		}
	}
	return deniedError(denied)
}

func (p *Postgres) AuthorizationStatus(ctx context.Context, kind gateway.Kind) (gateway.AuthorizationStatus, error) {
	var status string
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT status FROM %s WHERE kind = $1`, pgx.Identifier{p.table}.Sanitize()),
		string(kind),
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return gateway.NotDetermined, nil
	}
	if err != nil {
		return gateway.NotDetermined, fmt.Errorf("failed to read decision: %w", err)
	}
	return gateway.ParseAuthorizationStatus(status)
}
