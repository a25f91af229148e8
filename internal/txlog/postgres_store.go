package txlog

import (
	"context"
	"database/sql"
)

// PostgresStore persists the transaction log in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed log.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Record(ctx context.Context, e *Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payment_transactions (
			id, service, tx_hash, amount, from_addr, to_addr, created_at
		) VALUES ($1, $2, $3, $4::NUMERIC(30,18), $5, $6, $7)`,
		e.ID, e.Service, e.TxHash, e.Amount, e.FromAddr, e.ToAddr, e.CreatedAt,
	)
	return err
}

func (p *PostgresStore) List(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, service, tx_hash, trim_scale(amount)::TEXT, from_addr, to_addr, created_at
		FROM payment_transactions
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Service, &e.TxHash, &e.Amount, &e.FromAddr, &e.ToAddr, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (p *PostgresStore) ByHash(ctx context.Context, txHash string) (*Entry, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, service, tx_hash, trim_scale(amount)::TEXT, from_addr, to_addr, created_at
		FROM payment_transactions
		WHERE tx_hash = $1`, txHash)

	var e Entry
	err := row.Scan(&e.ID, &e.Service, &e.TxHash, &e.Amount, &e.FromAddr, &e.ToAddr, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

var _ Store = (*PostgresStore)(nil)
