package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresRecorder persists attempt records to Postgres.
type PostgresRecorder struct {
	db *sql.DB
}

// OpenPostgres connects to Postgres with the given connection string and
// ensures the journal table exists.
func OpenPostgres(connStr string) (*PostgresRecorder, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	table := `
	CREATE TABLE IF NOT EXISTS payment_attempts (
		id SERIAL PRIMARY KEY,
		attempt_id TEXT,
		item_id TEXT,
		kind TEXT,
		order_id TEXT,
		payment_id TEXT,
		amount_minor_units BIGINT,
		state TEXT,
		message TEXT,
		recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(table); err != nil {
		return nil, fmt.Errorf("error creating payment_attempts table: %w", err)
	}

	return &PostgresRecorder{db: db}, nil
}

func (p *PostgresRecorder) Record(ctx context.Context, rec AttemptRecord) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO payment_attempts
		 (attempt_id, item_id, kind, order_id, payment_id, amount_minor_units, state, message, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.AttemptID, rec.ItemID, rec.Kind, rec.OrderID, rec.PaymentID,
		rec.AmountMinorUnits, rec.State, rec.Message, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("error saving payment attempt: %w", err)
	}
	return nil
}

func (p *PostgresRecorder) List(ctx context.Context) ([]AttemptRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT attempt_id, item_id, kind, order_id, payment_id, amount_minor_units, state, message, recorded_at
		 FROM payment_attempts ORDER BY recorded_at`)
	if err != nil {
		return nil, fmt.Errorf("error reading payment attempts: %w", err)
	}
	defer rows.Close()

	var recs []AttemptRecord
	for rows.Next() {
		var rec AttemptRecord
		if err := rows.Scan(&rec.AttemptID, &rec.ItemID, &rec.Kind, &rec.OrderID, &rec.PaymentID,
			&rec.AmountMinorUnits, &rec.State, &rec.Message, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("error scanning payment attempt: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close closes the underlying database handle.
func (p *PostgresRecorder) Close() error {
	return p.db.Close()
}
