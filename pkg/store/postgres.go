package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS plans (
	id TEXT PRIMARY KEY,
	sale_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	product_id TEXT NOT NULL,
	total_price NUMERIC NOT NULL,
	down_payment NUMERIC NOT NULL,
	number_of_installments INTEGER NOT NULL,
	interest_rate NUMERIC NOT NULL,
	installment_amount NUMERIC NOT NULL,
	start_date TIMESTAMPTZ NOT NULL,
	end_date TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	total_paid NUMERIC NOT NULL,
	remaining_balance NUMERIC NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plans_customer_id ON plans(customer_id);
CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);
CREATE TABLE IF NOT EXISTS installments (
	plan_id TEXT NOT NULL REFERENCES plans(id),
	idx INTEGER NOT NULL,
	due_date TIMESTAMPTZ NOT NULL,
	amount_due NUMERIC NOT NULL,
	amount_paid NUMERIC NOT NULL,
	payment_date TIMESTAMPTZ,
	status TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (plan_id, idx)
);
`

// NewPostgresStore connects to PostgreSQL and initializes the schema.
func NewPostgresStore(dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return &SQLStore{db: db, dollarBinds: true}, nil
}

// Open returns a store for the given driver name ("sqlite3" or "postgres").
func Open(driver, dataSourceName string) (*SQLStore, error) {
	switch driver {
	case "sqlite3":
		return NewSQLiteStore(dataSourceName)
	case "postgres":
		return NewPostgresStore(dataSourceName)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
