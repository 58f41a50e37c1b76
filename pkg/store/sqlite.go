package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Decimal fields are stored as TEXT so no precision is lost.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS plans (
	id TEXT PRIMARY KEY,
	sale_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	product_id TEXT NOT NULL,
	total_price TEXT NOT NULL,
	down_payment TEXT NOT NULL,
	number_of_installments INTEGER NOT NULL,
	interest_rate TEXT NOT NULL,
	installment_amount TEXT NOT NULL,
	start_date DATETIME NOT NULL,
	end_date DATETIME NOT NULL,
	status TEXT NOT NULL,
	total_paid TEXT NOT NULL,
	remaining_balance TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plans_customer_id ON plans(customer_id);
CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);
CREATE TABLE IF NOT EXISTS installments (
	plan_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	due_date DATETIME NOT NULL,
	amount_due TEXT NOT NULL,
	amount_paid TEXT NOT NULL,
	payment_date DATETIME,
	status TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (plan_id, idx),
	FOREIGN KEY(plan_id) REFERENCES plans(id)
);
`

// NewSQLiteStore opens (or creates) a SQLite database and initializes the schema.
func NewSQLiteStore(dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}
