// Package postgres stores receipts in a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/receipt"
)

// Store implements receipt.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ receipt.Store = (*Store)(nil)

// Config contains PostgreSQL connection settings. DSN, when set, takes
// precedence over the individual fields.
type Config struct {
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the lib/pq connection string.
func (c *Config) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.Database, sslMode)
}

// Open connects, verifies the connection and creates the schema.
func Open(ctx context.Context, config *Config) (*Store, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS memo_receipts (
		digest CHAR(64) PRIMARY KEY,
		signature VARCHAR(128) NOT NULL,
		payer VARCHAR(64) NOT NULL,
		cluster VARCHAR(64) NOT NULL DEFAULT '',
		submitted_at TIMESTAMP WITH TIME ZONE NOT NULL,
		slot BIGINT,
		block_time TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_memo_receipts_signature ON memo_receipts(signature);
	`
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Put inserts r, or fills in confirmation fields of the stored receipt.
// The read-merge-write runs in one transaction holding the row lock.
func (s *Store) Put(ctx context.Context, r receipt.Receipt) error {
	if err := r.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO memo_receipts (digest, signature, payer, cluster, submitted_at, slot, block_time)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (digest) DO NOTHING
	`,
		r.Digest.String(),
		r.Signature.String(),
		r.Payer.String(),
		r.Cluster,
		r.SubmittedAt.UTC(),
		nullSlot(r.Slot),
		nullTime(r.BlockTime),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return tx.Commit()
	}

	existing, err := scan(tx.QueryRowContext(ctx, selectQuery+" FOR UPDATE", r.Digest.String()))
	if err != nil {
		return err
	}
	merged, changed, err := receipt.Merge(existing, r)
	if err != nil {
		return err
	}
	if !changed {
		return tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, `
	UPDATE memo_receipts SET slot = $2, block_time = $3, updated_at = NOW()
	WHERE digest = $1
	`, merged.Digest.String(), nullSlot(merged.Slot), nullTime(merged.BlockTime)); err != nil {
		return err
	}
	return tx.Commit()
}

const selectQuery = `
	SELECT digest, signature, payer, cluster, submitted_at, slot, block_time
	FROM memo_receipts WHERE digest = $1`

func (s *Store) Get(ctx context.Context, d digest.Digest) (receipt.Receipt, error) {
	if !d.Valid() {
		return receipt.Receipt{}, receipt.ErrInvalidDigest
	}
	return scan(s.db.QueryRowContext(ctx, selectQuery, d.String()))
}

func (s *Store) Has(ctx context.Context, d digest.Digest) bool {
	if !d.Valid() {
		return false
	}
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM memo_receipts WHERE digest = $1", d.String()).Scan(&one)
	return err == nil
}

func scan(row *sql.Row) (receipt.Receipt, error) {
	var (
		r                receipt.Receipt
		dgst, sig, payer string
		slot             sql.NullInt64
		blockTime        sql.NullTime
	)
	if err := row.Scan(&dgst, &sig, &payer, &r.Cluster, &r.SubmittedAt, &slot, &blockTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return receipt.Receipt{}, receipt.ErrNotFound
		}
		return receipt.Receipt{}, err
	}
	var err error
	if r.Digest, err = digest.Parse(dgst); err != nil {
		return receipt.Receipt{}, err
	}
	if r.Signature, err = ledger.ParseSignature(sig); err != nil {
		return receipt.Receipt{}, err
	}
	if r.Payer, err = ledger.ParsePublicKey(payer); err != nil {
		return receipt.Receipt{}, err
	}
	r.SubmittedAt = r.SubmittedAt.UTC()
	if slot.Valid {
		r.Slot = uint64(slot.Int64)
	}
	if blockTime.Valid {
		bt := blockTime.Time.UTC()
		r.BlockTime = &bt
	}
	return r, nil
}

func nullSlot(slot uint64) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(slot), Valid: slot != 0}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
