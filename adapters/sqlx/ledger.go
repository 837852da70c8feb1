// Package sqlx provides a SQL-backed engine.Ledger for PostgreSQL and MySQL.
//
// Schema (managed by external migrations):
//
//	user_progress(user_id BIGINT PRIMARY KEY, xp BIGINT, level BIGINT,
//	              balance BIGINT, updated_at TIMESTAMP)
//	reward_grants(user_id BIGINT, reward_id VARCHAR(128),
//	              granted_at TIMESTAMP, PRIMARY KEY (user_id, reward_id))
//
// The composite primary key on reward_grants is the enforcement point of the
// once-per-(user, reward) invariant: RecordGrant is a bare INSERT and a
// uniqueness violation reads as "already granted".
package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rewardcore/core"
)

// Driver selects the SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration.
type Config struct {
	Driver       Driver        `json:"driver" env:"REWARDCORE_SQL_DRIVER"`
	DSN          string        `json:"dsn,omitempty" env:"REWARDCORE_SQL_DSN"`
	MaxOpenConns int           `json:"max_open_conns" env:"REWARDCORE_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns int           `json:"max_idle_conns" env:"REWARDCORE_SQL_MAX_IDLE_CONNS"`
	ConnLifetime time.Duration `json:"conn_lifetime" env:"REWARDCORE_SQL_CONN_LIFETIME"`
}

// DefaultConfig returns sensible defaults for the given driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:       driver,
		DSN:          "",
		MaxOpenConns: 25,
		MaxIdleConns: 5,
		ConnLifetime: 5 * time.Minute,
	}
}

// Ledger implements engine.Ledger on a relational database.
type Ledger struct {
	db     *libsqlx.DB
	driver Driver
}

// New opens a connection pool and pings it.
func New(cfg Config) (*Ledger, error) {
	db, err := libsqlx.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return &Ledger{db: db, driver: cfg.Driver}, nil
}

// NewWithDB wraps an existing connection (useful for testing with sqlmock).
func NewWithDB(db *libsqlx.DB, driver Driver) *Ledger {
	return &Ledger{db: db, driver: driver}
}

// Close closes the underlying pool.
func (l *Ledger) Close() error { return l.db.Close() }

// Ping reports connectivity for health checks.
func (l *Ledger) Ping(ctx context.Context) error { return l.db.PingContext(ctx) }

// AddXP applies the delta inside a transaction holding the user's row lock,
// so concurrent grants for the same user serialize instead of losing updates.
func (l *Ledger) AddXP(ctx context.Context, user core.UserID, delta int64) (core.Progress, error) {
	if delta <= 0 {
		return core.Progress{}, fmt.Errorf("xp delta must be positive: %w", core.ErrInvalidInput)
	}
	var prog core.Progress
	err := l.withUserRow(ctx, user, func(tx *libsqlx.Tx, cur *core.Progress) error {
		next, err := core.AddSafe(cur.XP, delta)
		if err != nil {
			return err
		}
		cur.XP = next
		cur.Level = core.LevelOf(next).Level
		cur.Updated = time.Now().UTC()
		prog = *cur
		return nil
	})
	if err != nil {
		return core.Progress{}, err
	}
	return prog, nil
}

// AdjustBalance applies a signed delta under the same row lock, rejecting any
// result below zero before it is ever written.
func (l *Ledger) AdjustBalance(ctx context.Context, user core.UserID, delta int64) (int64, error) {
	var balance int64
	err := l.withUserRow(ctx, user, func(tx *libsqlx.Tx, cur *core.Progress) error {
		next, err := core.AddSafe(cur.Balance, delta)
		if err != nil {
			return err
		}
		if next < 0 {
			return fmt.Errorf("balance would drop to %d: %w", next, core.ErrInsufficientFunds)
		}
		cur.Balance = next
		cur.Updated = time.Now().UTC()
		balance = next
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// withUserRow runs fn against the user's locked progress row, creating the
// zero state lazily, and writes the mutated row back on success.
func (l *Ledger) withUserRow(ctx context.Context, user core.UserID, fn func(tx *libsqlx.Tx, cur *core.Progress) error) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur := core.Progress{UserID: user, Level: 1}
	existing := true
	row := tx.QueryRowxContext(ctx,
		l.db.Rebind(`SELECT xp, level, balance FROM user_progress WHERE user_id = ? FOR UPDATE`), user)
	if err := row.Scan(&cur.XP, &cur.Level, &cur.Balance); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("select progress: %w", err)
		}
		existing = false
	}

	if err := fn(tx, &cur); err != nil {
		return err
	}

	if existing {
		_, err = tx.ExecContext(ctx,
			l.db.Rebind(`UPDATE user_progress SET xp = ?, level = ?, balance = ?, updated_at = ? WHERE user_id = ?`),
			cur.XP, cur.Level, cur.Balance, cur.Updated, user)
	} else {
		_, err = tx.ExecContext(ctx,
			l.db.Rebind(`INSERT INTO user_progress (user_id, xp, level, balance, updated_at) VALUES (?, ?, ?, ?, ?)`),
			user, cur.XP, cur.Level, cur.Balance, cur.Updated)
	}
	if err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return tx.Commit()
}

func (l *Ledger) Progress(ctx context.Context, user core.UserID) (core.Progress, error) {
	prog := core.Progress{UserID: user, Level: 1}
	row := l.db.QueryRowxContext(ctx,
		l.db.Rebind(`SELECT xp, level, balance, updated_at FROM user_progress WHERE user_id = ?`), user)
	if err := row.Scan(&prog.XP, &prog.Level, &prog.Balance, &prog.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// lazily-created zero state
			return prog, nil
		}
		return core.Progress{}, fmt.Errorf("select progress: %w", err)
	}
	return prog, nil
}

func (l *Ledger) HasGranted(ctx context.Context, user core.UserID, reward core.RewardID) (bool, error) {
	var exists bool
	err := l.db.QueryRowxContext(ctx,
		l.db.Rebind(`SELECT EXISTS (SELECT 1 FROM reward_grants WHERE user_id = ? AND reward_id = ?)`),
		user, reward).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select grant: %w", err)
	}
	return exists, nil
}

// RecordGrant inserts the grant record. A uniqueness violation means another
// writer already holds the grant and is reported as created=false, not an
// error.
func (l *Ledger) RecordGrant(ctx context.Context, user core.UserID, reward core.RewardID) (bool, error) {
	_, err := l.db.ExecContext(ctx,
		l.db.Rebind(`INSERT INTO reward_grants (user_id, reward_id, granted_at) VALUES (?, ?, ?)`),
		user, reward, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert grant: %w", err)
	}
	return true, nil
}

func (l *Ledger) Grants(ctx context.Context, user core.UserID) ([]core.Grant, error) {
	rows, err := l.db.QueryxContext(ctx,
		l.db.Rebind(`SELECT user_id, reward_id, granted_at FROM reward_grants WHERE user_id = ? ORDER BY granted_at DESC`),
		user)
	if err != nil {
		return nil, fmt.Errorf("select grants: %w", err)
	}
	defer rows.Close()

	var out []core.Grant
	for rows.Next() {
		var g core.Grant
		if err := rows.Scan(&g.UserID, &g.RewardID, &g.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}
