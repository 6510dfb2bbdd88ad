package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_spot_bot/internal/domain"
)

// SQLiteStore implements the position Ledger, the ConfigStore and the
// StatsRecorder on one sqlite file.
type SQLiteStore struct {
	db *sql.DB
	// Serializes Update's read-modify-write. sqlite itself serializes
	// statements, but the atomic per-key contract spans two of them.
	mu sync.Mutex
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			asset TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			price_history TEXT NOT NULL DEFAULT '[]',
			current_price REAL NOT NULL DEFAULT 0,
			max_observed_price REAL NOT NULL DEFAULT 0,
			stop_limit_price REAL NOT NULL DEFAULT 0,
			channel_low REAL NOT NULL DEFAULT 0,
			ttl INTEGER NOT NULL DEFAULT 0,
			hodl BOOLEAN NOT NULL DEFAULT 0,
			deleted BOOLEAN NOT NULL DEFAULT 0,
			quantity REAL NOT NULL DEFAULT 0,
			paid_cost REAL NOT NULL DEFAULT 0,
			average_price REAL NOT NULL DEFAULT 0,
			commission REAL NOT NULL DEFAULT 0,
			gained REAL NOT NULL DEFAULT 0,
			profit REAL NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS risk_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			payload TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS stats (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			profit REAL NOT NULL DEFAULT 0,
			withdrawals REAL NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// Ledger implementation

const positionColumns = `asset, state, price_history, current_price, max_observed_price,
	stop_limit_price, channel_low, ttl, hodl, deleted,
	quantity, paid_cost, average_price, commission, gained, profit, updated_at`

func (s *SQLiteStore) Get(ctx context.Context, asset string) (*domain.PositionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE asset = ?`, asset)
	rec, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) Put(ctx context.Context, rec *domain.PositionRecord) error {
	history, err := json.Marshal(rec.PriceHistory)
	if err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	query := `INSERT INTO positions (` + positionColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(asset) DO UPDATE SET
			  state=excluded.state,
			  price_history=excluded.price_history,
			  current_price=excluded.current_price,
			  max_observed_price=excluded.max_observed_price,
			  stop_limit_price=excluded.stop_limit_price,
			  channel_low=excluded.channel_low,
			  ttl=excluded.ttl,
			  hodl=excluded.hodl,
			  deleted=excluded.deleted,
			  quantity=excluded.quantity,
			  paid_cost=excluded.paid_cost,
			  average_price=excluded.average_price,
			  commission=excluded.commission,
			  gained=excluded.gained,
			  profit=excluded.profit,
			  updated_at=excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		rec.Asset, rec.State, string(history), rec.CurrentPrice, rec.MaxObservedPrice,
		rec.StopLimitPrice, rec.ChannelLow, rec.TTL, rec.Hodl, rec.Deleted,
		rec.Quantity, rec.PaidCost, rec.AveragePrice, rec.Commission, rec.Gained, rec.Profit,
		rec.UpdatedAt)
	return err
}

func (s *SQLiteStore) All(ctx context.Context) ([]*domain.PositionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM positions ORDER BY asset`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*domain.PositionRecord
	for rows.Next() {
		rec, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, asset string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM positions WHERE asset = ?", asset)
	return err
}

// Update performs an atomic read-modify-write for one asset key.
func (s *SQLiteStore) Update(ctx context.Context, asset string, mutate func(*domain.PositionRecord), onAbsent func() *domain.PositionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, asset)
	if err != nil {
		return err
	}
	if rec == nil {
		if onAbsent == nil {
			return nil
		}
		rec = onAbsent()
		if rec == nil {
			return nil
		}
		rec.Asset = asset
	}
	mutate(rec)
	rec.UpdatedAt = time.Now()
	return s.Put(ctx, rec)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*domain.PositionRecord, error) {
	var rec domain.PositionRecord
	var history string
	err := row.Scan(&rec.Asset, &rec.State, &history, &rec.CurrentPrice, &rec.MaxObservedPrice,
		&rec.StopLimitPrice, &rec.ChannelLow, &rec.TTL, &rec.Hodl, &rec.Deleted,
		&rec.Quantity, &rec.PaidCost, &rec.AveragePrice, &rec.Commission, &rec.Gained, &rec.Profit,
		&rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(history), &rec.PriceHistory); err != nil {
		return nil, fmt.Errorf("corrupt price history for %s: %w", rec.Asset, err)
	}
	return &rec, nil
}

// ConfigStore implementation

// ConfigRepo adapts the store to the domain.ConfigStore contract; the
// ledger already owns the plain Get on SQLiteStore.
type ConfigRepo struct {
	store *SQLiteStore
}

func (s *SQLiteStore) Config() *ConfigRepo { return &ConfigRepo{store: s} }

func (c *ConfigRepo) Get(ctx context.Context) (*domain.RiskConfig, error) {
	return c.store.GetConfig(ctx)
}

func (c *ConfigRepo) Set(ctx context.Context, cfg *domain.RiskConfig) error {
	return c.store.SetConfig(ctx, cfg)
}

func (s *SQLiteStore) GetConfig(ctx context.Context) (*domain.RiskConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM risk_config WHERE id = 1`)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("risk config not initialized")
		}
		return nil, err
	}
	var cfg domain.RiskConfig
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, fmt.Errorf("corrupt risk config: %w", err)
	}
	return &cfg, nil
}

func (s *SQLiteStore) SetConfig(ctx context.Context, cfg *domain.RiskConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	query := `INSERT INTO risk_config (id, payload, updated_at) VALUES (1, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query, string(payload), time.Now())
	return err
}

// StatsRecorder implementation

func (s *SQLiteStore) AddProfit(ctx context.Context, amount float64) error {
	query := `INSERT INTO stats (id, profit, withdrawals, updated_at) VALUES (1, ?, 0, ?)
			  ON CONFLICT(id) DO UPDATE SET profit=profit+excluded.profit, updated_at=excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query, amount, time.Now())
	return err
}

func (s *SQLiteStore) AddWithdrawal(ctx context.Context, amount float64) error {
	query := `INSERT INTO stats (id, profit, withdrawals, updated_at) VALUES (1, 0, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET withdrawals=withdrawals+excluded.withdrawals, updated_at=excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query, amount, time.Now())
	return err
}

// Totals returns the accumulated profit and withdrawals.
func (s *SQLiteStore) Totals(ctx context.Context) (profit, withdrawals float64, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT profit, withdrawals FROM stats WHERE id = 1`)
	err = row.Scan(&profit, &withdrawals)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	return profit, withdrawals, err
}
