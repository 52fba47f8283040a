package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DaveXRouz/Bental-sub004/internal/config"
	"github.com/DaveXRouz/Bental-sub004/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ticker_snapshot (
	symbol         TEXT PRIMARY KEY,
	price          DOUBLE PRECISION NOT NULL,
	change         DOUBLE PRECISION NOT NULL,
	change_percent DOUBLE PRECISION NOT NULL,
	volume         DOUBLE PRECISION NOT NULL,
	last_update    BIGINT NOT NULL,
	source         TEXT NOT NULL
)`

// Postgres stores the ticker table in a single upserted table.
type Postgres struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Postgres snapshot store on an existing pool.
func NewPostgres(db *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger}
}

// Connect creates a connection pool from config and verifies it.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		escapedPassword,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}

// EnsureSchema creates the snapshot table when it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create snapshot table: %w", err)
	}
	return nil
}

// Load reads the full persisted table.
func (p *Postgres) Load(ctx context.Context) ([]model.TickerRecord, error) {
	rows, err := p.db.Query(ctx, `
		SELECT symbol, price, change, change_percent, volume, last_update, source
		FROM ticker_snapshot`)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var records []model.TickerRecord
	for rows.Next() {
		var r model.TickerRecord
		var source string
		if err := rows.Scan(&r.Symbol, &r.Price, &r.Change, &r.ChangePercent, &r.Volume, &r.LastUpdate, &source); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		r.Source = model.Source(source)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot rows: %w", err)
	}

	return records, nil
}

// Save upserts the given records in one batch. Rows for symbols no
// longer present are left behind; they are harmless on reload because
// the live feeds overwrite them.
func (p *Postgres) Save(ctx context.Context, records []model.TickerRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO ticker_snapshot (symbol, price, change, change_percent, volume, last_update, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (symbol) DO UPDATE SET
				price = EXCLUDED.price,
				change = EXCLUDED.change,
				change_percent = EXCLUDED.change_percent,
				volume = EXCLUDED.volume,
				last_update = EXCLUDED.last_update,
				source = EXCLUDED.source`,
			r.Symbol, r.Price, r.Change, r.ChangePercent, r.Volume, r.LastUpdate, string(r.Source),
		)
	}

	results := p.db.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert snapshot row: %w", err)
		}
	}

	return nil
}
