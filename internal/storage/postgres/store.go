package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"curveLedger/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	seq BIGINT PRIMARY KEY,
	op_seq BIGINT NOT NULL DEFAULT 0,
	op TEXT NOT NULL,
	code TEXT NOT NULL,
	caller TEXT NOT NULL,
	token_id BIGINT NOT NULL DEFAULT 0,
	related_token_id BIGINT NOT NULL DEFAULT 0,
	asset TEXT NOT NULL DEFAULT '',
	collateral_delta NUMERIC(78,0),
	position_amount NUMERIC(78,0),
	gross NUMERIC(78,0),
	fee NUMERIC(78,0),
	minted NUMERIC(78,0),
	burned NUMERIC(78,0),
	amount_in NUMERIC(78,0),
	amount_out NUMERIC(78,0),
	ts BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	token_id BIGINT PRIMARY KEY,
	owner TEXT NOT NULL,
	asset TEXT NOT NULL,
	amount NUMERIC(78,0) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS curve_state (
	asset TEXT NOT NULL,
	direction TEXT NOT NULL,
	fee_tier INTEGER NOT NULL,
	tick_spacing INTEGER NOT NULL,
	sqrt_price_x96 NUMERIC(78,0) NOT NULL,
	tick INTEGER NOT NULL,
	liquidity NUMERIC(78,0) NOT NULL,
	balance0 NUMERIC(78,0) NOT NULL,
	balance1 NUMERIC(78,0) NOT NULL,
	swaps BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (asset, direction)
);
CREATE TABLE IF NOT EXISTS asset_window_metrics (
	asset TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts TIMESTAMPTZ NOT NULL,
	window_end_ts TIMESTAMPTZ NOT NULL,
	op_counts JSONB NOT NULL,
	failed_count BIGINT NOT NULL,
	minted NUMERIC NOT NULL,
	burned NUMERIC NOT NULL,
	fees NUMERIC NOT NULL,
	collateral_locked NUMERIC NOT NULL,
	collateral_released NUMERIC NOT NULL,
	net_collateral NUMERIC NOT NULL,
	fee_ratio NUMERIC,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (asset, window_size_seconds, window_start_ts)
);
CREATE TABLE IF NOT EXISTS progress_state (
	name TEXT PRIMARY KEY,
	last_processed BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for ledger events, positions, curve
// state and window metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// PutEvents inserts events. Events already stored under the same seq are
// left as they are, so a resumed replay can resend a batch.
func (s *Store) PutEvents(ctx context.Context, events []model.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO ledger_events (
				seq, op_seq, op, code, caller, token_id, related_token_id, asset,
				collateral_delta, position_amount, gross, fee, minted, burned, amount_in, amount_out,
				ts
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			ON CONFLICT (seq) DO NOTHING
		`,
			int64(e.Seq),
			int64(e.OpSeq),
			e.Op,
			e.Code,
			e.Caller,
			int64(e.TokenID),
			int64(e.RelatedTokenID),
			e.Asset,
			nullable(e.CollateralDelta),
			nullable(e.PositionAmount),
			nullable(e.Gross),
			nullable(e.Fee),
			nullable(e.Minted),
			nullable(e.Burned),
			nullable(e.AmountIn),
			nullable(e.AmountOut),
			e.Timestamp,
		)
	}
	return s.sendBatch(ctx, batch)
}

// ReplacePositions makes the positions table equal to positions.
func (s *Store) ReplacePositions(ctx context.Context, positions []model.PositionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM positions`); err != nil {
		return err
	}
	if len(positions) > 0 {
		batch := &pgx.Batch{}
		for _, p := range positions {
			batch.Queue(`
				INSERT INTO positions (token_id, owner, asset, amount, updated_at)
				VALUES ($1, $2, $3, $4, now())
			`, int64(p.TokenID), p.Owner, p.Asset, p.Amount)
		}
		br := tx.SendBatch(ctx, batch)
		for range positions {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return err
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// UpsertCurveStates inserts or updates the state of each pool direction.
func (s *Store) UpsertCurveStates(ctx context.Context, states []model.CurveState) error {
	if len(states) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range states {
		batch.Queue(`
			INSERT INTO curve_state (
				asset, direction, fee_tier, tick_spacing, sqrt_price_x96, tick, liquidity,
				balance0, balance1, swaps, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
			ON CONFLICT (asset, direction)
			DO UPDATE SET
				fee_tier = EXCLUDED.fee_tier,
				tick_spacing = EXCLUDED.tick_spacing,
				sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
				tick = EXCLUDED.tick,
				liquidity = EXCLUDED.liquidity,
				balance0 = EXCLUDED.balance0,
				balance1 = EXCLUDED.balance1,
				swaps = EXCLUDED.swaps,
				updated_at = now()
		`,
			c.Asset,
			c.Direction,
			int64(c.FeeTier),
			c.TickSpacing,
			c.SqrtPriceX96,
			c.Tick,
			c.Liquidity,
			c.Balance0,
			c.Balance1,
			int64(c.Swaps),
		)
	}
	return s.sendBatch(ctx, batch)
}

// UpsertAssetWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertAssetWindowMetrics(ctx context.Context, metrics []model.AssetWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO asset_window_metrics (
				asset, window_size_seconds, window_start_ts, window_end_ts,
				op_counts, failed_count, minted, burned, fees,
				collateral_locked, collateral_released, net_collateral, fee_ratio,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
			ON CONFLICT (asset, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				op_counts = EXCLUDED.op_counts,
				failed_count = EXCLUDED.failed_count,
				minted = EXCLUDED.minted,
				burned = EXCLUDED.burned,
				fees = EXCLUDED.fees,
				collateral_locked = EXCLUDED.collateral_locked,
				collateral_released = EXCLUDED.collateral_released,
				net_collateral = EXCLUDED.net_collateral,
				fee_ratio = EXCLUDED.fee_ratio,
				updated_at = now()
		`,
			m.Asset,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			m.OpCounts,
			int64(m.FailedCount),
			m.Minted,
			m.Burned,
			m.Fees,
			m.CollateralLocked,
			m.CollateralReleased,
			m.NetCollateral,
			m.FeeRatio,
		)
	}
	return s.sendBatch(ctx, batch)
}

// CollateralByAsset sums the stored position amounts per asset. Sums are
// decimal strings.
func (s *Store) CollateralByAsset(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT asset, SUM(amount)::text FROM positions GROUP BY asset`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var asset, total string
		if err := rows.Scan(&asset, &total); err != nil {
			return nil, err
		}
		out[asset] = total
	}
	return out, rows.Err()
}

// LoadState returns the progress value stored under name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var last int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed FROM progress_state WHERE name=$1`, name)
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(last), true, nil
}

// SaveState upserts the progress value for name.
func (s *Store) SaveState(ctx context.Context, name string, last uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO progress_state (name, last_processed, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed = EXCLUDED.last_processed, updated_at = now()
	`, name, int64(last))
	return err
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
