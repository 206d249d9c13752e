package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"SerpLedger/internal/ledger"
	"SerpLedger/internal/observability"
)

// Output carries the data projection workers need. The orchestrator in
// cmd bridges between the core's output type and this, attaching
// position and pool rows read from core state after the event applied.
type Output struct {
	Sequence  int64
	EventType string
	Currency  *string
	Journals  []JournalEntry
	Positions []PositionRow
	Pools     *PoolRow
	Timestamp int64
}

// JournalEntry is a simplified journal for projection consumption.
// Amounts are base-10 integer strings.
type JournalEntry struct {
	JournalID     string
	DebitAccount  string
	CreditAccount string
	Currency      string
	Amount        string
	JournalType   int32
}

// PositionRow is an upsert for projections.positions. A row with both
// parts zero deletes the projection.
type PositionRow struct {
	Account  string
	Currency string
	Reserve  string
	Standard string
}

// PoolRow is an upsert for the singleton pool state row plus the
// per-currency expected auction lot sizes.
type PoolRow struct {
	StandardPool     string
	SurplusPool      string
	ExpectedLotSizes map[string]string
}

// Worker updates projection tables from processed events. The
// projection channel is non-blocking with drop: if projections fall
// behind they are eventually consistent and can be rebuilt from the
// event log plus a replay.
type Worker struct {
	db        *sql.DB
	inputChan <-chan Output
	lastSeq   int64
	logger    zerolog.Logger
}

func NewWorker(db *sql.DB, inputChan <-chan Output) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		logger:    observability.NewLogger("projection"),
	}
}

// Run starts the projection worker loop. Blocks until ctx is cancelled.
// Outputs at or below the stored watermark are skipped, so replayed
// events never double-apply balance deltas.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.loadWatermark(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("load projection watermark failed, starting from 0")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			if output.Sequence <= w.lastSeq {
				continue
			}

			if err := w.processOutput(ctx, output); err != nil {
				w.logger.Warn().
					Err(err).
					Int64("sequence", output.Sequence).
					Msg("projection update failed")
				// Continue. Projections are rebuilt from the event
				// log when they drift.
			}

			w.lastSeq = output.Sequence
		}
	}
}

func (w *Worker) loadWatermark(ctx context.Context) error {
	err := w.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&w.lastSeq)
	if err == sql.ErrNoRows {
		return nil
	}
	return err
}

func (w *Worker) processOutput(ctx context.Context, output Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.Journals {
		if err := w.updateBalanceProjection(ctx, tx, output.Sequence, j); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
		if err := w.recordSerpOp(ctx, tx, output.Sequence, output.Timestamp, j); err != nil {
			return fmt.Errorf("serp op projection: %w", err)
		}
	}

	for _, p := range output.Positions {
		if err := w.upsertPosition(ctx, tx, output.Sequence, p); err != nil {
			return fmt.Errorf("position projection: %w", err)
		}
	}

	if output.Pools != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.pool_state (pool_id, standard_pool, surplus_pool, last_sequence)
			VALUES ('main', $1::numeric, $2::numeric, $3)
			ON CONFLICT (pool_id) DO UPDATE
				SET standard_pool = $1::numeric, surplus_pool = $2::numeric, last_sequence = $3
		`, output.Pools.StandardPool, output.Pools.SurplusPool, output.Sequence); err != nil {
			return fmt.Errorf("pool projection: %w", err)
		}

		for cur, size := range output.Pools.ExpectedLotSizes {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO projections.lot_sizes (currency, expected, last_sequence)
				VALUES ($1, $2::numeric, $3)
				ON CONFLICT (currency) DO UPDATE
					SET expected = $2::numeric, last_sequence = $3
			`, cur, size, output.Sequence); err != nil {
				return fmt.Errorf("lot size projection: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (w *Worker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, seq int64, j JournalEntry) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account, currency, balance, last_sequence)
		VALUES ($1, $2, -$3::numeric, $4)
		ON CONFLICT (account, currency)
		DO UPDATE SET balance = projections.balances.balance - $3::numeric, last_sequence = $4
	`, j.DebitAccount, j.Currency, j.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account, currency, balance, last_sequence)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (account, currency)
		DO UPDATE SET balance = projections.balances.balance + $3::numeric, last_sequence = $4
	`, j.CreditAccount, j.Currency, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

// recordSerpOp keeps a queryable history of elasticity and offset
// movements.
func (w *Worker) recordSerpOp(ctx context.Context, tx *sql.Tx, seq, ts int64, j JournalEntry) error {
	jt := ledger.JournalType(j.JournalType)
	switch jt {
	case ledger.JournalTypeSerpExpansion, ledger.JournalTypeSerpContraction, ledger.JournalTypeOffset:
	default:
		return nil
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.serp_ops (journal_id, sequence, currency, op, amount, timestamp)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		ON CONFLICT (journal_id) DO NOTHING
	`, j.JournalID, seq, j.Currency, jt.String(), j.Amount, ts)
	return err
}

func (w *Worker) upsertPosition(ctx context.Context, tx *sql.Tx, seq int64, p PositionRow) error {
	if p.Reserve == "0" && p.Standard == "0" {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM projections.positions WHERE account = $1 AND currency = $2
		`, p.Account, p.Currency)
		return err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.positions (account, currency, reserve, standard, last_sequence)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5)
		ON CONFLICT (account, currency)
		DO UPDATE SET reserve = $3::numeric, standard = $4::numeric, last_sequence = $5
	`, p.Account, p.Currency, p.Reserve, p.Standard, seq)
	return err
}

// Rebuild rebuilds balance and serp history projections from the event
// log. Position and pool projections come from core state, so they are
// refreshed by the running orchestrator rather than rebuilt here.
func Rebuild(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.serp_ops`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account, currency, balance, last_sequence)
		SELECT credit_account, currency, SUM(amount), MAX(sequence)
		FROM event_log.journal
		GROUP BY credit_account, currency
	`); err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account, currency, balance, last_sequence)
		SELECT debit_account, currency, -SUM(amount), MAX(sequence)
		FROM event_log.journal
		GROUP BY debit_account, currency
		ON CONFLICT (account, currency) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`); err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO projections.serp_ops (journal_id, sequence, currency, op, amount, timestamp)
		SELECT journal_id, sequence, currency,
		       CASE journal_type
		           WHEN %d THEN '%s'
		           WHEN %d THEN '%s'
		           ELSE '%s'
		       END,
		       amount, timestamp
		FROM event_log.journal
		WHERE journal_type IN (%d, %d, %d)
		ON CONFLICT (journal_id) DO NOTHING
	`,
		ledger.JournalTypeSerpExpansion, ledger.JournalTypeSerpExpansion.String(),
		ledger.JournalTypeSerpContraction, ledger.JournalTypeSerpContraction.String(),
		ledger.JournalTypeOffset.String(),
		ledger.JournalTypeSerpExpansion, ledger.JournalTypeSerpContraction, ledger.JournalTypeOffset,
	)); err != nil {
		return fmt.Errorf("rebuild serp ops: %w", err)
	}

	return nil
}
