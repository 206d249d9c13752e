package query

import (
	"context"
	"database/sql"
	"fmt"
)

// Service provides read-only access to projection tables. All
// responses carry as_of_sequence: the last event sequence the
// projection worker has applied, so callers can reason about
// freshness.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetBalances returns all currency balances for an account.
func (s *Service) GetBalances(ctx context.Context, account string) ([]BalanceEntry, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT currency, balance::text
		FROM projections.balances
		WHERE account = $1
		ORDER BY currency
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []BalanceEntry
	for rows.Next() {
		e := BalanceEntry{Account: account, AsOfSequence: asOfSeq}
		if err := rows.Scan(&e.Currency, &e.Balance); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetPositions returns all open positions for an account.
func (s *Service) GetPositions(ctx context.Context, account string) ([]PositionResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT currency, reserve::text, standard::text
		FROM projections.positions
		WHERE account = $1
		ORDER BY currency
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []PositionResponse
	for rows.Next() {
		p := PositionResponse{Account: account, AsOfSequence: asOfSeq}
		if err := rows.Scan(&p.Currency, &p.Reserve, &p.Standard); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetPosition returns one account's position in one currency. Returns
// (nil, nil) when no position exists.
func (s *Service) GetPosition(ctx context.Context, account, currency string) (*PositionResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	p := PositionResponse{Account: account, Currency: currency, AsOfSequence: asOfSeq}
	err = s.db.QueryRowContext(ctx, `
		SELECT reserve::text, standard::text
		FROM projections.positions
		WHERE account = $1 AND currency = $2
	`, account, currency).Scan(&p.Reserve, &p.Standard)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPositionTotals aggregates reserve and standard across all open
// positions, per currency.
func (s *Service) GetPositionTotals(ctx context.Context) ([]PositionTotals, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT currency, SUM(reserve)::text, SUM(standard)::text, COUNT(*)
		FROM projections.positions
		GROUP BY currency
		ORDER BY currency
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []PositionTotals
	for rows.Next() {
		t := PositionTotals{AsOfSequence: asOfSeq}
		if err := rows.Scan(&t.Currency, &t.TotalReserve, &t.TotalStandard, &t.OpenPositions); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// GetPools returns the treasury pool state and expected lot sizes.
func (s *Service) GetPools(ctx context.Context) (*PoolsResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &PoolsResponse{
		StandardPool:     "0",
		SurplusPool:      "0",
		ExpectedLotSizes: map[string]string{},
		AsOfSequence:     asOfSeq,
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT standard_pool::text, surplus_pool::text
		FROM projections.pool_state
		WHERE pool_id = 'main'
	`).Scan(&resp.StandardPool, &resp.SurplusPool)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT currency, expected::text FROM projections.lot_sizes
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var cur, size string
		if err := rows.Scan(&cur, &size); err != nil {
			return nil, err
		}
		resp.ExpectedLotSizes[cur] = size
	}
	return resp, rows.Err()
}

// GetSerpHistory returns elasticity and offset movements, newest
// first, with cursor pagination on sequence.
func (s *Service) GetSerpHistory(
	ctx context.Context,
	currency *string,
	limit int,
	beforeSequence *int64,
) ([]SerpOpResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT sequence, currency, op, amount::text, timestamp
		FROM projections.serp_ops
		WHERE TRUE
	`
	args := []any{}
	argIdx := 1

	if currency != nil {
		query += fmt.Sprintf(" AND currency = $%d", argIdx)
		args = append(args, *currency)
		argIdx++
	}

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []SerpOpResponse
	for rows.Next() {
		h := SerpOpResponse{AsOfSequence: asOfSeq}
		if err := rows.Scan(&h.Sequence, &h.Currency, &h.Op, &h.Amount, &h.Timestamp); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// GetJournalHistory returns journal entries touching an account with
// cursor pagination on sequence.
func (s *Service) GetJournalHistory(
	ctx context.Context,
	account string,
	limit int,
	beforeSequence *int64,
) ([]JournalHistoryEntry, error) {
	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, currency, amount::text, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account = $1 OR credit_account = $1)
	`
	args := []any{account}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Currency, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// VerifyIntegrity checks hash chain continuity in the event log and
// that journal entries net to zero per currency.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := s.db.QueryContext(ctx, `
		SELECT currency, SUM(balance)::text
		FROM projections.balances
		GROUP BY currency
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var u UnbalancedCurrency
		if err := balanceRows.Scan(&u.Currency, &u.Imbalance); err != nil {
			return nil, err
		}
		report.UnbalancedCurrencies = append(report.UnbalancedCurrencies, u)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedCurrencies) == 0
	return report, nil
}

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
