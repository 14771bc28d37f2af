// Package postgres stores the ledger in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	arbdomain "github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	exdomain "github.com/fd1az/arbitrage-engine/business/execution/domain"
	"github.com/fd1az/arbitrage-engine/business/ledger/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
)

// Config holds the connection settings.
type Config struct {
	DSN      string
	MaxConns int
}

// Store is a PostgreSQL ledger store. Terminal entries are protected by the upsert
// itself, so concurrent writers cannot overwrite a final state.
type Store struct {
	pool *pgxpool.Pool
}

// New connects, verifies the connection and applies pending migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

const columns = `id, opportunity_fingerprint, attempt, strategy_kind, chain_ids, profit_token,
	state, claimed_at, attempt_amount_in::text, expected_net_profit::text,
	simulated_net_profit::text, simulated_amount_out::text, correlation_id, submitted_at,
	actual_amount_out::text, actual_profit_usd::text, gas_used, gas_price_wei::text,
	tx_hash, failure_reason, failure_detail, ambiguous_outcome, completed_at, updated_at`

const upsert = `
	INSERT INTO executions (
		id, opportunity_fingerprint, attempt, strategy_kind, chain_ids, profit_token,
		state, claimed_at, attempt_amount_in, expected_net_profit,
		simulated_net_profit, simulated_amount_out, correlation_id, submitted_at,
		actual_amount_out, actual_profit_usd, gas_used, gas_price_wei,
		tx_hash, failure_reason, failure_detail, ambiguous_outcome, completed_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9::numeric, $10::numeric,
		$11::numeric, $12::numeric, $13, $14,
		$15::numeric, $16::numeric, $17, $18::numeric,
		$19, $20, $21, $22, $23, $24
	)
	ON CONFLICT (id) DO UPDATE SET
		state                = EXCLUDED.state,
		simulated_net_profit = EXCLUDED.simulated_net_profit,
		simulated_amount_out = EXCLUDED.simulated_amount_out,
		correlation_id       = EXCLUDED.correlation_id,
		submitted_at         = EXCLUDED.submitted_at,
		actual_amount_out    = EXCLUDED.actual_amount_out,
		actual_profit_usd    = EXCLUDED.actual_profit_usd,
		gas_used             = EXCLUDED.gas_used,
		gas_price_wei        = EXCLUDED.gas_price_wei,
		tx_hash              = EXCLUDED.tx_hash,
		failure_reason       = EXCLUDED.failure_reason,
		failure_detail       = EXCLUDED.failure_detail,
		ambiguous_outcome    = EXCLUDED.ambiguous_outcome,
		completed_at         = EXCLUDED.completed_at,
		updated_at           = EXCLUDED.updated_at
	WHERE executions.state NOT IN ('confirmed', 'failed')`

func (s *Store) Put(ctx context.Context, e exdomain.Execution) (bool, error) {
	chains := make([]int64, len(e.ChainIDs))
	for i, id := range e.ChainIDs {
		chains[i] = int64(id)
	}

	tag, err := s.pool.Exec(ctx, upsert,
		e.ID, e.OpportunityFingerprint, e.Attempt, string(e.StrategyKind), chains, e.ProfitToken,
		string(e.State), e.ClaimedAt, e.AttemptAmountIn.String(), e.ExpectedNetProfit.String(),
		nullString(e.SimulatedNetProfit), nullString(e.SimulatedAmountOut), e.CorrelationID, e.SubmittedAt,
		nullString(e.ActualAmountOut), nullString(e.ActualProfitUSD), int64(e.GasUsed), nullString(e.GasPriceWei),
		e.TxHash, string(e.FailureReason), e.FailureDetail, e.AmbiguousOutcome, e.CompletedAt, e.UpdatedAt,
	)
	if err != nil {
		return false, storageError(err, "upsert execution "+e.ID)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	cur, err := s.Get(ctx, e.ID)
	if err != nil {
		return false, err
	}
	if cur.Equal(e) {
		return false, nil
	}
	return false, domain.Terminal(e.ID)
}

func (s *Store) Get(ctx context.Context, id string) (exdomain.Execution, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+columns+" FROM executions WHERE id = $1", id)
	e, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return exdomain.Execution{}, domain.NotFound(id)
	}
	if err != nil {
		return exdomain.Execution{}, storageError(err, "get execution "+id)
	}
	return e, nil
}

func (s *Store) Query(ctx context.Context, f domain.Filter) ([]exdomain.Execution, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if len(f.States) > 0 {
		states := make([]string, len(f.States))
		for i, st := range f.States {
			states[i] = string(st)
		}
		add("state = ANY($%d)", states)
	}
	if !f.From.IsZero() {
		add("claimed_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("claimed_at < $%d", f.To)
	}
	if f.Fingerprint != "" {
		add("opportunity_fingerprint = $%d", f.Fingerprint)
	}
	if f.ChainID != 0 {
		add("$%d = ANY(chain_ids)", int64(f.ChainID))
	}

	q := "SELECT " + columns + " FROM executions"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY claimed_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, storageError(err, "query executions")
	}
	defer rows.Close()

	out := make([]exdomain.Execution, 0)
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, storageError(err, "scan execution")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "query executions")
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scan(row pgx.Row) (exdomain.Execution, error) {
	var (
		e                                              exdomain.Execution
		kind, state, reason                            string
		chains                                         []int64
		amountIn, expected                             string
		simNet, simOut, actualOut, actualUSD, gasPrice *string
		gasUsed                                        int64
	)
	err := row.Scan(
		&e.ID, &e.OpportunityFingerprint, &e.Attempt, &kind, &chains, &e.ProfitToken,
		&state, &e.ClaimedAt, &amountIn, &expected,
		&simNet, &simOut, &e.CorrelationID, &e.SubmittedAt,
		&actualOut, &actualUSD, &gasUsed, &gasPrice,
		&e.TxHash, &reason, &e.FailureDetail, &e.AmbiguousOutcome, &e.CompletedAt, &e.UpdatedAt,
	)
	if err != nil {
		return exdomain.Execution{}, err
	}

	e.StrategyKind = arbdomain.StrategyKind(kind)
	e.State = exdomain.State(state)
	e.FailureReason = exdomain.FailureReason(reason)
	e.GasUsed = uint64(gasUsed)
	e.ChainIDs = make([]uint64, len(chains))
	for i, id := range chains {
		e.ChainIDs[i] = uint64(id)
	}

	if e.AttemptAmountIn, err = decimal.NewFromString(amountIn); err != nil {
		return exdomain.Execution{}, err
	}
	if e.ExpectedNetProfit, err = decimal.NewFromString(expected); err != nil {
		return exdomain.Execution{}, err
	}
	for _, c := range []struct {
		src *string
		dst *decimal.NullDecimal
	}{
		{simNet, &e.SimulatedNetProfit},
		{simOut, &e.SimulatedAmountOut},
		{actualOut, &e.ActualAmountOut},
		{actualUSD, &e.ActualProfitUSD},
		{gasPrice, &e.GasPriceWei},
	} {
		if *c.dst, err = parseNull(c.src); err != nil {
			return exdomain.Execution{}, err
		}
	}

	return domain.Canonical(e), nil
}

func nullString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseNull(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func storageError(err error, op string) error {
	return apperror.New(apperror.CodeStorageError, apperror.WithCause(err), apperror.WithContext(op))
}
