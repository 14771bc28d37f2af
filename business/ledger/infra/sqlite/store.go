// Package sqlite stores the ledger in a local SQLite file (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	arbdomain "github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	exdomain "github.com/fd1az/arbitrage-engine/business/execution/domain"
	"github.com/fd1az/arbitrage-engine/business/ledger/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
)

const defaultPath = "ledger.db"

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id                      TEXT PRIMARY KEY,
	opportunity_fingerprint TEXT    NOT NULL,
	attempt                 INTEGER NOT NULL,
	strategy_kind           TEXT    NOT NULL,
	chain_ids               TEXT    NOT NULL,
	profit_token            TEXT    NOT NULL,
	state                   TEXT    NOT NULL,
	claimed_at              INTEGER NOT NULL,
	attempt_amount_in       TEXT    NOT NULL,
	expected_net_profit     TEXT    NOT NULL,
	simulated_net_profit    TEXT,
	simulated_amount_out    TEXT,
	correlation_id          TEXT    NOT NULL DEFAULT '',
	submitted_at            INTEGER,
	actual_amount_out       TEXT,
	actual_profit_usd       TEXT,
	gas_used                INTEGER NOT NULL DEFAULT 0,
	gas_price_wei           TEXT,
	tx_hash                 TEXT    NOT NULL DEFAULT '',
	failure_reason          TEXT    NOT NULL DEFAULT '',
	failure_detail          TEXT    NOT NULL DEFAULT '',
	ambiguous_outcome       INTEGER NOT NULL DEFAULT 0,
	completed_at            INTEGER,
	updated_at              INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS executions_claimed_idx ON executions (claimed_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS executions_fingerprint_idx ON executions (opportunity_fingerprint);`

const columns = `id, opportunity_fingerprint, attempt, strategy_kind, chain_ids, profit_token,
	state, claimed_at, attempt_amount_in, expected_net_profit,
	simulated_net_profit, simulated_amount_out, correlation_id, submitted_at,
	actual_amount_out, actual_profit_usd, gas_used, gas_price_wei,
	tx_hash, failure_reason, failure_detail, ambiguous_outcome, completed_at, updated_at`

const upsert = `
INSERT INTO executions (` + columns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	state                = excluded.state,
	simulated_net_profit = excluded.simulated_net_profit,
	simulated_amount_out = excluded.simulated_amount_out,
	correlation_id       = excluded.correlation_id,
	submitted_at         = excluded.submitted_at,
	actual_amount_out    = excluded.actual_amount_out,
	actual_profit_usd    = excluded.actual_profit_usd,
	gas_used             = excluded.gas_used,
	gas_price_wei        = excluded.gas_price_wei,
	tx_hash              = excluded.tx_hash,
	failure_reason       = excluded.failure_reason,
	failure_detail       = excluded.failure_detail,
	ambiguous_outcome    = excluded.ambiguous_outcome,
	completed_at         = excluded.completed_at,
	updated_at           = excluded.updated_at
WHERE executions.state NOT IN ('confirmed', 'failed');`

// Store is a SQLite ledger store.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path in WAL mode.
func New(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	dsn := path
	if !strings.HasPrefix(path, "file:") {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection serializes writers; the ledger is not a hot path.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(ctx context.Context, e exdomain.Execution) (bool, error) {
	chains, err := json.Marshal(e.ChainIDs)
	if err != nil {
		return false, storageError(err, "encode chain ids")
	}
	if e.ChainIDs == nil {
		chains = []byte("[]")
	}

	res, err := s.db.ExecContext(ctx, upsert,
		e.ID, e.OpportunityFingerprint, e.Attempt, string(e.StrategyKind), string(chains), e.ProfitToken,
		string(e.State), e.ClaimedAt.UnixMicro(), e.AttemptAmountIn.String(), e.ExpectedNetProfit.String(),
		nullText(e.SimulatedNetProfit), nullText(e.SimulatedAmountOut), e.CorrelationID, nullMicros(e.SubmittedAt),
		nullText(e.ActualAmountOut), nullText(e.ActualProfitUSD), int64(e.GasUsed), nullText(e.GasPriceWei),
		e.TxHash, string(e.FailureReason), e.FailureDetail, e.AmbiguousOutcome, nullMicros(e.CompletedAt), e.UpdatedAt.UnixMicro(),
	)
	if err != nil {
		return false, storageError(err, "upsert execution "+e.ID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
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
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM executions WHERE id = ?", id)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	if len(f.States) > 0 {
		marks := make([]string, len(f.States))
		for i, st := range f.States {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "state IN ("+strings.Join(marks, ", ")+")")
	}
	if !f.From.IsZero() {
		where = append(where, "claimed_at >= ?")
		args = append(args, f.From.UnixMicro())
	}
	if !f.To.IsZero() {
		where = append(where, "claimed_at < ?")
		args = append(args, f.To.UnixMicro())
	}
	if f.Fingerprint != "" {
		where = append(where, "opportunity_fingerprint = ?")
		args = append(args, f.Fingerprint)
	}
	if f.ChainID != 0 {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(executions.chain_ids) WHERE json_each.value = ?)")
		args = append(args, int64(f.ChainID))
	}

	q := "SELECT " + columns + " FROM executions"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY claimed_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
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
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (exdomain.Execution, error) {
	var (
		e                                              exdomain.Execution
		kind, state, reason, chains                    string
		amountIn, expected                             string
		simNet, simOut, actualOut, actualUSD, gasPrice sql.NullString
		claimedAt, updatedAt                           int64
		submittedAt, completedAt                       sql.NullInt64
		gasUsed                                        int64
	)
	err := row.Scan(
		&e.ID, &e.OpportunityFingerprint, &e.Attempt, &kind, &chains, &e.ProfitToken,
		&state, &claimedAt, &amountIn, &expected,
		&simNet, &simOut, &e.CorrelationID, &submittedAt,
		&actualOut, &actualUSD, &gasUsed, &gasPrice,
		&e.TxHash, &reason, &e.FailureDetail, &e.AmbiguousOutcome, &completedAt, &updatedAt,
	)
	if err != nil {
		return exdomain.Execution{}, err
	}

	e.StrategyKind = arbdomain.StrategyKind(kind)
	e.State = exdomain.State(state)
	e.FailureReason = exdomain.FailureReason(reason)
	e.GasUsed = uint64(gasUsed)
	e.ClaimedAt = time.UnixMicro(claimedAt).UTC()
	e.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	e.SubmittedAt = fromMicros(submittedAt)
	e.CompletedAt = fromMicros(completedAt)

	if err := json.Unmarshal([]byte(chains), &e.ChainIDs); err != nil {
		return exdomain.Execution{}, err
	}
	if e.AttemptAmountIn, err = decimal.NewFromString(amountIn); err != nil {
		return exdomain.Execution{}, err
	}
	if e.ExpectedNetProfit, err = decimal.NewFromString(expected); err != nil {
		return exdomain.Execution{}, err
	}
	for _, c := range []struct {
		src sql.NullString
		dst *decimal.NullDecimal
	}{
		{simNet, &e.SimulatedNetProfit},
		{simOut, &e.SimulatedAmountOut},
		{actualOut, &e.ActualAmountOut},
		{actualUSD, &e.ActualProfitUSD},
		{gasPrice, &e.GasPriceWei},
	} {
		if !c.src.Valid {
			continue
		}
		d, err := decimal.NewFromString(c.src.String)
		if err != nil {
			return exdomain.Execution{}, err
		}
		*c.dst = decimal.NewNullDecimal(d)
	}
	return e, nil
}

func nullText(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}

func fromMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMicro(v.Int64).UTC()
	return &t
}

func storageError(err error, op string) error {
	return apperror.New(apperror.CodeStorageError, apperror.WithCause(err), apperror.WithContext(op))
}
