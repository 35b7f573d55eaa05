package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tokenLiquidity/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store provides Postgres persistence for the reconciler: seen txids, price
// snapshots, settlement outcomes and the settlement journal.
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

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// LoadSeen returns the seen txids of chain in insertion order.
func (s *Store) LoadSeen(ctx context.Context, chain string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT txid FROM seen_txids WHERE chain=$1 ORDER BY seq`, chain)
	if err != nil {
		return nil, err
	}
	txids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan seen txids: %w", err)
	}
	return txids, nil
}

// AppendSeen records txids as processed. Already recorded txids are ignored.
func (s *Store) AppendSeen(ctx context.Context, chain string, txids ...string) error {
	if len(txids) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, txid := range txids {
		batch.Queue(`
			INSERT INTO seen_txids (chain, txid, seen_at)
			VALUES ($1, $2, now())
			ON CONFLICT (chain, txid) DO NOTHING
		`, chain, txid)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range txids {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshot returns the named price snapshot.
func (s *Store) LoadSnapshot(ctx context.Context, name string) (model.Snapshot, bool, error) {
	if name == "" {
		return model.Snapshot{}, false, fmt.Errorf("snapshot name required")
	}
	var usd, base, token, spot string
	var snap model.Snapshot
	row := s.pool.QueryRow(ctx, `
		SELECT usd_per_base::text, base_balance::text, token_balance::text, spot_price::text, updated_at
		FROM price_snapshots WHERE name=$1
	`, name)
	if err := row.Scan(&usd, &base, &token, &spot, &snap.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, err
	}

	var err error
	if snap.USDPerBase, err = decimal.NewFromString(usd); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("parse usd_per_base: %w", err)
	}
	if snap.BaseBalance, err = decimal.NewFromString(base); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("parse base_balance: %w", err)
	}
	if snap.TokenBalance, err = decimal.NewFromString(token); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("parse token_balance: %w", err)
	}
	if snap.SpotPrice, err = decimal.NewFromString(spot); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("parse spot_price: %w", err)
	}
	return snap, true, nil
}

// SaveSnapshot upserts the named price snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, name string, snap model.Snapshot) error {
	if name == "" {
		return fmt.Errorf("snapshot name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_snapshots (name, usd_per_base, base_balance, token_balance, spot_price, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6)
		ON CONFLICT (name) DO UPDATE SET
			usd_per_base = EXCLUDED.usd_per_base,
			base_balance = EXCLUDED.base_balance,
			token_balance = EXCLUDED.token_balance,
			spot_price = EXCLUDED.spot_price,
			updated_at = EXCLUDED.updated_at
	`,
		name,
		snap.USDPerBase.String(),
		snap.BaseBalance.String(),
		snap.TokenBalance.String(),
		snap.SpotPrice.String(),
		snap.UpdatedAt,
	)
	return err
}

// PutOutcomes inserts settlement outcomes. An outcome already recorded for
// the same chain and txid is kept.
func (s *Store) PutOutcomes(ctx context.Context, outcomes []model.SettlementOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, o := range outcomes {
		batch.Queue(`
			INSERT INTO settlement_outcomes (
				chain, txid, payout_txid, type, amount, destination, reason, base_balance, token_balance, settled_at
			) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8::numeric, $9::numeric, $10)
			ON CONFLICT (chain, txid) DO NOTHING
		`,
			o.Chain,
			o.Txid,
			o.PayoutTxid,
			string(o.Type),
			o.Amount.String(),
			o.DestinationAddress,
			o.Reason,
			o.BaseBalance.String(),
			o.TokenBalance.String(),
			o.SettledAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range outcomes {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadJournal returns the journal entry for txid.
func (s *Store) LoadJournal(ctx context.Context, txid string) (model.JournalEntry, bool, error) {
	entry := model.JournalEntry{Txid: txid}
	row := s.pool.QueryRow(ctx, `SELECT burn_txid, payout_txid, updated_at FROM settlement_journal WHERE txid=$1`, txid)
	if err := row.Scan(&entry.BurnTxid, &entry.PayoutTxid, &entry.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.JournalEntry{}, false, nil
		}
		return model.JournalEntry{}, false, err
	}
	return entry, true, nil
}

// SaveJournal upserts a journal entry. Step txids already recorded are never
// cleared.
func (s *Store) SaveJournal(ctx context.Context, entry model.JournalEntry) error {
	if entry.Txid == "" {
		return fmt.Errorf("journal txid required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settlement_journal (txid, burn_txid, payout_txid, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (txid) DO UPDATE SET
			burn_txid = COALESCE(NULLIF(EXCLUDED.burn_txid, ''), settlement_journal.burn_txid),
			payout_txid = COALESCE(NULLIF(EXCLUDED.payout_txid, ''), settlement_journal.payout_txid),
			updated_at = now()
	`, entry.Txid, entry.BurnTxid, entry.PayoutTxid)
	return err
}
