package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/notescan/notescan/internal/core/domain"
)

// TxRepo implements storage.TransactionRepository using PostgreSQL.
type TxRepo struct {
	db *DB
}

// NewTxRepo creates a new PostgreSQL transaction repository.
func NewTxRepo(db *DB) *TxRepo {
	return &TxRepo{db: db}
}

// BulkUpsert stores a batch of transactions inside one transaction. A
// transfer event is identified by (chain_id, tx_hash, log_index); replays
// refresh the mutable fields.
func (r *TxRepo) BulkUpsert(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO transactions (
			chain_id, tx_hash, block_number, tx_index, log_index, timestamp,
			from_address, to_address, value,
			token_address, token_name, token_symbol, token_decimals, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (chain_id, tx_hash, log_index) DO UPDATE SET
			timestamp = EXCLUDED.timestamp,
			token_name = EXCLUDED.token_name,
			token_symbol = EXCLUDED.token_symbol,
			token_decimals = EXCLUDED.token_decimals
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range txs {
		_, err := stmt.ExecContext(ctx,
			t.ChainID, t.TxHash, t.BlockNumber, t.TxIndex, t.LogIndex, t.Timestamp,
			t.From, t.To, t.Value,
			t.Token.Address, t.Token.Name, t.Token.Symbol, t.Token.Decimals,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert transaction %s: %w", t.TxHash, err)
		}
	}

	return tx.Commit()
}

type txRow struct {
	ChainID       string    `db:"chain_id"`
	TxHash        string    `db:"tx_hash"`
	BlockNumber   uint64    `db:"block_number"`
	TxIndex       uint      `db:"tx_index"`
	LogIndex      uint      `db:"log_index"`
	Timestamp     uint64    `db:"timestamp"`
	From          string    `db:"from_address"`
	To            string    `db:"to_address"`
	Value         string    `db:"value"`
	TokenAddress  string    `db:"token_address"`
	TokenName     string    `db:"token_name"`
	TokenSymbol   string    `db:"token_symbol"`
	TokenDecimals int       `db:"token_decimals"`
	CreatedAt     time.Time `db:"created_at"`
}

func (t *txRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ChainID:     t.ChainID,
		TxHash:      t.TxHash,
		BlockNumber: t.BlockNumber,
		TxIndex:     t.TxIndex,
		LogIndex:    t.LogIndex,
		Timestamp:   t.Timestamp,
		From:        t.From,
		To:          t.To,
		Value:       t.Value,
		Token: domain.Token{
			Address:  t.TokenAddress,
			Name:     t.TokenName,
			Symbol:   t.TokenSymbol,
			Decimals: uint8(t.TokenDecimals),
		},
	}
}

// GetByAddress retrieves cached transactions touching an address, newest
// first.
func (r *TxRepo) GetByAddress(ctx context.Context, chainID, address string) ([]domain.Transaction, error) {
	query := `
		SELECT chain_id, tx_hash, block_number, tx_index, log_index, timestamp,
		       from_address, to_address, value,
		       token_address, token_name, token_symbol, token_decimals, created_at
		FROM transactions
		WHERE chain_id = $1 AND (from_address = $2 OR to_address = $2)
		ORDER BY block_number DESC, tx_index DESC, log_index DESC
	`

	var rows []txRow
	if err := r.db.SelectContext(ctx, &rows, query, chainID, address); err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	txs := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, row.toDomain())
	}
	return txs, nil
}
