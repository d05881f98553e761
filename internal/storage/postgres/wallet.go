package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/wallet"
)

const (
	getWalletSQL = `SELECT user_id, balance, refund_amount, total_debited, updated_at
		FROM wallets WHERE user_id = $1`

	incrementWalletSQL = `INSERT INTO wallets (user_id, balance, refund_amount)
		VALUES ($1, $2, CASE WHEN $3 THEN $2 ELSE 0 END)
		ON CONFLICT (user_id) DO UPDATE SET
			balance = wallets.balance + EXCLUDED.balance,
			refund_amount = wallets.refund_amount + EXCLUDED.refund_amount,
			updated_at = NOW()
		RETURNING balance`

	decrementWalletSQL = `UPDATE wallets SET
			balance = balance - $2,
			total_debited = total_debited + $2,
			updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance`

	appendTransactionSQL = `INSERT INTO wallet_transactions (id, user_id, amount, type, payment_method,
			gateway, purpose, order_ids, payment_id, affects_balance, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	listTransactionsSQL = `SELECT id, user_id, amount, type, payment_method, gateway, purpose,
			order_ids, payment_id, affects_balance, balance_after, created_at
		FROM wallet_transactions WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`

	findTransactionByPaymentSQL = `SELECT id, user_id, amount, type, payment_method, gateway, purpose,
			order_ids, payment_id, affects_balance, balance_after, created_at
		FROM wallet_transactions WHERE payment_id = $1 AND purpose = $2`

	sumTransactionsSQL = `SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = 'credit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'debit'), 0)
		FROM wallet_transactions WHERE user_id = $1 AND affects_balance`

	walletPaymentKey = "wallet_transactions_payment_key"
)

var _ wallet.Repository = (*WalletRepository)(nil)

// WalletRepository implements wallet.Repository backed by PostgreSQL.
type WalletRepository struct {
	db *DB
}

// NewWalletRepository returns a WalletRepository that uses db.
func NewWalletRepository(db *DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Get returns the user's wallet, or an empty one.
func (r *WalletRepository) Get(ctx context.Context, userID string) (*wallet.Wallet, error) {
	w := &wallet.Wallet{UserID: userID}
	err := r.db.conn(ctx).QueryRow(ctx, getWalletSQL, userID).Scan(
		&w.UserID, &w.Balance, &w.RefundAmount, &w.TotalDebited, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &wallet.Wallet{UserID: userID}, nil
		}
		return nil, fmt.Errorf("getting wallet of %q: %w", userID, err)
	}
	return w, nil
}

// Increment adds amount to the balance, creating the wallet on first use.
func (r *WalletRepository) Increment(ctx context.Context, userID string, amount decimal.Decimal, refund bool) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := r.db.conn(ctx).QueryRow(ctx, incrementWalletSQL, userID, amount, refund).Scan(&balance); err != nil {
		return decimal.Zero, fmt.Errorf("crediting wallet of %q: %w", userID, err)
	}
	return balance, nil
}

// Decrement subtracts amount only while the balance covers it.
func (r *WalletRepository) Decrement(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.conn(ctx).QueryRow(ctx, decrementWalletSQL, userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, wallet.ErrInsufficientBalance
		}
		return decimal.Zero, fmt.Errorf("debiting wallet of %q: %w", userID, err)
	}
	return balance, nil
}

// Append records t. The partial unique index on (payment_id, purpose)
// rejects a second record of the same gateway payment.
func (r *WalletRepository) Append(ctx context.Context, t *wallet.Transaction) error {
	orderIDs := t.OrderIDs
	if orderIDs == nil {
		orderIDs = []string{}
	}
	_, err := r.db.conn(ctx).Exec(ctx, appendTransactionSQL,
		t.ID, t.UserID, t.Amount, t.Type, t.PaymentMethod, t.Gateway, t.Purpose,
		orderIDs, t.PaymentID, t.AffectsBalance, t.BalanceAfter, t.CreatedAt,
	)
	if err != nil {
		if violates(err, walletPaymentKey) {
			return wallet.ErrDuplicatePayment
		}
		return fmt.Errorf("appending wallet transaction: %w", err)
	}
	return nil
}

// Transactions returns the latest limit transactions, newest first.
func (r *WalletRepository) Transactions(ctx context.Context, userID string, limit int) ([]wallet.Transaction, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listTransactionsSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing wallet transactions: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, fmt.Errorf("listing wallet transactions: %w", err)
	}
	return list, nil
}

// FindByPayment returns the transaction of a gateway payment for purpose.
func (r *WalletRepository) FindByPayment(ctx context.Context, paymentID string, purpose wallet.Purpose) (*wallet.Transaction, error) {
	rows, err := r.db.conn(ctx).Query(ctx, findTransactionByPaymentSQL, paymentID, purpose)
	if err != nil {
		return nil, fmt.Errorf("finding wallet transaction of payment %q: %w", paymentID, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTransaction)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("finding wallet transaction of payment %q: %w", paymentID, err)
	}
	return &t, nil
}

func scanTransaction(row pgx.CollectableRow) (wallet.Transaction, error) {
	var t wallet.Transaction
	err := row.Scan(
		&t.ID, &t.UserID, &t.Amount, &t.Type, &t.PaymentMethod, &t.Gateway, &t.Purpose,
		&t.OrderIDs, &t.PaymentID, &t.AffectsBalance, &t.BalanceAfter, &t.CreatedAt,
	)
	return t, err
}

// Totals sums the balance-affecting credits and debits of userID.
func (r *WalletRepository) Totals(ctx context.Context, userID string) (wallet.Totals, error) {
	var t wallet.Totals
	if err := r.db.conn(ctx).QueryRow(ctx, sumTransactionsSQL, userID).Scan(&t.Credits, &t.Debits); err != nil {
		return wallet.Totals{}, fmt.Errorf("summing wallet transactions: %w", err)
	}
	return t, nil
}
