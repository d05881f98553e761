// Package wallet implements the per-user wallet ledger. The transaction log
// is append-only and authoritative; the wallet balance is a projection kept
// in step with it inside the same datastore transaction.
package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// TxType is the direction of a wallet transaction.
type TxType string

const (
	Credit TxType = "credit"
	Debit  TxType = "debit"
)

// Purpose explains why money moved.
type Purpose string

const (
	PurposePurchase     Purpose = "purchase"
	PurposeRefund       Purpose = "refund"
	PurposeWalletAdd    Purpose = "wallet_add"
	PurposeCancellation Purpose = "cancellation"
)

// Gateway names used in transaction records.
const (
	GatewayWallet   = "wallet"
	GatewayRazorpay = "razorpay"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = apperr.Conflict("insufficient_wallet_balance", "insufficient wallet balance")
	// ErrDuplicatePayment is returned when a transaction for the same gateway
	// payment and purpose was already recorded.
	ErrDuplicatePayment = apperr.Conflict("duplicate_payment", "payment already recorded")
	// ErrTransactionNotFound is returned when no transaction matches a lookup.
	ErrTransactionNotFound = apperr.NotFound("wallet_transaction_not_found", "wallet transaction not found")
	// ErrLedgerDrift is returned by Audit when the cached balance disagrees
	// with the transaction log.
	ErrLedgerDrift = apperr.New(apperr.KindInternal, "ledger_drift", "wallet balance diverged from ledger")
)

// Wallet is the balance projection for one user.
type Wallet struct {
	UserID       string
	Balance      decimal.Decimal
	RefundAmount decimal.Decimal
	TotalDebited decimal.Decimal
	UpdatedAt    time.Time
}

// Transaction is an immutable ledger record.
type Transaction struct {
	ID            string
	UserID        string
	Amount        decimal.Decimal
	Type          TxType
	PaymentMethod string
	Gateway       string
	Purpose       Purpose
	OrderIDs      []string
	PaymentID     string
	// AffectsBalance is false for audit-only records such as purchases paid
	// through the gateway, which never touch the wallet.
	AffectsBalance bool
	BalanceAfter   decimal.Decimal
	CreatedAt      time.Time
}

// Totals are the sums of balance-affecting transactions.
type Totals struct {
	Credits decimal.Decimal
	Debits  decimal.Decimal
}

// Repository persists wallets and their transaction log.
type Repository interface {
	// Get returns the wallet, or a zero wallet if the user has none.
	Get(ctx context.Context, userID string) (*Wallet, error)
	// Increment atomically adds amount to the balance, creating the wallet
	// if needed, and returns the new balance. refund also adds amount to
	// the cumulative refund total.
	Increment(ctx context.Context, userID string, amount decimal.Decimal, refund bool) (decimal.Decimal, error)
	// Decrement atomically subtracts amount if the balance covers it and
	// returns the new balance, or ErrInsufficientBalance.
	Decrement(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
	// Append stores t. It returns ErrDuplicatePayment when t.PaymentID is
	// set and a transaction with the same payment and purpose exists.
	Append(ctx context.Context, t *Transaction) error
	// FindByPayment returns the transaction recorded for a gateway payment
	// and purpose, or ErrTransactionNotFound.
	FindByPayment(ctx context.Context, paymentID string, purpose Purpose) (*Transaction, error)
	Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
	Totals(ctx context.Context, userID string) (Totals, error)
}
