package wallet

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/tx"
)

// Entry describes a ledger movement to record.
type Entry struct {
	UserID        string
	Amount        decimal.Decimal
	PaymentMethod string
	Gateway       string
	Purpose       Purpose
	OrderIDs      []string
	PaymentID     string
}

// Ledger moves wallet money and records every movement.
type Ledger struct {
	repo Repository
	tx   tx.Manager
	now  func() time.Time
}

// NewLedger creates a Ledger.
func NewLedger(repo Repository, txm tx.Manager) *Ledger {
	return &Ledger{repo: repo, tx: txm, now: time.Now}
}

// Credit adds e.Amount to the wallet and appends a credit transaction.
func (l *Ledger) Credit(ctx context.Context, e Entry) (*Transaction, error) {
	amount, err := validate(e)
	if err != nil {
		return nil, err
	}
	refund := e.Purpose == PurposeRefund || e.Purpose == PurposeCancellation

	var t *Transaction
	err = l.tx.InTx(ctx, func(ctx context.Context) error {
		balance, err := l.repo.Increment(ctx, e.UserID, amount, refund)
		if err != nil {
			return errors.Wrap(err, "increment balance")
		}
		t = l.newTransaction(e, amount, Credit, true, balance)
		return l.repo.Append(ctx, t)
	})
	if err != nil {
		return nil, l.wrap(err, "credit wallet")
	}
	return t, nil
}

// Debit subtracts e.Amount from the wallet and appends a debit transaction.
// It fails with ErrInsufficientBalance without recording anything when the
// balance does not cover the amount.
func (l *Ledger) Debit(ctx context.Context, e Entry) (*Transaction, error) {
	amount, err := validate(e)
	if err != nil {
		return nil, err
	}

	var t *Transaction
	err = l.tx.InTx(ctx, func(ctx context.Context) error {
		balance, err := l.repo.Decrement(ctx, e.UserID, amount)
		if err != nil {
			return err
		}
		t = l.newTransaction(e, amount, Debit, true, balance)
		return l.repo.Append(ctx, t)
	})
	if err != nil {
		return nil, l.wrap(err, "debit wallet")
	}
	return t, nil
}

// Record appends an audit-only transaction that leaves the balance alone,
// such as a purchase paid through the gateway.
func (l *Ledger) Record(ctx context.Context, e Entry, typ TxType) (*Transaction, error) {
	amount, err := validate(e)
	if err != nil {
		return nil, err
	}

	var t *Transaction
	err = l.tx.InTx(ctx, func(ctx context.Context) error {
		w, err := l.repo.Get(ctx, e.UserID)
		if err != nil {
			return errors.Wrap(err, "get wallet")
		}
		t = l.newTransaction(e, amount, typ, false, w.Balance)
		return l.repo.Append(ctx, t)
	})
	if err != nil {
		return nil, l.wrap(err, "record transaction")
	}
	return t, nil
}

// Balance returns the user's wallet.
func (l *Ledger) Balance(ctx context.Context, userID string) (*Wallet, error) {
	w, err := l.repo.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get wallet")
	}
	return w, nil
}

// ByPayment returns the transaction recorded for a gateway payment.
func (l *Ledger) ByPayment(ctx context.Context, paymentID string, purpose Purpose) (*Transaction, error) {
	t, err := l.repo.FindByPayment(ctx, paymentID, purpose)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, errors.Wrap(err, "find transaction")
	}
	return t, nil
}

// History returns the most recent transactions, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	list, err := l.repo.Transactions(ctx, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}
	return list, nil
}

// Audit verifies balance == credits - debits over balance-affecting entries.
func (l *Ledger) Audit(ctx context.Context, userID string) (*Wallet, Totals, error) {
	var (
		w      *Wallet
		totals Totals
	)
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if w, err = l.repo.Get(ctx, userID); err != nil {
			return errors.Wrap(err, "get wallet")
		}
		if totals, err = l.repo.Totals(ctx, userID); err != nil {
			return errors.Wrap(err, "sum transactions")
		}
		return nil
	})
	if err != nil {
		return nil, Totals{}, err
	}
	if !w.Balance.Equal(totals.Credits.Sub(totals.Debits)) {
		return w, totals, errors.Wrapf(ErrLedgerDrift, "balance %s, ledger %s",
			w.Balance.StringFixed(2), totals.Credits.Sub(totals.Debits).StringFixed(2))
	}
	return w, totals, nil
}

func (l *Ledger) newTransaction(e Entry, amount decimal.Decimal, typ TxType, affects bool, balance decimal.Decimal) *Transaction {
	return &Transaction{
		ID:             uuid.New().String(),
		UserID:         e.UserID,
		Amount:         amount,
		Type:           typ,
		PaymentMethod:  e.PaymentMethod,
		Gateway:        e.Gateway,
		Purpose:        e.Purpose,
		OrderIDs:       e.OrderIDs,
		PaymentID:      e.PaymentID,
		AffectsBalance: affects,
		BalanceAfter:   balance,
		CreatedAt:      l.now(),
	}
}

func (l *Ledger) wrap(err error, msg string) error {
	if errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrDuplicatePayment) {
		return err
	}
	return errors.Wrap(err, msg)
}

func validate(e Entry) (decimal.Decimal, error) {
	if e.UserID == "" {
		return decimal.Zero, apperr.Invalid("userId", "required")
	}
	amount := pricing.Round(e.Amount)
	if !amount.IsPositive() {
		return decimal.Zero, apperr.Invalid("amount", "must be greater than 0")
	}
	if e.Purpose == "" {
		return decimal.Zero, apperr.Invalid("purpose", "required")
	}
	return amount, nil
}
