package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

func (h *Handler) getWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFrom(ctx)
	wl, err := h.Ledger.Balance(ctx, userID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	history, err := h.Ledger.History(ctx, userID, h.historyLimit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("wallet")
		encodeWallet(e, wl)
		e.FieldStart("transactions")
		e.ArrStart()
		for i := range history {
			encodeTransaction(e, &history[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) topUpIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		amount decimal.Decimal
		seen   bool
	)
	err := readObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "amount" {
			return d.Skip()
		}
		seen = true
		var err error
		amount, err = readDecimal(d, "amount")
		return err
	})
	if err == nil && !seen {
		err = apperr.Invalid("amount", "required")
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	intent, err := h.TopUps.CreateIntent(ctx, userFrom(ctx), amount)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeIntent(e, intent, h.keyID)
	})
}

func (h *Handler) verifyTopUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var c confirmation
	if err := readObject(w, r, c.decode); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := c.validate(); err != nil {
		writeError(ctx, w, err)
		return
	}
	wl, err := h.TopUps.Verify(ctx, userFrom(ctx), c.Confirmation)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("wallet")
		encodeWallet(e, wl)
	})
}
