package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/report"
	"github.com/xenking/storefront/internal/domain/settlement"
	"github.com/xenking/storefront/internal/domain/wallet"
)

func (h *Handler) advanceItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var status string
	if err := readObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		status, err = readString(d)
		return err
	}); err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.Settlement.AdvanceItem(ctx, r.PathValue("orderId"), r.PathValue("itemId"), order.Status(status))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeResult(w, res)
}

func (h *Handler) reviewReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := settlement.ReviewRequest{
		OrderID: r.PathValue("orderId"),
		ItemID:  r.PathValue("itemId"),
	}
	var decided bool
	err := readObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "approve":
			decided = true
			req.Approve, err = d.Bool()
		case "category":
			req.Category, err = readString(d)
		case "reason":
			req.Reason, err = readString(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err == nil && !decided {
		err = apperr.Invalid("approve", "required")
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.Settlement.ReviewReturn(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeResult(w, res)
}

func (h *Handler) completeReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.Settlement.CompleteReturn(ctx, r.PathValue("orderId"), r.PathValue("itemId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeResult(w, res)
}

func decodeCoupon(c *coupon.Coupon) fieldDecoder {
	return func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "offer":
			c.Offer, err = readDecimal(d, key)
		case "minimumPrice":
			c.MinimumPrice, err = readDecimal(d, key)
		case "maxDiscount":
			c.MaxDiscount, err = readDecimal(d, key)
		case "expiresAt":
			c.ExpiresAt, err = readTime(d, key)
		case "listed":
			c.Listed, err = d.Bool()
		case "description":
			c.Description, err = readString(d)
		case "referral":
			c.Referral, err = d.Bool()
		case "assignedTo":
			c.AssignedTo, err = readString(d)
		default:
			return d.Skip()
		}
		return err
	}
}

func (h *Handler) saveCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := &coupon.Coupon{Code: r.PathValue("code"), Listed: true}
	if err := readObject(w, r, decodeCoupon(c)); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.CouponAdmin.Save(ctx, c); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("coupon")
		encodeCoupon(e, c)
	})
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.CouponAdmin.Delete(ctx, r.PathValue("code")); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusOK, nil)
}

func (h *Handler) issueReferral(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		userID string
		offer  decimal.Decimal
	)
	if err := readObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			userID, err = readString(d)
		case "offer":
			offer, err = readDecimal(d, key)
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		writeError(ctx, w, err)
		return
	}
	c, err := h.CouponAdmin.IssueReferral(ctx, userID, offer)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusCreated, func(e *jx.Encoder) {
		e.FieldStart("coupon")
		encodeCoupon(e, c)
	})
}

func (h *Handler) reportRange(r *http.Request) (report.Range, error) {
	q := r.URL.Query()
	return report.ParseRange(report.Period(q.Get("range")), q.Get("from"), q.Get("to"), h.now())
}

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rng, err := h.reportRange(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	sales, err := h.Reports.SalesReport(ctx, rng)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("report")
		encodeSales(e, sales)
	})
}

func (h *Handler) ledgerBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rng, err := h.reportRange(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	book, err := h.Reports.LedgerBook(ctx, rng)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("ledger")
		encodeLedger(e, book)
	})
}

// walletAudit reports drift as data rather than as a failure.
func (h *Handler) walletAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wl, totals, err := h.Ledger.Audit(ctx, r.PathValue("userId"))
	consistent := err == nil
	if err != nil && !errors.Is(err, wallet.ErrLedgerDrift) {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("wallet")
		encodeWallet(e, wl)
		moneyField(e, "credits", totals.Credits)
		moneyField(e, "debits", totals.Debits)
		e.FieldStart("consistent")
		e.Bool(consistent)
	})
}
