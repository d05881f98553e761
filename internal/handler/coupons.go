package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/apperr"
)

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Coupons.Available(ctx, userFrom(ctx))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("coupons")
		e.ArrStart()
		for i := range list {
			encodeCoupon(e, &list[i])
		}
		e.ArrEnd()
	})
}

// applyCoupon previews the cart priced with a coupon. Nothing is redeemed.
func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var code string
	err := readObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "couponCode" {
			return d.Skip()
		}
		var err error
		code, err = readString(d)
		return err
	})
	if err == nil && code == "" {
		err = apperr.Invalid("couponCode", "required")
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	q, err := h.Checkout.Quote(ctx, userFrom(ctx), code)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("quote")
		encodeQuote(e, q)
	})
}
