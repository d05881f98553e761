package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
)

func writeCart(w http.ResponseWriter, status int, c *cart.Cart) {
	writeObject(w, status, func(e *jx.Encoder) {
		e.FieldStart("cart")
		encodeCart(e, c)
	})
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.Carts.Get(ctx, userFrom(ctx))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, c)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		productID string
		qty       = 1
	)
	err := readObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			productID, err = readString(d)
		case "quantity":
			qty, err = d.Int()
		default:
			return d.Skip()
		}
		return err
	})
	if err == nil && productID == "" {
		err = apperr.Invalid("productId", "required")
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	c, err := h.Carts.Add(ctx, userFrom(ctx), productID, qty)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, c)
}

// stepCartItem handles {"action":"increase"} and {"action":"decrease"}.
func (h *Handler) stepCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var action string
	if err := readObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "action" {
			return d.Skip()
		}
		var err error
		action, err = readString(d)
		return err
	}); err != nil {
		writeError(ctx, w, err)
		return
	}

	var (
		c         *cart.Cart
		err       error
		userID    = userFrom(ctx)
		productID = r.PathValue("productId")
	)
	switch action {
	case "increase":
		c, err = h.Carts.Increase(ctx, userID, productID)
	case "decrease":
		c, err = h.Carts.Decrease(ctx, userID, productID)
	default:
		err = apperr.Invalid("action", "must be increase or decrease")
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, c)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.Carts.Remove(ctx, userFrom(ctx), r.PathValue("productId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, c)
}
