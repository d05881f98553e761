package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
)

type checkoutRequest struct {
	AddressID     string
	PaymentMethod order.PaymentMethod
	CouponCode    string
}

func (c *checkoutRequest) decode(d *jx.Decoder, key string) error {
	var (
		s   string
		err error
	)
	switch key {
	case "addressId":
		c.AddressID, err = readString(d)
	case "paymentMethod":
		s, err = readString(d)
		c.PaymentMethod = order.PaymentMethod(s)
	case "couponCode":
		c.CouponCode, err = readString(d)
	default:
		return d.Skip()
	}
	return err
}

// confirmation accepts both our field names and the gateway checkout's
// razorpay_* names.
type confirmation struct {
	payment.Confirmation
	OrderID string
}

func (c *confirmation) decode(d *jx.Decoder, key string) error {
	var err error
	switch key {
	case "intentId", "razorpay_order_id":
		c.IntentID, err = readString(d)
	case "paymentId", "razorpay_payment_id":
		c.PaymentID, err = readString(d)
	case "signature", "razorpay_signature":
		c.Signature, err = readString(d)
	case "orderId":
		c.OrderID, err = readString(d)
	default:
		// orderData and other client echoes are ignored; the order is
		// rebuilt from the server-side intent.
		return d.Skip()
	}
	return err
}

func (c *confirmation) validate() error {
	switch {
	case c.IntentID == "":
		return apperr.Invalid("intentId", "required")
	case c.PaymentID == "":
		return apperr.Invalid("paymentId", "required")
	case c.Signature == "":
		return apperr.Invalid("signature", "required")
	}
	return nil
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req checkoutRequest
	if err := readObject(w, r, req.decode); err != nil {
		writeError(ctx, w, err)
		return
	}
	o, err := h.Checkout.PlaceOrder(ctx, order.PlaceRequest{
		UserID:        userFrom(ctx),
		AddressID:     req.AddressID,
		PaymentMethod: req.PaymentMethod,
		CouponCode:    req.CouponCode,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeOrderPlaced(w, o)
}

func writeOrderPlaced(w http.ResponseWriter, o *order.Order) {
	writeObject(w, http.StatusCreated, func(e *jx.Encoder) {
		strField(e, "orderId", o.ID)
		strField(e, "orderCode", o.Code)
		e.FieldStart("order")
		encodeOrder(e, o)
	})
}

func (h *Handler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req checkoutRequest
	if err := readObject(w, r, req.decode); err != nil {
		writeError(ctx, w, err)
		return
	}
	if req.PaymentMethod != "" && req.PaymentMethod != order.MethodOnline {
		writeError(ctx, w, apperr.Invalid("paymentMethod", "payment intents are for online payments"))
		return
	}
	if req.AddressID == "" {
		writeError(ctx, w, apperr.Invalid("addressId", "required"))
		return
	}
	intent, err := h.Checkout.CreatePaymentIntent(ctx, userFrom(ctx), req.AddressID, req.CouponCode)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeIntent(e, intent, h.keyID)
	})
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
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
	o, err := h.Checkout.VerifyPayment(ctx, userFrom(ctx), c.Confirmation)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeOrderPlaced(w, o)
}

// paymentFailed records the cart of an abandoned online payment as a failed
// order the customer can retry later.
func (h *Handler) paymentFailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var intentID string
	err := readObject(w, r, func(d *jx.Decoder, key string) error {
		if key == "intentId" || key == "razorpay_order_id" {
			var err error
			intentID, err = readString(d)
			return err
		}
		return d.Skip()
	})
	if err == nil && intentID == "" {
		err = apperr.Invalid("intentId", "required")
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	o, err := h.Checkout.RecordFailedPayment(ctx, userFrom(ctx), intentID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusCreated, func(e *jx.Encoder) {
		strField(e, "orderId", o.ID)
		strField(e, "orderCode", o.Code)
	})
}

func (h *Handler) retryPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	intent, err := h.Checkout.RetryPayment(ctx, userFrom(ctx), r.PathValue("orderId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeIntent(e, intent, h.keyID)
	})
}

func (h *Handler) verifyRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var c confirmation
	if err := readObject(w, r, c.decode); err != nil {
		writeError(ctx, w, err)
		return
	}
	if c.OrderID == "" {
		writeError(ctx, w, apperr.Invalid("orderId", "required"))
		return
	}
	if err := c.validate(); err != nil {
		writeError(ctx, w, err)
		return
	}
	o, err := h.Checkout.VerifyRetry(ctx, userFrom(ctx), c.OrderID, c.Confirmation)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		strField(e, "orderId", o.ID)
		strField(e, "orderCode", o.Code)
		e.FieldStart("order")
		encodeOrder(e, o)
	})
}
