package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/settlement"
)

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Checkout.Orders(ctx, userFrom(ctx))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("orders")
		e.ArrStart()
		for i := range list {
			encodeOrder(e, &list[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.Checkout.Order(ctx, userFrom(ctx), r.PathValue("orderId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("order")
		encodeOrder(e, o)
	})
}

// itemRequest addresses one item of an order.
type itemRequest struct {
	OrderID     string
	ItemID      string
	Reason      string
	Description string
	Images      []string
}

func (req *itemRequest) decode(d *jx.Decoder, key string) error {
	var err error
	switch key {
	case "orderId":
		req.OrderID, err = readString(d)
	case "itemId":
		req.ItemID, err = readString(d)
	case "reason", "cancelReason", "returnReason":
		req.Reason, err = readString(d)
	case "description", "returnDescription":
		req.Description, err = readString(d)
	case "images":
		req.Images, err = readStrings(d)
	default:
		return d.Skip()
	}
	return err
}

func (req *itemRequest) validate() error {
	switch {
	case req.OrderID == "":
		return apperr.Invalid("orderId", "required")
	case req.ItemID == "":
		return apperr.Invalid("itemId", "required")
	}
	return nil
}

func (h *Handler) readItemRequest(w http.ResponseWriter, r *http.Request) (*itemRequest, error) {
	var req itemRequest
	if err := readObject(w, r, req.decode); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func writeResult(w http.ResponseWriter, res *settlement.Result) {
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		encodeResult(e, res)
	})
}

func (h *Handler) cancelItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := h.readItemRequest(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.Settlement.CancelItem(ctx, userFrom(ctx), req.OrderID, req.ItemID, req.Reason)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeResult(w, res)
}

func (h *Handler) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := h.readItemRequest(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.Settlement.RequestReturn(ctx, userFrom(ctx), settlement.ReturnRequest{
		OrderID:     req.OrderID,
		ItemID:      req.ItemID,
		Reason:      req.Reason,
		Description: req.Description,
		Images:      req.Images,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeResult(w, res)
}

func (h *Handler) cancelReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := h.readItemRequest(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.Settlement.CancelReturn(ctx, userFrom(ctx), req.OrderID, req.ItemID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeResult(w, res)
}
