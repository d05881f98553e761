package apperr

import (
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

type outOfStock struct{ id string }

func (e *outOfStock) Error() string { return "out of stock: " + e.id }
func (e *outOfStock) Kind() Kind    { return KindConflict }
func (e *outOfStock) Code() string  { return "insufficient_stock" }

func TestKindOf(t *testing.T) {
	errMissing := NotFound("order_not_found", "order not found")

	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantCode string
	}{
		{name: "sentinel", err: errMissing, wantKind: KindNotFound, wantCode: "order_not_found"},
		{name: "wrapped sentinel", err: errors.Wrap(errMissing, "cancel item"), wantKind: KindNotFound, wantCode: "order_not_found"},
		{name: "fmt wrapped", err: fmt.Errorf("lock order: %w", errMissing), wantKind: KindNotFound, wantCode: "order_not_found"},
		{name: "typed", err: errors.Wrap(&outOfStock{id: "p1"}, "reserve"), wantKind: KindConflict, wantCode: "insufficient_stock"},
		{name: "plain", err: errors.New("connection reset"), wantKind: KindInternal, wantCode: "internal"},
		{name: "invalid field", err: Invalid("amount", "must be positive"), wantKind: KindValidation, wantCode: "invalid_amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, KindOf(tt.err))
			assert.Equal(t, tt.wantCode, CodeOf(tt.err))
		})
	}
}

func TestSentinelIdentity(t *testing.T) {
	a := Conflict("coupon_already_used", "coupon already used")
	b := Conflict("coupon_already_used", "coupon already used")

	assert.ErrorIs(t, errors.Wrap(a, "redeem"), a)
	assert.NotErrorIs(t, a, b, "sentinels compare by identity")
}
