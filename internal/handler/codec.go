package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
)

const maxBodyBytes = 1 << 20

var errMalformedBody = apperr.Validation("malformed_body", "request body is not valid JSON")

// fieldDecoder reads one object field. Unknown keys must be skipped.
type fieldDecoder func(d *jx.Decoder, key string) error

// readObject decodes a JSON object body field by field. An empty body is
// treated as {}.
func readObject(w http.ResponseWriter, r *http.Request, fn fieldDecoder) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	d := jx.Decode(body, 4096)
	if d.Next() == jx.Invalid {
		// Empty body.
		return nil
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	})
	if err == nil {
		return nil
	}
	var kinded apperr.Kinded
	if errors.As(err, &kinded) {
		return kinded
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Wrap(errMalformedBody, "unexpected end of body")
	}
	return errors.Wrap(errMalformedBody, err.Error())
}

func readString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func readStrings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// readDecimal accepts a JSON number or a numeric string.
func readDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = string(n)
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	default:
		if err := d.Skip(); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, apperr.Invalid(field, "must be a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Invalid(field, "must be a number")
	}
	return v, nil
}

func readTime(d *jx.Decoder, field string) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Invalid(field, "expected RFC 3339 time or YYYY-MM-DD")
}

func money(e *jx.Encoder, d decimal.Decimal) {
	e.RawStr(d.StringFixed(2))
}

func moneyField(e *jx.Encoder, name string, d decimal.Decimal) {
	e.FieldStart(name)
	money(e, d)
}

func strField(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func optStrField(e *jx.Encoder, name, v string) {
	if v != "" {
		strField(e, name, v)
	}
}

func timeField(e *jx.Encoder, name string, t time.Time) {
	e.FieldStart(name)
	e.Str(t.UTC().Format(time.RFC3339))
}

func optTimeField(e *jx.Encoder, name string, t *time.Time) {
	if t != nil {
		timeField(e, name, *t)
	}
}

func strsField(e *jx.Encoder, name string, vs []string) {
	e.FieldStart(name)
	e.ArrStart()
	for _, v := range vs {
		e.Str(v)
	}
	e.ArrEnd()
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeObject writes {"success":true, ...fields}.
func writeObject(w http.ResponseWriter, status int, fields func(e *jx.Encoder)) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("success")
		e.Bool(true)
		if fields != nil {
			fields(e)
		}
		e.ObjEnd()
	})
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindGateway:
		return http.StatusBadGateway
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"code","error","message"}. Internal errors are
// logged and their message is withheld.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	code := apperr.CodeOf(err)
	message := err.Error()

	lg := zctx.From(ctx)
	if status == http.StatusInternalServerError {
		lg.Error("Request failed", zap.Error(err))
		message = "internal server error"
		code = apperr.KindInternal.String()
	} else {
		lg.Debug("Request rejected", zap.String("code", code), zap.Error(err))
	}

	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		strField(e, "error", code)
		strField(e, "message", message)
		e.ObjEnd()
	})
}
