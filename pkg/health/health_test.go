package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pass(context.Context) error { return nil }

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type probeBody struct {
	Status string
	Checks map[string]string
}

func decodeProbe(t *testing.T, w *httptest.ResponseRecorder) probeBody {
	t.Helper()
	body := probeBody{Checks: map[string]string{}}
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "status":
			v, err := d.Str()
			body.Status = v
			return err
		case "checks":
			return d.ObjBytes(func(d *jx.Decoder, name []byte) error {
				v, err := d.Str()
				body.Checks[string(name)] = v
				return err
			})
		default:
			return d.Skip()
		}
	}))
	return body
}

func runN(ctx context.Context, s *state, n int) {
	for range n {
		s.run(ctx)
	}
}

func TestLiveEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, tt := range []struct {
		name   string
		setup  func(h *Health)
		code   int
		failed map[string]string
	}{
		{
			name:  "no checks",
			setup: func(*Health) {},
			code:  http.StatusOK,
		},
		{
			name: "all passing",
			setup: func(h *Health) {
				h.AddLivenessCheck("goroutines", time.Second, pass)
				h.AddLivenessCheck("gc", time.Second, pass)
			},
			code: http.StatusOK,
		},
		{
			name: "failing past threshold",
			setup: func(h *Health) {
				h.AddLivenessCheck("db", time.Second, fail("connection refused"))
				runN(ctx, h.checks[Liveness][0], 3)
			},
			code:   http.StatusServiceUnavailable,
			failed: map[string]string{"db": "connection refused"},
		},
		{
			name: "failing below threshold",
			setup: func(h *Health) {
				h.AddLivenessCheck("flaky", time.Second, fail("temporary"))
				runN(ctx, h.checks[Liveness][0], 2)
			},
			code: http.StatusOK,
		},
		{
			name: "custom threshold",
			setup: func(h *Health) {
				h.Add(Liveness, Check{Name: "strict", Func: fail("down"), FailureThreshold: 1})
				runN(ctx, h.checks[Liveness][0], 1)
			},
			code:   http.StatusServiceUnavailable,
			failed: map[string]string{"strict": "down"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			tt.setup(h)

			w := httptest.NewRecorder()
			h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			body := decodeProbe(t, w)
			if tt.code == http.StatusOK {
				assert.Equal(t, "ok", body.Status)
				assert.Empty(t, body.Checks)
				return
			}
			assert.Equal(t, "unhealthy", body.Status)
			assert.Equal(t, tt.failed, body.Checks)
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	ctx := context.Background()
	h := New()
	h.AddReadinessCheck("postgres", time.Second, pass)
	h.AddReadinessCheck("redis", time.Second, fail("i/o timeout"))

	get := func() (int, probeBody) {
		w := httptest.NewRecorder()
		h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return w.Code, decodeProbe(t, w)
	}

	code, body := get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, _ = get()
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())

	runN(ctx, h.checks[Readiness][1], 3)
	code, body = get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"redis": "i/o timeout"}, body.Checks)
	assert.False(t, h.IsReady())

	h.SetReady(false)
	_, body = get()
	assert.Len(t, body.Checks, 2)
}

func TestCheckRecovers(t *testing.T) {
	failing := true
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	})
	s := h.checks[Liveness][0]
	assert.Nil(t, s.lastError())

	runN(context.Background(), s, 3)
	assert.False(t, s.isHealthy())
	assert.EqualError(t, s.lastError(), "down")

	failing = false
	s.run(context.Background())
	assert.True(t, s.isHealthy())
	assert.NoError(t, s.lastError())
}

func TestCheckTimeout(t *testing.T) {
	h := New()
	h.Add(Readiness, Check{
		Name:             "slow",
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	s := h.checks[Readiness][0]
	s.run(context.Background())
	assert.False(t, s.isHealthy())
	assert.ErrorIs(t, s.lastError(), context.DeadlineExceeded)
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("concurrent", time.Second, fail("err"))
	h.AddReadinessCheck("concurrent", time.Second, pass)
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()

	h.Stop()
	h.Stop()
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, PingCheck(stubPinger{})(ctx))
	err := PingCheck(stubPinger{err: errors.New("refused")})(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")

	assert.NoError(t, GoroutineCountCheck(100000)(ctx))
	assert.ErrorContains(t, GoroutineCountCheck(0)(ctx), "exceeds threshold")

	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))
}
